package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/store"
)

// ClanRepo implements store.ClanRepository with sqlx. Name/tag uniqueness is
// enforced by unique indexes on lower(name) and lower(tag).
type ClanRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewClanRepo returns a new ClanRepo.
func NewClanRepo(db *sqlx.DB, clk clock.Clock) *ClanRepo {
	return &ClanRepo{db: db, clk: clk}
}

type clanRow struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	Tag        string    `db:"tag"`
	Leader     string    `db:"leader"`
	Members    []byte    `db:"members"`
	RoleRef    string    `db:"role_ref"`
	ChannelRef string    `db:"channel_ref"`
	Color      string    `db:"color"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r clanRow) toClan() (*store.Clan, error) {
	c := &store.Clan{
		ID:         r.ID,
		Name:       r.Name,
		Tag:        r.Tag,
		Leader:     r.Leader,
		RoleRef:    r.RoleRef,
		ChannelRef: r.ChannelRef,
		Color:      r.Color,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
	}
	if err := json.Unmarshal(r.Members, &c.Members); err != nil {
		return nil, fmt.Errorf("decoding clan members: %w", err)
	}
	return c, nil
}

const clanColumns = `id, name, tag, leader, members, role_ref, channel_ref, color, status, created_at`

// Create stores the clan, mapping unique index violations onto the store
// sentinel errors.
func (r *ClanRepo) Create(ctx context.Context, c *store.Clan) error {
	members, err := json.Marshal(c.Members)
	if err != nil {
		return fmt.Errorf("encoding clan members: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.clk.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO clans (id, name, tag, leader, members, role_ref, channel_ref, color, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Name, c.Tag, c.Leader, members, c.RoleRef, c.ChannelRef, c.Color, c.Status, c.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		switch pqErr.Constraint {
		case "clans_tag_lower_idx":
			return store.ErrTagTaken
		default:
			return store.ErrNameTaken
		}
	}
	if err != nil {
		return fmt.Errorf("creating clan: %w", err)
	}
	return nil
}

// GetByID returns the clan or store.ErrNotFound.
func (r *ClanRepo) GetByID(ctx context.Context, id string) (*store.Clan, error) {
	var row clanRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+clanColumns+` FROM clans WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting clan: %w", err)
	}
	return row.toClan()
}

// GetByName returns the clan by case-insensitive name.
func (r *ClanRepo) GetByName(ctx context.Context, name string) (*store.Clan, error) {
	var row clanRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+clanColumns+` FROM clans WHERE lower(name) = lower($1)`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting clan by name: %w", err)
	}
	return row.toClan()
}

// Update applies fn to the clan under a row lock.
func (r *ClanRepo) Update(ctx context.Context, id string, fn func(*store.Clan) error) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var row clanRow
		err := tx.GetContext(ctx, &row,
			`SELECT `+clanColumns+` FROM clans WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking clan row: %w", err)
		}
		c, err := row.toClan()
		if err != nil {
			return err
		}

		if err := fn(c); err != nil {
			return err
		}

		members, err := json.Marshal(c.Members)
		if err != nil {
			return fmt.Errorf("encoding clan members: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE clans SET leader=$2, members=$3, role_ref=$4, channel_ref=$5, color=$6, status=$7
			 WHERE id=$1`,
			c.ID, c.Leader, members, c.RoleRef, c.ChannelRef, c.Color, c.Status); err != nil {
			return fmt.Errorf("updating clan: %w", err)
		}
		return nil
	})
}

// Delete removes the clan.
func (r *ClanRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting clan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns all clans ordered by creation time.
func (r *ClanRepo) List(ctx context.Context) ([]store.Clan, error) {
	var rows []clanRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+clanColumns+` FROM clans ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing clans: %w", err)
	}
	out := make([]store.Clan, 0, len(rows))
	for _, row := range rows {
		c, err := row.toClan()
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// InviteRepo implements store.InviteRepository with sqlx. Clan names are
// stored lowercase.
type InviteRepo struct {
	db *sqlx.DB
}

// NewInviteRepo returns a new InviteRepo.
func NewInviteRepo(db *sqlx.DB) *InviteRepo {
	return &InviteRepo{db: db}
}

// Add records a pending invite.
func (r *InviteRepo) Add(ctx context.Context, playerID, clanName string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invites (player_id, clan_name) VALUES ($1, lower($2))
		 ON CONFLICT (player_id, clan_name) DO NOTHING`, playerID, clanName)
	if err != nil {
		return fmt.Errorf("adding invite: %w", err)
	}
	return nil
}

// Remove consumes a pending invite.
func (r *InviteRepo) Remove(ctx context.Context, playerID, clanName string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM invites WHERE player_id = $1 AND clan_name = lower($2)`, playerID, clanName)
	if err != nil {
		return fmt.Errorf("removing invite: %w", err)
	}
	return nil
}

// Has reports whether the player holds an invite to the named clan.
func (r *InviteRepo) Has(ctx context.Context, playerID, clanName string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT count(*) FROM invites WHERE player_id = $1 AND clan_name = lower($2)`,
		playerID, clanName)
	if err != nil {
		return false, fmt.Errorf("checking invite: %w", err)
	}
	return count > 0, nil
}

// List returns the player's pending invites sorted alphabetically.
func (r *InviteRepo) List(ctx context.Context, playerID string) ([]string, error) {
	var names []string
	err := r.db.SelectContext(ctx, &names,
		`SELECT clan_name FROM invites WHERE player_id = $1 ORDER BY clan_name ASC`, playerID)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	return names, nil
}
