package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/store"
)

// PlayerRepo implements store.PlayerRepository with sqlx. The Update
// contract is met with SELECT ... FOR UPDATE inside a transaction.
type PlayerRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewPlayerRepo returns a new PlayerRepo.
func NewPlayerRepo(db *sqlx.DB, clk clock.Clock) *PlayerRepo {
	return &PlayerRepo{db: db, clk: clk}
}

type playerRow struct {
	ID          string    `db:"id"`
	Level       int       `db:"level"`
	XP          int       `db:"xp"`
	Coins       int       `db:"coins"`
	ClassID     string    `db:"class_id"`
	ClanID      string    `db:"clan_id"`
	Counters    []byte    `db:"counters"`
	ClassLevels []byte    `db:"class_levels"`
	ClassXP     []byte    `db:"class_xp"`
	Completed   []byte    `db:"completed"`
	Locale      string    `db:"locale"`
	AutoCollect bool      `db:"auto_collect"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r playerRow) toStats() (*store.PlayerStats, error) {
	p := &store.PlayerStats{
		ID:          r.ID,
		Level:       r.Level,
		XP:          r.XP,
		Coins:       r.Coins,
		ClassID:     r.ClassID,
		ClanID:      r.ClanID,
		Locale:      r.Locale,
		AutoCollect: r.AutoCollect,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, pair := range []struct {
		src []byte
		dst interface{}
	}{
		{r.Counters, &p.Counters},
		{r.ClassLevels, &p.ClassLevels},
		{r.ClassXP, &p.ClassXP},
		{r.Completed, &p.Completed},
	} {
		if err := json.Unmarshal(pair.src, pair.dst); err != nil {
			return nil, fmt.Errorf("decoding player %s: %w", r.ID, err)
		}
	}
	return p, nil
}

func rowFromStats(p *store.PlayerStats) (playerRow, error) {
	row := playerRow{
		ID:          p.ID,
		Level:       p.Level,
		XP:          p.XP,
		Coins:       p.Coins,
		ClassID:     p.ClassID,
		ClanID:      p.ClanID,
		Locale:      p.Locale,
		AutoCollect: p.AutoCollect,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	var err error
	if row.Counters, err = json.Marshal(p.Counters); err != nil {
		return row, fmt.Errorf("encoding counters: %w", err)
	}
	if row.ClassLevels, err = json.Marshal(p.ClassLevels); err != nil {
		return row, fmt.Errorf("encoding class levels: %w", err)
	}
	if row.ClassXP, err = json.Marshal(p.ClassXP); err != nil {
		return row, fmt.Errorf("encoding class xp: %w", err)
	}
	if row.Completed, err = json.Marshal(p.Completed); err != nil {
		return row, fmt.Errorf("encoding completed milestones: %w", err)
	}
	return row, nil
}

const playerColumns = `id, level, xp, coins, class_id, clan_id, counters, class_levels, class_xp, completed, locale, auto_collect, created_at, updated_at`

// GetOrCreate returns the player's record, inserting the default row on
// first access.
func (r *PlayerRepo) GetOrCreate(ctx context.Context, id string) (*store.PlayerStats, error) {
	now := r.clk.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO players (id, created_at, updated_at) VALUES ($1, $2, $2)
		 ON CONFLICT (id) DO NOTHING`, id, now)
	if err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}
	return r.Get(ctx, id)
}

// Get returns the record or store.ErrNotFound.
func (r *PlayerRepo) Get(ctx context.Context, id string) (*store.PlayerStats, error) {
	var row playerRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+playerColumns+` FROM players WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return row.toStats()
}

// Update applies fn to the player's record under a row lock, creating the
// default record first if the player is new.
func (r *PlayerRepo) Update(ctx context.Context, id string, fn func(*store.PlayerStats) error) error {
	now := r.clk.Now().UTC()
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO players (id, created_at, updated_at) VALUES ($1, $2, $2)
			 ON CONFLICT (id) DO NOTHING`, id, now); err != nil {
			return fmt.Errorf("ensuring player row: %w", err)
		}

		var row playerRow
		if err := tx.GetContext(ctx, &row,
			`SELECT `+playerColumns+` FROM players WHERE id = $1 FOR UPDATE`, id); err != nil {
			return fmt.Errorf("locking player row: %w", err)
		}
		p, err := row.toStats()
		if err != nil {
			return err
		}
		if p.Counters == nil {
			p.Counters = make(map[string]int)
		}

		if err := fn(p); err != nil {
			return err
		}
		p.UpdatedAt = now

		updated, err := rowFromStats(p)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE players SET level=$2, xp=$3, coins=$4, class_id=$5, clan_id=$6,
			   counters=$7, class_levels=$8, class_xp=$9, completed=$10,
			   locale=$11, auto_collect=$12, updated_at=$13
			 WHERE id=$1`,
			updated.ID, updated.Level, updated.XP, updated.Coins, updated.ClassID,
			updated.ClanID, updated.Counters, updated.ClassLevels, updated.ClassXP,
			updated.Completed, updated.Locale, updated.AutoCollect, updated.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating player: %w", err)
		}
		return nil
	})
}

// List returns all players ordered by level then xp, descending.
func (r *PlayerRepo) List(ctx context.Context) ([]store.PlayerStats, error) {
	var rows []playerRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+playerColumns+` FROM players ORDER BY level DESC, xp DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	out := make([]store.PlayerStats, 0, len(rows))
	for _, row := range rows {
		p, err := row.toStats()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// InventoryRepo implements store.InventoryRepository with sqlx.
type InventoryRepo struct {
	db *sqlx.DB
}

// NewInventoryRepo returns a new InventoryRepo.
func NewInventoryRepo(db *sqlx.DB) *InventoryRepo {
	return &InventoryRepo{db: db}
}

type inventoryRow struct {
	PlayerID string `db:"player_id"`
	Items    []byte `db:"items"`
	Equipped []byte `db:"equipped"`
}

func (r inventoryRow) toInventory() (*store.Inventory, error) {
	inv := &store.Inventory{PlayerID: r.PlayerID}
	if err := json.Unmarshal(r.Items, &inv.Items); err != nil {
		return nil, fmt.Errorf("decoding inventory items: %w", err)
	}
	if err := json.Unmarshal(r.Equipped, &inv.Equipped); err != nil {
		return nil, fmt.Errorf("decoding equipped slots: %w", err)
	}
	if inv.Equipped == nil {
		inv.Equipped = make(map[string]string)
	}
	return inv, nil
}

// Get returns the player's inventory, creating an empty one on first access.
func (r *InventoryRepo) Get(ctx context.Context, playerID string) (*store.Inventory, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO inventories (player_id) VALUES ($1) ON CONFLICT (player_id) DO NOTHING`,
		playerID); err != nil {
		return nil, fmt.Errorf("ensuring inventory row: %w", err)
	}
	var row inventoryRow
	if err := r.db.GetContext(ctx, &row,
		`SELECT player_id, items, equipped FROM inventories WHERE player_id = $1`, playerID); err != nil {
		return nil, fmt.Errorf("getting inventory: %w", err)
	}
	return row.toInventory()
}

// Update applies fn to the inventory under a row lock.
func (r *InventoryRepo) Update(ctx context.Context, playerID string, fn func(*store.Inventory) error) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO inventories (player_id) VALUES ($1) ON CONFLICT (player_id) DO NOTHING`,
			playerID); err != nil {
			return fmt.Errorf("ensuring inventory row: %w", err)
		}

		var row inventoryRow
		if err := tx.GetContext(ctx, &row,
			`SELECT player_id, items, equipped FROM inventories WHERE player_id = $1 FOR UPDATE`,
			playerID); err != nil {
			return fmt.Errorf("locking inventory row: %w", err)
		}
		inv, err := row.toInventory()
		if err != nil {
			return err
		}

		if err := fn(inv); err != nil {
			return err
		}

		items, err := json.Marshal(inv.Items)
		if err != nil {
			return fmt.Errorf("encoding items: %w", err)
		}
		equipped, err := json.Marshal(inv.Equipped)
		if err != nil {
			return fmt.Errorf("encoding equipped slots: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE inventories SET items=$2, equipped=$3 WHERE player_id=$1`,
			playerID, items, equipped); err != nil {
			return fmt.Errorf("updating inventory: %w", err)
		}
		return nil
	})
}
