package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mlindholt/discord-guildbot/internal/store"
)

// MissionRepo implements store.MissionRepository with sqlx.
type MissionRepo struct {
	db *sqlx.DB
}

// NewMissionRepo returns a new MissionRepo.
func NewMissionRepo(db *sqlx.DB) *MissionRepo {
	return &MissionRepo{db: db}
}

type missionRow struct {
	PlayerID   string    `db:"player_id"`
	Daily      []byte    `db:"daily"`
	Weekly     []byte    `db:"weekly"`
	AssignedAt time.Time `db:"assigned_at"`
}

func (r missionRow) toSet() (*store.MissionSet, error) {
	set := &store.MissionSet{PlayerID: r.PlayerID, AssignedAt: r.AssignedAt}
	if err := json.Unmarshal(r.Daily, &set.Daily); err != nil {
		return nil, fmt.Errorf("decoding daily missions: %w", err)
	}
	if len(r.Weekly) > 0 {
		if err := json.Unmarshal(r.Weekly, &set.Weekly); err != nil {
			return nil, fmt.Errorf("decoding weekly mission: %w", err)
		}
	}
	return set, nil
}

func rowFromSet(set *store.MissionSet) (missionRow, error) {
	row := missionRow{PlayerID: set.PlayerID, AssignedAt: set.AssignedAt}
	var err error
	if row.Daily, err = json.Marshal(set.Daily); err != nil {
		return row, fmt.Errorf("encoding daily missions: %w", err)
	}
	if set.Weekly != nil {
		if row.Weekly, err = json.Marshal(set.Weekly); err != nil {
			return row, fmt.Errorf("encoding weekly mission: %w", err)
		}
	}
	return row, nil
}

// Get returns the player's assignment or store.ErrNotFound.
func (r *MissionRepo) Get(ctx context.Context, playerID string) (*store.MissionSet, error) {
	var row missionRow
	err := r.db.GetContext(ctx, &row,
		`SELECT player_id, daily, weekly, assigned_at FROM missions WHERE player_id = $1`, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting missions: %w", err)
	}
	return row.toSet()
}

// Save stores the assignment, replacing any existing one.
func (r *MissionRepo) Save(ctx context.Context, set *store.MissionSet) error {
	row, err := rowFromSet(set)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO missions (player_id, daily, weekly, assigned_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (player_id) DO UPDATE SET daily = $2, weekly = $3, assigned_at = $4`,
		row.PlayerID, row.Daily, row.Weekly, row.AssignedAt)
	if err != nil {
		return fmt.Errorf("saving missions: %w", err)
	}
	return nil
}

// Update applies fn to the assignment under a row lock.
func (r *MissionRepo) Update(ctx context.Context, playerID string, fn func(*store.MissionSet) error) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var row missionRow
		err := tx.GetContext(ctx, &row,
			`SELECT player_id, daily, weekly, assigned_at FROM missions WHERE player_id = $1 FOR UPDATE`,
			playerID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking mission row: %w", err)
		}
		set, err := row.toSet()
		if err != nil {
			return err
		}

		if err := fn(set); err != nil {
			return err
		}

		updated, err := rowFromSet(set)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE missions SET daily=$2, weekly=$3, assigned_at=$4 WHERE player_id=$1`,
			updated.PlayerID, updated.Daily, updated.Weekly, updated.AssignedAt); err != nil {
			return fmt.Errorf("updating missions: %w", err)
		}
		return nil
	})
}

// Delete removes the player's assignment.
func (r *MissionRepo) Delete(ctx context.Context, playerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM missions WHERE player_id = $1`, playerID)
	if err != nil {
		return fmt.Errorf("deleting missions: %w", err)
	}
	return nil
}
