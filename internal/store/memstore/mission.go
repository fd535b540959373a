package memstore

import (
	"context"
	"sync"

	"github.com/mlindholt/discord-guildbot/internal/store"
)

// MissionRepo implements store.MissionRepository in memory.
type MissionRepo struct {
	mu      sync.Mutex
	records map[string]*store.MissionSet
	locks   map[string]*sync.Mutex
}

// NewMissionRepo returns an empty in-memory mission repository.
func NewMissionRepo() *MissionRepo {
	return &MissionRepo{
		records: make(map[string]*store.MissionSet),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *MissionRepo) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Get returns a snapshot of the player's assignment or store.ErrNotFound.
func (r *MissionRepo) Get(_ context.Context, playerID string) (*store.MissionSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.records[playerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneMissionSet(set), nil
}

// Save stores the assignment, replacing any existing one.
func (r *MissionRepo) Save(_ context.Context, set *store.MissionSet) error {
	l := r.lockFor(set.PlayerID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	r.records[set.PlayerID] = cloneMissionSet(set)
	r.mu.Unlock()
	return nil
}

// Update applies fn to a working copy under the per-player lock.
func (r *MissionRepo) Update(_ context.Context, playerID string, fn func(*store.MissionSet) error) error {
	l := r.lockFor(playerID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	set, ok := r.records[playerID]
	r.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}

	working := cloneMissionSet(set)
	if err := fn(working); err != nil {
		return err
	}
	r.mu.Lock()
	r.records[playerID] = working
	r.mu.Unlock()
	return nil
}

// Delete removes the player's assignment.
func (r *MissionRepo) Delete(_ context.Context, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, playerID)
	return nil
}

func cloneMissionSet(set *store.MissionSet) *store.MissionSet {
	out := *set
	out.Daily = append([]store.MissionInstance(nil), set.Daily...)
	if set.Weekly != nil {
		w := *set.Weekly
		out.Weekly = &w
	}
	return &out
}
