package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/store"
)

// PlayerRepo implements store.PlayerRepository in memory with one lock per
// player id.
type PlayerRepo struct {
	clk clock.Clock

	mu      sync.Mutex // guards records and locks
	records map[string]*store.PlayerStats
	locks   map[string]*sync.Mutex
}

// NewPlayerRepo returns an empty in-memory player repository.
func NewPlayerRepo(clk clock.Clock) *PlayerRepo {
	return &PlayerRepo{
		clk:     clk,
		records: make(map[string]*store.PlayerStats),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *PlayerRepo) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// get returns the stored record, creating the default one if absent.
// Caller must hold the player's lock.
func (r *PlayerRepo) get(id string) *store.PlayerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.records[id]
	if !ok {
		p = store.NewPlayerStats(id, r.clk.Now().UTC())
		r.records[id] = p
	}
	return p
}

func (r *PlayerRepo) put(p *store.PlayerStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[p.ID] = p
}

// GetOrCreate returns a snapshot of the player's record, creating it with
// defaults on first access.
func (r *PlayerRepo) GetOrCreate(_ context.Context, id string) (*store.PlayerStats, error) {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return clonePlayer(r.get(id)), nil
}

// Get returns a snapshot of the record or store.ErrNotFound.
func (r *PlayerRepo) Get(_ context.Context, id string) (*store.PlayerStats, error) {
	r.mu.Lock()
	p, ok := r.records[id]
	r.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return clonePlayer(p), nil
}

// Update runs fn against a working copy of the record under the per-player
// lock. The copy replaces the stored record only when fn succeeds, so a
// failed operation leaves no partially-applied state behind.
func (r *PlayerRepo) Update(_ context.Context, id string, fn func(*store.PlayerStats) error) error {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	working := clonePlayer(r.get(id))
	if err := fn(working); err != nil {
		return err
	}
	working.UpdatedAt = r.clk.Now().UTC()
	r.put(working)
	return nil
}

// List returns all players ordered by level then xp, descending.
func (r *PlayerRepo) List(_ context.Context) ([]store.PlayerStats, error) {
	r.mu.Lock()
	out := make([]store.PlayerStats, 0, len(r.records))
	for _, p := range r.records {
		out = append(out, *clonePlayer(p))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].XP > out[j].XP
	})
	return out, nil
}

func clonePlayer(p *store.PlayerStats) *store.PlayerStats {
	c := *p
	c.Counters = cloneIntMap(p.Counters)
	c.ClassLevels = cloneIntMap(p.ClassLevels)
	c.ClassXP = cloneIntMap(p.ClassXP)
	c.Completed = make(map[string]store.MilestoneRecord, len(p.Completed))
	for k, v := range p.Completed {
		rec := v
		rec.Tiers = append([]bool(nil), v.Tiers...)
		c.Completed[k] = rec
	}
	return &c
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// InventoryRepo implements store.InventoryRepository in memory.
type InventoryRepo struct {
	mu      sync.Mutex
	records map[string]*store.Inventory
	locks   map[string]*sync.Mutex
}

// NewInventoryRepo returns an empty in-memory inventory repository.
func NewInventoryRepo() *InventoryRepo {
	return &InventoryRepo{
		records: make(map[string]*store.Inventory),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *InventoryRepo) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

func (r *InventoryRepo) get(playerID string) *store.Inventory {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.records[playerID]
	if !ok {
		inv = &store.Inventory{
			PlayerID: playerID,
			Equipped: make(map[string]string),
		}
		r.records[playerID] = inv
	}
	return inv
}

// Get returns a snapshot of the player's inventory, creating an empty one on
// first access.
func (r *InventoryRepo) Get(_ context.Context, playerID string) (*store.Inventory, error) {
	l := r.lockFor(playerID)
	l.Lock()
	defer l.Unlock()
	return cloneInventory(r.get(playerID)), nil
}

// Update runs fn against a working copy under the per-player lock.
func (r *InventoryRepo) Update(_ context.Context, playerID string, fn func(*store.Inventory) error) error {
	l := r.lockFor(playerID)
	l.Lock()
	defer l.Unlock()

	working := cloneInventory(r.get(playerID))
	if err := fn(working); err != nil {
		return err
	}
	r.mu.Lock()
	r.records[playerID] = working
	r.mu.Unlock()
	return nil
}

func cloneInventory(inv *store.Inventory) *store.Inventory {
	c := *inv
	c.Items = append([]string(nil), inv.Items...)
	c.Equipped = make(map[string]string, len(inv.Equipped))
	for k, v := range inv.Equipped {
		c.Equipped[k] = v
	}
	return &c
}
