package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mlindholt/discord-guildbot/internal/store"
)

// ClanRepo implements store.ClanRepository in memory with an id index and
// lowercase name/tag indexes for uniqueness.
type ClanRepo struct {
	mu      sync.RWMutex
	records map[string]*store.Clan
	byName  map[string]string // lowercase name -> id
	byTag   map[string]string // lowercase tag -> id
}

// NewClanRepo returns an empty in-memory clan repository.
func NewClanRepo() *ClanRepo {
	return &ClanRepo{
		records: make(map[string]*store.Clan),
		byName:  make(map[string]string),
		byTag:   make(map[string]string),
	}
}

// Create stores the clan, enforcing case-insensitive name and tag uniqueness.
func (r *ClanRepo) Create(_ context.Context, c *store.Clan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(c.Name)
	tag := strings.ToLower(c.Tag)
	if _, taken := r.byName[name]; taken {
		return store.ErrNameTaken
	}
	if _, taken := r.byTag[tag]; taken {
		return store.ErrTagTaken
	}
	r.records[c.ID] = cloneClan(c)
	r.byName[name] = c.ID
	r.byTag[tag] = c.ID
	return nil
}

// GetByID returns a snapshot of the clan or store.ErrNotFound.
func (r *ClanRepo) GetByID(_ context.Context, id string) (*store.Clan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneClan(c), nil
}

// GetByName returns a snapshot of the clan by case-insensitive name.
func (r *ClanRepo) GetByName(_ context.Context, name string) (*store.Clan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneClan(r.records[id]), nil
}

// Update applies fn to a working copy of the clan under the repository lock.
func (r *ClanRepo) Update(_ context.Context, id string, fn func(*store.Clan) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.records[id]
	if !ok {
		return store.ErrNotFound
	}
	working := cloneClan(c)
	if err := fn(working); err != nil {
		return err
	}
	r.records[id] = working
	return nil
}

// Delete removes the clan and frees its name and tag.
func (r *ClanRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.records[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(r.byName, strings.ToLower(c.Name))
	delete(r.byTag, strings.ToLower(c.Tag))
	delete(r.records, id)
	return nil
}

// List returns all clans ordered by creation time.
func (r *ClanRepo) List(_ context.Context) ([]store.Clan, error) {
	r.mu.RLock()
	out := make([]store.Clan, 0, len(r.records))
	for _, c := range r.records {
		out = append(out, *cloneClan(c))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneClan(c *store.Clan) *store.Clan {
	out := *c
	out.Members = append([]string(nil), c.Members...)
	return &out
}

// InviteRepo implements store.InviteRepository in memory. Invites are keyed
// by player and hold lowercase clan names; empty sets are pruned.
type InviteRepo struct {
	mu      sync.Mutex
	invites map[string]map[string]struct{}
}

// NewInviteRepo returns an empty in-memory invite repository.
func NewInviteRepo() *InviteRepo {
	return &InviteRepo{invites: make(map[string]map[string]struct{})}
}

// Add records a pending invite.
func (r *InviteRepo) Add(_ context.Context, playerID, clanName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.invites[playerID]
	if !ok {
		set = make(map[string]struct{})
		r.invites[playerID] = set
	}
	set[strings.ToLower(clanName)] = struct{}{}
	return nil
}

// Remove consumes a pending invite, pruning the player's set when empty.
func (r *InviteRepo) Remove(_ context.Context, playerID, clanName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.invites[playerID]
	if !ok {
		return nil
	}
	delete(set, strings.ToLower(clanName))
	if len(set) == 0 {
		delete(r.invites, playerID)
	}
	return nil
}

// Has reports whether the player holds an invite to the named clan.
func (r *InviteRepo) Has(_ context.Context, playerID, clanName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.invites[playerID]
	if !ok {
		return false, nil
	}
	_, has := set[strings.ToLower(clanName)]
	return has, nil
}

// List returns the player's pending invites sorted alphabetically.
func (r *InviteRepo) List(_ context.Context, playerID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.invites[playerID]
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
