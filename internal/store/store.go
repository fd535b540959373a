// Package store defines the engine's persistent records and the repository
// interfaces its managers operate through. Drivers register themselves via
// Register and are selected by configuration.
package store

import (
	"context"
	"errors"
	"time"
)

// Counter names tracked on PlayerStats. Missing counters read as zero.
const (
	CounterRaidsCreated    = "raids_created"
	CounterRaidsHelped     = "raids_helped"
	CounterKickedOthers    = "kicked_others"
	CounterWasKicked       = "was_kicked"
	CounterReputation      = "reputation"
	CounterTotalRatings    = "total_ratings"
	CounterDaysInClan      = "days_in_clan"
	CounterAuctionsWon     = "auctions_won"
	CounterMentoredPlayers = "mentored_players"
)

// Equipment slot names.
const (
	SlotBackground = "background"
	SlotTitle      = "title"
	SlotBorder     = "border"
)

// Clan lifecycle states.
const (
	ClanForming   = "forming"
	ClanActive    = "active"
	ClanDisbanded = "disbanded"
)

// Errors shared across repository implementations.
var (
	ErrNotFound  = errors.New("record not found")
	ErrNameTaken = errors.New("clan name already taken")
	ErrTagTaken  = errors.New("clan tag already taken")
)

// MilestoneRecord stores which tiers of a milestone a player has completed
// and a reference to the announcement message, if one was sent.
type MilestoneRecord struct {
	Tiers      []bool `json:"tiers"`
	MessageRef string `json:"message_ref,omitempty"`
}

// PlayerStats is the per-player ledger record. It is created lazily with
// defaults on first access and never deleted.
type PlayerStats struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
	XP    int    `json:"xp"`
	Coins int    `json:"coins"`
	// ClassID is immutable once set.
	ClassID string `json:"class_id,omitempty"`
	// ClanID is the single source of truth for clan membership.
	ClanID      string                     `json:"clan_id,omitempty"`
	Counters    map[string]int             `json:"counters"`
	ClassLevels map[string]int             `json:"class_levels"`
	ClassXP     map[string]int             `json:"class_xp"`
	Completed   map[string]MilestoneRecord `json:"completed_milestones"`
	Locale      string                     `json:"locale"`
	AutoCollect bool                       `json:"auto_collect"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// Counter returns the named counter, treating missing counters as zero.
func (p *PlayerStats) Counter(name string) int {
	if p.Counters == nil {
		return 0
	}
	return p.Counters[name]
}

// NewPlayerStats returns the default record for a first-seen player.
func NewPlayerStats(id string, now time.Time) *PlayerStats {
	return &PlayerStats{
		ID:          id,
		Level:       1,
		Counters:    make(map[string]int),
		ClassLevels: make(map[string]int),
		ClassXP:     make(map[string]int),
		Completed:   make(map[string]MilestoneRecord),
		Locale:      "en",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Inventory holds a player's owned items and equipped slots. Items has set
// semantics; an equipped reference must be present in Items.
type Inventory struct {
	PlayerID string            `json:"player_id"`
	Items    []string          `json:"items"`
	Equipped map[string]string `json:"equipped"`
}

// Owns reports whether the inventory contains the item.
func (inv *Inventory) Owns(itemID string) bool {
	for _, id := range inv.Items {
		if id == itemID {
			return true
		}
	}
	return false
}

// Clan is a named player group with exactly one leader. Members is a derived
// cache of PlayerStats.ClanID and must be kept in sync on every mutation.
type Clan struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Tag        string    `json:"tag"`
	Leader     string    `json:"leader"`
	Members    []string  `json:"members"`
	RoleRef    string    `json:"role_ref,omitempty"`
	ChannelRef string    `json:"channel_ref,omitempty"`
	Color      string    `json:"color"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasMember reports whether the player is on the roster.
func (c *Clan) HasMember(playerID string) bool {
	for _, m := range c.Members {
		if m == playerID {
			return true
		}
	}
	return false
}

// RemoveMember drops the player from the roster.
func (c *Clan) RemoveMember(playerID string) {
	for i, m := range c.Members {
		if m == playerID {
			c.Members = append(c.Members[:i], c.Members[i+1:]...)
			return
		}
	}
}

// MissionInstance is one assigned mission. Goal is fixed at assignment time.
type MissionInstance struct {
	TemplateID string `json:"template_id"`
	Progress   int    `json:"progress"`
	Goal       int    `json:"goal"`
	Completed  bool   `json:"completed"`
	Collected  bool   `json:"collected"`
	// RewardItemID, when set, replaces the template's reward with an item
	// rolled at assignment time.
	RewardItemID string `json:"reward_item_id,omitempty"`
	MessageRef   string `json:"message_ref,omitempty"`
}

// MissionSet is a player's current assignment: up to three dailies and one
// weekly.
type MissionSet struct {
	PlayerID   string            `json:"player_id"`
	Daily      []MissionInstance `json:"daily"`
	Weekly     *MissionInstance  `json:"weekly,omitempty"`
	AssignedAt time.Time         `json:"assigned_at"`
}

// PlayerRepository owns PlayerStats records. Update serializes all mutations
// for a given player: the closure runs with exclusive access to the record
// and its changes are visible to any later read.
type PlayerRepository interface {
	// GetOrCreate returns the player's record, creating the default record
	// if the player has not been seen before.
	GetOrCreate(ctx context.Context, id string) (*PlayerStats, error)
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*PlayerStats, error)
	// Update applies fn to the player's record (creating it if absent)
	// under the per-player lock. If fn returns an error the record is left
	// unchanged.
	Update(ctx context.Context, id string, fn func(*PlayerStats) error) error
	// List returns all players ordered by level then xp, descending.
	List(ctx context.Context) ([]PlayerStats, error)
}

// InventoryRepository owns Inventory records, created lazily like players.
type InventoryRepository interface {
	Get(ctx context.Context, playerID string) (*Inventory, error)
	Update(ctx context.Context, playerID string, fn func(*Inventory) error) error
}

// ClanRepository owns Clan records, indexed by id for O(1) lookup. Name and
// tag uniqueness is case-insensitive and enforced at Create.
type ClanRepository interface {
	Create(ctx context.Context, c *Clan) error
	GetByID(ctx context.Context, id string) (*Clan, error)
	GetByName(ctx context.Context, name string) (*Clan, error)
	Update(ctx context.Context, id string, fn func(*Clan) error) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Clan, error)
}

// InviteRepository tracks pending clan invites per player, keyed by
// lowercase clan name. Empty sets are pruned.
type InviteRepository interface {
	Add(ctx context.Context, playerID, clanName string) error
	Remove(ctx context.Context, playerID, clanName string) error
	Has(ctx context.Context, playerID, clanName string) (bool, error)
	List(ctx context.Context, playerID string) ([]string, error)
}

// MissionRepository owns per-player mission assignments.
type MissionRepository interface {
	// Get returns the player's assignment or ErrNotFound.
	Get(ctx context.Context, playerID string) (*MissionSet, error)
	Save(ctx context.Context, set *MissionSet) error
	// Update applies fn to the existing assignment under the per-player
	// lock; ErrNotFound if the player has none.
	Update(ctx context.Context, playerID string, fn func(*MissionSet) error) error
	Delete(ctx context.Context, playerID string) error
}
