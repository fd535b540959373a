// Package catalog holds the static item, mission and milestone definitions.
// The catalog is read-only configuration loaded once at startup; every other
// component resolves ids against it.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Item kinds that can be equipped on a profile slot.
const (
	KindBackground = "background"
	KindTitle      = "title"
	KindBorder     = "border"
	KindTrophy     = "trophy"
)

// Item is a single catalog item.
type Item struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Rarity Rarity `yaml:"rarity"`
	// Price is the shop price in coins.
	Price int `yaml:"price"`
	// MinBid is the minimum opening bid when auctioned.
	MinBid int `yaml:"min_bid"`
}

// Equippable reports whether the item can occupy a profile slot.
func (i Item) Equippable() bool {
	switch i.Kind {
	case KindBackground, KindTitle, KindBorder:
		return true
	}
	return false
}

// Reward is what collecting a mission pays out: either an item or xp/coins.
type Reward struct {
	XP     int    `yaml:"xp"`
	Coins  int    `yaml:"coins"`
	ItemID string `yaml:"item_id"`
}

// MissionTemplate defines a daily or weekly mission.
type MissionTemplate struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Event string `yaml:"event"`
	Goal  int    `yaml:"goal"`
	// Weekly templates are assigned one per player; the rest are dailies.
	Weekly bool `yaml:"weekly"`
	// CounterStat names the player counter that drives difficulty scaling.
	// Empty means the goal is never scaled.
	CounterStat string `yaml:"counter_stat"`
	Reward      Reward `yaml:"reward"`
}

// MilestoneKind selects how milestone progress is measured.
type MilestoneKind string

// Milestone kinds.
const (
	KindCounter           MilestoneKind = "counter"
	KindRarityCollector   MilestoneKind = "rarity_collector"
	KindVersatilityMaster MilestoneKind = "versatility_master"
)

// Tier is one step of a milestone. Goal is the threshold; Rarity and Level
// are only meaningful for the collector and versatility kinds.
type Tier struct {
	Goal   int    `yaml:"goal"`
	Rarity Rarity `yaml:"rarity,omitempty"`
	Level  int    `yaml:"level,omitempty"`
}

// Milestone is a long-horizon tiered achievement definition.
type Milestone struct {
	ID   string        `yaml:"id"`
	Name string        `yaml:"name"`
	Kind MilestoneKind `yaml:"kind"`
	// Stat is the player stat evaluated by counter milestones, e.g.
	// "raids_created", "level" or "coins".
	Stat  string `yaml:"stat,omitempty"`
	Tiers []Tier `yaml:"tiers"`
	// Secret milestones unlock only once every regular milestone is done.
	Secret bool `yaml:"secret"`
	// RoleName is the distinguished role granted on completing a secret
	// milestone.
	RoleName string `yaml:"role_name,omitempty"`
}

type fileFormat struct {
	Items      []Item            `yaml:"items"`
	Missions   []MissionTemplate `yaml:"missions"`
	Milestones []Milestone       `yaml:"milestones"`
}

// Catalog is the loaded, validated definition set.
type Catalog struct {
	items      []Item
	missions   []MissionTemplate
	milestones []Milestone
	byID       map[string]Item
}

// Load reads and validates a catalog YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	return New(f.Items, f.Missions, f.Milestones)
}

// New builds a catalog from already-parsed definitions.
func New(items []Item, missions []MissionTemplate, milestones []Milestone) (*Catalog, error) {
	c := &Catalog{
		items:      items,
		missions:   missions,
		milestones: milestones,
		byID:       make(map[string]Item, len(items)),
	}
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("item %q has no id", it.Name)
		}
		if _, dup := c.byID[it.ID]; dup {
			return nil, fmt.Errorf("duplicate item id %q", it.ID)
		}
		if !it.Rarity.Valid() {
			return nil, fmt.Errorf("item %q has unknown rarity %q", it.ID, it.Rarity)
		}
		c.byID[it.ID] = it
	}
	for _, m := range missions {
		if m.Goal < 1 {
			return nil, fmt.Errorf("mission %q goal must be at least 1, got %d", m.ID, m.Goal)
		}
		if m.Reward.ItemID != "" {
			if _, ok := c.byID[m.Reward.ItemID]; !ok {
				return nil, fmt.Errorf("mission %q rewards unknown item %q", m.ID, m.Reward.ItemID)
			}
		}
	}
	for _, ms := range milestones {
		switch ms.Kind {
		case KindCounter, KindRarityCollector, KindVersatilityMaster:
		default:
			return nil, fmt.Errorf("milestone %q has unknown kind %q", ms.ID, ms.Kind)
		}
		if len(ms.Tiers) == 0 {
			return nil, fmt.Errorf("milestone %q has no tiers", ms.ID)
		}
		prev := 0
		for i, tier := range ms.Tiers {
			if tier.Goal < prev {
				return nil, fmt.Errorf("milestone %q tier %d goal %d decreases below %d", ms.ID, i, tier.Goal, prev)
			}
			prev = tier.Goal
			if ms.Kind == KindRarityCollector && !tier.Rarity.Valid() {
				return nil, fmt.Errorf("milestone %q tier %d has unknown rarity %q", ms.ID, i, tier.Rarity)
			}
		}
	}
	return c, nil
}

// Item resolves an item id.
func (c *Catalog) Item(id string) (Item, bool) {
	it, ok := c.byID[id]
	return it, ok
}

// Items returns all items.
func (c *Catalog) Items() []Item { return c.items }

// ByRarity returns all items of exactly the given rarity.
func (c *Catalog) ByRarity(r Rarity) []Item {
	var out []Item
	for _, it := range c.items {
		if it.Rarity == r {
			out = append(out, it)
		}
	}
	return out
}

// BelowRarity returns all items with rarity strictly below r.
func (c *Catalog) BelowRarity(r Rarity) []Item {
	var out []Item
	for _, it := range c.items {
		if it.Rarity.Below(r) {
			out = append(out, it)
		}
	}
	return out
}

// DailyTemplates returns the daily mission templates.
func (c *Catalog) DailyTemplates() []MissionTemplate {
	var out []MissionTemplate
	for _, m := range c.missions {
		if !m.Weekly {
			out = append(out, m)
		}
	}
	return out
}

// WeeklyTemplates returns the weekly mission templates.
func (c *Catalog) WeeklyTemplates() []MissionTemplate {
	var out []MissionTemplate
	for _, m := range c.missions {
		if m.Weekly {
			out = append(out, m)
		}
	}
	return out
}

// Template resolves a mission template id.
func (c *Catalog) Template(id string) (MissionTemplate, bool) {
	for _, m := range c.missions {
		if m.ID == id {
			return m, true
		}
	}
	return MissionTemplate{}, false
}

// Milestones returns the regular (non-secret) milestones in definition order.
func (c *Catalog) Milestones() []Milestone {
	var out []Milestone
	for _, m := range c.milestones {
		if !m.Secret {
			out = append(out, m)
		}
	}
	return out
}

// SecretMilestone returns the secret milestone, if the catalog defines one.
func (c *Catalog) SecretMilestone() (Milestone, bool) {
	for _, m := range c.milestones {
		if m.Secret {
			return m, true
		}
	}
	return Milestone{}, false
}
