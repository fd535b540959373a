package catalog_test

import (
	"path/filepath"
	"testing"

	"github.com/mlindholt/discord-guildbot/internal/catalog"
)

func TestLoad(t *testing.T) {
	c, err := catalog.Load(filepath.Join("testdata", "catalog.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := len(c.Items()); got != 6 {
		t.Errorf("items = %d, want 6", got)
	}
	if got := len(c.DailyTemplates()); got != 4 {
		t.Errorf("daily templates = %d, want 4", got)
	}
	if got := len(c.WeeklyTemplates()); got != 1 {
		t.Errorf("weekly templates = %d, want 1", got)
	}
	if got := len(c.Milestones()); got != 3 {
		t.Errorf("regular milestones = %d, want 3", got)
	}

	secret, ok := c.SecretMilestone()
	if !ok {
		t.Fatal("expected a secret milestone")
	}
	if secret.RoleName != "Veilwalker" {
		t.Errorf("secret role = %q, want %q", secret.RoleName, "Veilwalker")
	}

	it, ok := c.Item("trophy-kardec")
	if !ok {
		t.Fatal("expected trophy-kardec item")
	}
	if it.Rarity != catalog.Kardec {
		t.Errorf("rarity = %q, want kardec", it.Rarity)
	}
}

func TestNew_Validation(t *testing.T) {
	item := catalog.Item{ID: "i1", Name: "Item", Kind: "title", Rarity: catalog.Common}

	tests := []struct {
		name       string
		items      []catalog.Item
		missions   []catalog.MissionTemplate
		milestones []catalog.Milestone
		wantErr    bool
	}{
		{
			name:  "valid minimal",
			items: []catalog.Item{item},
		},
		{
			name:    "duplicate item id",
			items:   []catalog.Item{item, item},
			wantErr: true,
		},
		{
			name: "unknown rarity",
			items: []catalog.Item{
				{ID: "i2", Rarity: catalog.Rarity("cosmic")},
			},
			wantErr: true,
		},
		{
			name:  "mission zero goal",
			items: []catalog.Item{item},
			missions: []catalog.MissionTemplate{
				{ID: "m1", Event: "raid_created", Goal: 0},
			},
			wantErr: true,
		},
		{
			name:  "mission rewards unknown item",
			items: []catalog.Item{item},
			missions: []catalog.MissionTemplate{
				{ID: "m1", Event: "raid_created", Goal: 1, Reward: catalog.Reward{ItemID: "ghost"}},
			},
			wantErr: true,
		},
		{
			name: "milestone unknown kind",
			milestones: []catalog.Milestone{
				{ID: "ms1", Kind: catalog.MilestoneKind("weird"), Tiers: []catalog.Tier{{Goal: 1}}},
			},
			wantErr: true,
		},
		{
			name: "milestone decreasing tiers",
			milestones: []catalog.Milestone{
				{ID: "ms1", Kind: catalog.KindCounter, Stat: "level", Tiers: []catalog.Tier{{Goal: 10}, {Goal: 5}}},
			},
			wantErr: true,
		},
		{
			name: "milestone no tiers",
			milestones: []catalog.Milestone{
				{ID: "ms1", Kind: catalog.KindCounter, Stat: "level"},
			},
			wantErr: true,
		},
		{
			name: "collector tier without rarity",
			milestones: []catalog.Milestone{
				{ID: "ms1", Kind: catalog.KindRarityCollector, Tiers: []catalog.Tier{{Goal: 1}}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.New(tt.items, tt.missions, tt.milestones)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRarity_Ordering(t *testing.T) {
	ordered := []catalog.Rarity{
		catalog.Common, catalog.Uncommon, catalog.Rare,
		catalog.Legendary, catalog.Mythic, catalog.Kardec,
	}
	for i := 1; i < len(ordered); i++ {
		if !ordered[i-1].Below(ordered[i]) {
			t.Errorf("%s should be below %s", ordered[i-1], ordered[i])
		}
	}
	if catalog.Kardec.Below(catalog.Common) {
		t.Error("kardec should not be below common")
	}
	if catalog.Rarity("cosmic").Valid() {
		t.Error("unknown rarity should not be valid")
	}
	if got := catalog.Rarity("cosmic").Rank(); got != -1 {
		t.Errorf("unknown rarity rank = %d, want -1", got)
	}
}

func TestBelowRarity(t *testing.T) {
	c, err := catalog.Load(filepath.Join("testdata", "catalog.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	fillers := c.BelowRarity(catalog.Rare)
	if len(fillers) != 2 {
		t.Fatalf("fillers = %d, want 2", len(fillers))
	}
	for _, it := range fillers {
		if !it.Rarity.Below(catalog.Rare) {
			t.Errorf("item %s rarity %s is not below rare", it.ID, it.Rarity)
		}
	}
}
