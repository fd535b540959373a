package milestone

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mlindholt/discord-guildbot/internal/catalog"
	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/effect"
	"github.com/mlindholt/discord-guildbot/internal/store"
	"github.com/mlindholt/discord-guildbot/internal/store/memstore"
)

// countingSink tallies outbound announcements and role operations.
type countingSink struct {
	effect.Discard
	messages []string
	ensured  []string
	granted  []string
}

func (s *countingSink) SendMessage(_ context.Context, _, content string) (string, error) {
	s.messages = append(s.messages, content)
	return "msg-1", nil
}

func (s *countingSink) EnsureRole(_ context.Context, roleName string) error {
	s.ensured = append(s.ensured, roleName)
	return nil
}

func (s *countingSink) GrantRole(_ context.Context, _, roleName string) error {
	s.granted = append(s.granted, roleName)
	return nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		[]catalog.Item{
			{ID: "bg-1", Name: "One", Kind: catalog.KindBackground, Rarity: catalog.Common},
			{ID: "bg-2", Name: "Two", Kind: catalog.KindBackground, Rarity: catalog.Common},
			{ID: "title-1", Name: "Three", Kind: catalog.KindTitle, Rarity: catalog.Uncommon},
		},
		nil,
		[]catalog.Milestone{
			{
				ID: "raider", Name: "Raider", Kind: catalog.KindCounter, Stat: store.CounterRaidsCreated,
				Tiers: []catalog.Tier{{Goal: 1}, {Goal: 5}, {Goal: 10}},
			},
			{
				ID: "collector", Name: "Collector", Kind: catalog.KindRarityCollector,
				Tiers: []catalog.Tier{{Goal: 2, Rarity: catalog.Common}, {Goal: 1, Rarity: catalog.Uncommon}},
			},
			{
				ID: "veilwalker", Name: "Beyond the Veil", Kind: catalog.KindCounter, Stat: "level",
				Tiers:  []catalog.Tier{{Goal: 2}},
				Secret: true, RoleName: "Veilwalker",
			},
		},
	)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return cat
}

func newTestManager(t *testing.T) (*Manager, *store.Repositories, *countingSink) {
	t.Helper()
	repos := memstore.Open(&clock.Mock{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	sink := &countingSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(repos.Players, repos.Inventories, testCatalog(t), repos.Events, sink, "announce-chan", logger, noop.NewTracerProvider())
	return m, repos, sink
}

func setCounter(t *testing.T, repos *store.Repositories, playerID, name string, v int) {
	t.Helper()
	err := repos.Players.Update(context.Background(), playerID, func(p *store.PlayerStats) error {
		p.Counters[name] = v
		return nil
	})
	if err != nil {
		t.Fatalf("setting counter: %v", err)
	}
}

func TestCheckNotifiesOncePerTier(t *testing.T) {
	m, repos, sink := newTestManager(t)
	ctx := context.Background()
	setCounter(t, repos, "p1", store.CounterRaidsCreated, 6)

	crossings, report, err := m.Check(ctx, "p1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(crossings) != 2 {
		t.Fatalf("got %d crossings, want 2 (tiers 0 and 1)", len(crossings))
	}
	if !report.AllOK() {
		t.Errorf("announcements failed: %v", report.Failed())
	}
	if len(sink.messages) != 2 {
		t.Errorf("got %d messages, want 2", len(sink.messages))
	}

	// A second check with no stat change must announce nothing.
	crossings, _, err = m.Check(ctx, "p1")
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if len(crossings) != 0 {
		t.Errorf("second check crossed %d tiers, want 0", len(crossings))
	}
	if len(sink.messages) != 2 {
		t.Errorf("second check sent messages: total %d, want 2", len(sink.messages))
	}

	// Crossing the next tier announces exactly once more.
	setCounter(t, repos, "p1", store.CounterRaidsCreated, 10)
	crossings, _, err = m.Check(ctx, "p1")
	if err != nil {
		t.Fatalf("third Check: %v", err)
	}
	if len(crossings) != 1 || crossings[0].Tier != 2 {
		t.Errorf("third check crossings = %v, want tier 2 only", crossings)
	}
}

func TestCheckStoresAnnouncementRef(t *testing.T) {
	m, repos, _ := newTestManager(t)
	ctx := context.Background()
	setCounter(t, repos, "p1", store.CounterRaidsCreated, 1)

	if _, _, err := m.Check(ctx, "p1"); err != nil {
		t.Fatalf("Check: %v", err)
	}

	p, err := repos.Players.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := p.Completed["raider"].MessageRef; got != "msg-1" {
		t.Errorf("message ref = %q, want msg-1", got)
	}
}

func TestCheckRarityCollector(t *testing.T) {
	m, repos, _ := newTestManager(t)
	ctx := context.Background()

	err := repos.Inventories.Update(ctx, "p1", func(inv *store.Inventory) error {
		inv.Items = []string{"bg-1", "bg-2"}
		return nil
	})
	if err != nil {
		t.Fatalf("seeding inventory: %v", err)
	}

	crossings, _, err := m.Check(ctx, "p1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(crossings) != 1 || crossings[0].MilestoneID != "collector" || crossings[0].Tier != 0 {
		t.Fatalf("crossings = %v, want collector tier 0", crossings)
	}

	// Owning the uncommon item crosses the second tier even though the
	// first used a different rarity.
	err = repos.Inventories.Update(ctx, "p1", func(inv *store.Inventory) error {
		inv.Items = append(inv.Items, "title-1")
		return nil
	})
	if err != nil {
		t.Fatalf("seeding inventory: %v", err)
	}
	crossings, _, err = m.Check(ctx, "p1")
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if len(crossings) != 1 || crossings[0].Tier != 1 {
		t.Errorf("crossings = %v, want collector tier 1", crossings)
	}
}

func TestSecretMilestoneUnlocksAfterAllComplete(t *testing.T) {
	m, repos, sink := newTestManager(t)
	ctx := context.Background()

	// Level 2+ would satisfy the secret tier, but it stays locked while
	// regular milestones are incomplete.
	err := repos.Players.Update(ctx, "p1", func(p *store.PlayerStats) error {
		p.Level = 5
		return nil
	})
	if err != nil {
		t.Fatalf("seeding level: %v", err)
	}
	crossings, _, err := m.Check(ctx, "p1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	for _, c := range crossings {
		if c.Secret {
			t.Fatal("secret milestone crossed before regular milestones complete")
		}
	}

	// Complete everything: counters and inventory.
	setCounter(t, repos, "p1", store.CounterRaidsCreated, 10)
	err = repos.Inventories.Update(ctx, "p1", func(inv *store.Inventory) error {
		inv.Items = []string{"bg-1", "bg-2", "title-1"}
		return nil
	})
	if err != nil {
		t.Fatalf("seeding inventory: %v", err)
	}

	crossings, report, err := m.Check(ctx, "p1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	var secretCrossed bool
	for _, c := range crossings {
		if c.Secret {
			secretCrossed = true
		}
	}
	if !secretCrossed {
		t.Fatal("secret milestone not crossed after completing all regular milestones")
	}
	if !report.AllOK() {
		t.Errorf("effects failed: %v", report.Failed())
	}
	if len(sink.ensured) != 1 || sink.ensured[0] != "Veilwalker" {
		t.Errorf("ensured roles = %v, want [Veilwalker]", sink.ensured)
	}
	if len(sink.granted) != 1 || sink.granted[0] != "Veilwalker" {
		t.Errorf("granted roles = %v, want [Veilwalker]", sink.granted)
	}
}

func TestProgress(t *testing.T) {
	m, repos, _ := newTestManager(t)
	ctx := context.Background()
	setCounter(t, repos, "p1", store.CounterRaidsCreated, 5)

	if _, _, err := m.Check(ctx, "p1"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	done, total, err := m.Progress(ctx, "p1", "raider")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if done != 2 || total != 3 {
		t.Errorf("progress = %d/%d, want 2/3", done, total)
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		done, total int
		wantFilled  int
	}{
		{0, 3, 0},
		{1, 2, 5},
		{2, 2, 10},
		{3, 3, 10},
	}
	for _, tt := range tests {
		bar := RenderBar(tt.done, tt.total)
		if got := strings.Count(bar, "■"); got != tt.wantFilled {
			t.Errorf("RenderBar(%d,%d) filled = %d, want %d", tt.done, tt.total, got, tt.wantFilled)
		}
		if got := strings.Count(bar, "□"); got != 10-tt.wantFilled {
			t.Errorf("RenderBar(%d,%d) empty = %d, want %d", tt.done, tt.total, got, 10-tt.wantFilled)
		}
	}
}
