package mission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mlindholt/discord-guildbot/internal/catalog"
	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/economy"
	"github.com/mlindholt/discord-guildbot/internal/effect"
	"github.com/mlindholt/discord-guildbot/internal/inventory"
	"github.com/mlindholt/discord-guildbot/internal/milestone"
	"github.com/mlindholt/discord-guildbot/internal/store"
	"github.com/mlindholt/discord-guildbot/internal/store/memstore"
)

// roleSink records granted roles and channel messages.
type roleSink struct {
	effect.Discard
	granted  []string
	messages []string
}

func (s *roleSink) SendMessage(_ context.Context, _, content string) (string, error) {
	s.messages = append(s.messages, content)
	return "board-1", nil
}

func (s *roleSink) GrantRole(_ context.Context, _, roleName string) error {
	s.granted = append(s.granted, roleName)
	return nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		[]catalog.Item{
			{ID: "bg-ember", Name: "Ember", Kind: catalog.KindBackground, Rarity: catalog.Rare, Price: 400},
			{ID: "trophy-kardec", Name: "Kardec Trophy", Kind: catalog.KindTrophy, Rarity: catalog.Kardec, MinBid: 1000},
		},
		[]catalog.MissionTemplate{
			{ID: "raid-3", Name: "Raid thrice", Event: "raid_created", Goal: 3, CounterStat: store.CounterRaidsCreated, Reward: catalog.Reward{XP: 50, Coins: 20}},
			{ID: "help-5", Name: "Help five", Event: "raid_helped", Goal: 5, CounterStat: store.CounterRaidsHelped, Reward: catalog.Reward{XP: 30, Coins: 10}},
			{ID: "rate-2", Name: "Rate twice", Event: "rating_given", Goal: 2, Reward: catalog.Reward{XP: 20}},
			{ID: "kardec-hunt", Name: "The Hunt", Event: "hunt_done", Goal: 1, Reward: catalog.Reward{ItemID: "trophy-kardec"}},
			{ID: "week-raids", Name: "Weekly raids", Event: "raid_created", Goal: 10, Weekly: true, CounterStat: store.CounterRaidsCreated, Reward: catalog.Reward{XP: 200, Coins: 100}},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return cat
}

func newTestManager(t *testing.T) (*Manager, *store.Repositories, *roleSink) {
	t.Helper()
	repos := memstore.Open(&clock.Mock{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	cat := testCatalog(t)
	sink := &roleSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tp := noop.NewTracerProvider()

	eco := economy.NewManager(repos.Players, repos.Events, logger, tp)
	inv := inventory.NewManager(repos.Inventories, cat, sink, logger, tp)
	ms := milestone.NewManager(repos.Players, repos.Inventories, cat, repos.Events, sink, "", logger, tp)
	rng := rand.New(rand.NewSource(42))
	m := NewManager(repos.Missions, repos.Players, cat, eco, inv, ms, repos.Events, sink, "", rng, logger, tp)
	return m, repos, sink
}

func TestAssign(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	set, err := m.Assign(ctx, "p1")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(set.Daily) != 3 {
		t.Errorf("got %d dailies, want 3", len(set.Daily))
	}
	if set.Weekly == nil {
		t.Fatal("no weekly assigned")
	}
	seen := map[string]bool{}
	for _, inst := range set.Daily {
		if seen[inst.TemplateID] {
			t.Errorf("daily template %q assigned twice", inst.TemplateID)
		}
		seen[inst.TemplateID] = true
	}

	// Assign is a no-op while an assignment exists.
	again, err := m.Assign(ctx, "p1")
	if err != nil {
		t.Fatalf("second Assign: %v", err)
	}
	if len(again.Daily) != 3 || again.Daily[0].TemplateID != set.Daily[0].TemplateID {
		t.Error("second Assign replaced the existing assignment")
	}
}

func TestAssignStoresAnnouncementRef(t *testing.T) {
	repos := memstore.Open(&clock.Mock{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	cat := testCatalog(t)
	sink := &roleSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tp := noop.NewTracerProvider()

	eco := economy.NewManager(repos.Players, repos.Events, logger, tp)
	inv := inventory.NewManager(repos.Inventories, cat, sink, logger, tp)
	ms := milestone.NewManager(repos.Players, repos.Inventories, cat, repos.Events, sink, "", logger, tp)
	rng := rand.New(rand.NewSource(42))
	m := NewManager(repos.Missions, repos.Players, cat, eco, inv, ms, repos.Events, sink, "mission-board", rng, logger, tp)
	ctx := context.Background()

	set, err := m.Assign(ctx, "p1")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(sink.messages) != 1 {
		t.Fatalf("got %d announcements, want 1", len(sink.messages))
	}
	for _, inst := range set.Daily {
		if inst.MessageRef != "board-1" {
			t.Errorf("daily %q ref = %q, want %q", inst.TemplateID, inst.MessageRef, "board-1")
		}
	}
	if set.Weekly == nil || set.Weekly.MessageRef != "board-1" {
		t.Errorf("weekly ref not stored: %+v", set.Weekly)
	}

	stored, err := repos.Missions.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Missions.Get: %v", err)
	}
	for _, inst := range stored.Daily {
		if inst.MessageRef != "board-1" {
			t.Errorf("persisted daily %q ref = %q, want %q", inst.TemplateID, inst.MessageRef, "board-1")
		}
	}
}

func TestAssignScalesGoals(t *testing.T) {
	m, repos, _ := newTestManager(t)
	ctx := context.Background()

	err := repos.Players.Update(ctx, "p1", func(p *store.PlayerStats) error {
		p.Counters[store.CounterRaidsCreated] = 60
		return nil
	})
	if err != nil {
		t.Fatalf("seeding counter: %v", err)
	}

	set, err := m.Assign(ctx, "p1")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	check := func(inst store.MissionInstance) {
		tmpl, _ := testCatalog(t).Template(inst.TemplateID)
		if tmpl.CounterStat == store.CounterRaidsCreated {
			want := ScaledGoal(tmpl.Goal, 60)
			if inst.Goal != want {
				t.Errorf("%s goal = %d, want %d", inst.TemplateID, inst.Goal, want)
			}
		}
	}
	for _, inst := range set.Daily {
		check(inst)
	}
	check(*set.Weekly)
}

func TestScaledGoal(t *testing.T) {
	tests := []struct {
		goal, counter, want int
	}{
		{5, 0, 5},
		{5, 9, 5},
		{5, 10, 6},
		{5, 49, 6},
		{5, 60, 8},
		{5, 149, 8},
		{5, 150, 10},
		{5, 499, 10},
		{5, 500, 13},
		{1, 0, 1},
	}
	for _, tt := range tests {
		if got := ScaledGoal(tt.goal, tt.counter); got != tt.want {
			t.Errorf("ScaledGoal(%d, %d) = %d, want %d", tt.goal, tt.counter, got, tt.want)
		}
	}
}

func TestRareRewardRollNeedsHighLevel(t *testing.T) {
	m, repos, _ := newTestManager(t)
	ctx := context.Background()

	// Level 1: the roll never happens.
	for i := 0; i < 50; i++ {
		set, err := m.Assign(ctx, "low")
		if err != nil {
			t.Fatalf("Assign: %v", err)
		}
		for _, inst := range set.Daily {
			if inst.RewardItemID != "" {
				t.Fatal("level 1 player rolled a rare reward")
			}
		}
		if err := m.Reset(ctx, "low"); err != nil {
			t.Fatalf("Reset: %v", err)
		}
	}

	// Level 11: roughly one in five instances rolls the rare pool.
	err := repos.Players.Update(ctx, "high", func(p *store.PlayerStats) error {
		p.Level = 11
		return nil
	})
	if err != nil {
		t.Fatalf("seeding level: %v", err)
	}
	rolled := 0
	for i := 0; i < 100; i++ {
		set, err := m.Assign(ctx, "high")
		if err != nil {
			t.Fatalf("Assign: %v", err)
		}
		for _, inst := range set.Daily {
			if inst.RewardItemID != "" {
				if inst.RewardItemID != "bg-ember" {
					t.Fatalf("rolled reward %q is not from the rare pool", inst.RewardItemID)
				}
				rolled++
			}
		}
		if err := m.Reset(ctx, "high"); err != nil {
			t.Fatalf("Reset: %v", err)
		}
	}
	if rolled == 0 {
		t.Error("level 11 player never rolled a rare reward in 300 instances")
	}
	if rolled == 300 {
		t.Error("every instance rolled a rare reward")
	}
}

func TestAdvanceAndCollect(t *testing.T) {
	m, repos, _ := newTestManager(t)
	ctx := context.Background()

	set := &store.MissionSet{
		PlayerID: "p1",
		Daily: []store.MissionInstance{
			{TemplateID: "raid-3", Goal: 3},
			{TemplateID: "rate-2", Goal: 2},
		},
		Weekly: &store.MissionInstance{TemplateID: "week-raids", Goal: 10},
	}
	if err := repos.Missions.Save(ctx, set); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Matching instances advance together; non-matching stay put.
	if _, err := m.Advance(ctx, "p1", "raid_created", 2); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	got, err := repos.Missions.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Daily[0].Progress != 2 || got.Weekly.Progress != 2 {
		t.Errorf("progress = daily %d weekly %d, want 2 and 2", got.Daily[0].Progress, got.Weekly.Progress)
	}
	if got.Daily[1].Progress != 0 {
		t.Errorf("non-matching instance advanced to %d", got.Daily[1].Progress)
	}

	// Completing stops at the goal.
	if _, err := m.Advance(ctx, "p1", "raid_created", 5); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	got, err = repos.Missions.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Daily[0].Completed || got.Daily[0].Progress != 3 {
		t.Errorf("daily: completed=%v progress=%d, want true 3", got.Daily[0].Completed, got.Daily[0].Progress)
	}

	// Collect pays the template reward through the ledger.
	res, report, err := m.Collect(ctx, "p1", "raid-3")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !res.Collected || res.XP != 50 || res.Coins != 20 {
		t.Errorf("collect result = %+v, want collected with 50xp/20c", res)
	}
	if !report.AllOK() {
		t.Errorf("effects failed: %v", report.Failed())
	}
	p, err := repos.Players.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get player: %v", err)
	}
	if p.Coins != 20 {
		t.Errorf("coins = %d, want 20", p.Coins)
	}

	// Second collect is a no-op.
	res, _, err = m.Collect(ctx, "p1", "raid-3")
	if err != nil {
		t.Fatalf("second Collect: %v", err)
	}
	if res.Collected {
		t.Error("second collect paid out again")
	}
	p, _ = repos.Players.Get(ctx, "p1")
	if p.Coins != 20 {
		t.Errorf("coins after double collect = %d, want 20", p.Coins)
	}
}

func TestCollectErrors(t *testing.T) {
	m, repos, _ := newTestManager(t)
	ctx := context.Background()

	_, _, err := m.Collect(ctx, "p1", "raid-3")
	if !errors.Is(err, ErrNoAssignment) {
		t.Errorf("Collect error = %v, want ErrNoAssignment", err)
	}

	set := &store.MissionSet{
		PlayerID: "p1",
		Daily:    []store.MissionInstance{{TemplateID: "raid-3", Goal: 3, Progress: 1}},
	}
	if err := repos.Missions.Save(ctx, set); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, _, err = m.Collect(ctx, "p1", "raid-3")
	if !errors.Is(err, ErrMissionNotComplete) {
		t.Errorf("Collect error = %v, want ErrMissionNotComplete", err)
	}
	_, _, err = m.Collect(ctx, "p1", "never-assigned")
	if !errors.Is(err, ErrNoSuchMission) {
		t.Errorf("Collect error = %v, want ErrNoSuchMission", err)
	}
}

func TestCollectKardecItemGrantsRole(t *testing.T) {
	m, repos, sink := newTestManager(t)
	ctx := context.Background()

	set := &store.MissionSet{
		PlayerID: "p1",
		Daily:    []store.MissionInstance{{TemplateID: "kardec-hunt", Goal: 1, Progress: 1, Completed: true}},
	}
	if err := repos.Missions.Save(ctx, set); err != nil {
		t.Fatalf("Save: %v", err)
	}

	res, report, err := m.Collect(ctx, "p1", "kardec-hunt")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.ItemID != "trophy-kardec" {
		t.Errorf("item = %q, want trophy-kardec", res.ItemID)
	}
	if !report.AllOK() {
		t.Errorf("effects failed: %v", report.Failed())
	}
	if len(sink.granted) != 1 || sink.granted[0] != "Kardec Trophy" {
		t.Errorf("granted roles = %v, want [Kardec Trophy]", sink.granted)
	}

	inv, err := repos.Inventories.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get inventory: %v", err)
	}
	if !inv.Owns("trophy-kardec") {
		t.Error("reward item not granted")
	}
}

func TestAutoCollectDailies(t *testing.T) {
	m, repos, _ := newTestManager(t)
	ctx := context.Background()

	err := repos.Players.Update(ctx, "p1", func(p *store.PlayerStats) error {
		p.AutoCollect = true
		return nil
	})
	if err != nil {
		t.Fatalf("seeding auto-collect: %v", err)
	}
	set := &store.MissionSet{
		PlayerID: "p1",
		Daily:    []store.MissionInstance{{TemplateID: "raid-3", Goal: 3}},
		Weekly:   &store.MissionInstance{TemplateID: "week-raids", Goal: 3},
	}
	if err := repos.Missions.Save(ctx, set); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := m.Advance(ctx, "p1", "raid_created", 3); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	got, err := repos.Missions.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Daily[0].Collected {
		t.Error("completed daily not auto-collected")
	}
	// Weeklies are never auto-collected.
	if got.Weekly.Collected {
		t.Error("weekly was auto-collected")
	}

	p, err := repos.Players.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get player: %v", err)
	}
	if p.Coins != 20 {
		t.Errorf("coins = %d, want 20 from auto-collected daily", p.Coins)
	}
}

func TestAdvanceWithoutAssignmentIsNoop(t *testing.T) {
	m, _, _ := newTestManager(t)

	report, err := m.Advance(context.Background(), "nobody", "raid_created", 1)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(report.Outcomes) != 0 {
		t.Errorf("got %d outcomes, want 0", len(report.Outcomes))
	}
}
