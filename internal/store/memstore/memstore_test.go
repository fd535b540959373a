package memstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/event"
	"github.com/mlindholt/discord-guildbot/internal/store"
	"github.com/mlindholt/discord-guildbot/internal/store/memstore"
)

var testClk = clock.Real{}

func TestPlayerRepo_GetOrCreate(t *testing.T) {
	repo := memstore.NewPlayerRepo(testClk)

	p, err := repo.GetOrCreate(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if p.Level != 1 || p.XP != 0 || p.Coins != 0 {
		t.Errorf("defaults = level %d, xp %d, coins %d; want 1, 0, 0", p.Level, p.XP, p.Coins)
	}

	// Second call returns the same record, not a fresh one.
	err = repo.Update(context.Background(), "p1", func(ps *store.PlayerStats) error {
		ps.Coins = 42
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	again, _ := repo.GetOrCreate(context.Background(), "p1")
	if again.Coins != 42 {
		t.Errorf("coins = %d, want 42", again.Coins)
	}
}

func TestPlayerRepo_Get_NotFound(t *testing.T) {
	repo := memstore.NewPlayerRepo(testClk)
	if _, err := repo.Get(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestPlayerRepo_Update_FailureLeavesRecordUntouched(t *testing.T) {
	repo := memstore.NewPlayerRepo(testClk)
	_ = repo.Update(context.Background(), "p1", func(p *store.PlayerStats) error {
		p.Coins = 100
		return nil
	})

	boom := errors.New("boom")
	err := repo.Update(context.Background(), "p1", func(p *store.PlayerStats) error {
		p.Coins = 0
		p.Level = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	p, _ := repo.Get(context.Background(), "p1")
	if p.Coins != 100 || p.Level != 1 {
		t.Errorf("record mutated on failed update: coins %d, level %d", p.Coins, p.Level)
	}
}

func TestPlayerRepo_Update_Concurrent(t *testing.T) {
	repo := memstore.NewPlayerRepo(testClk)

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = repo.Update(context.Background(), "p1", func(p *store.PlayerStats) error {
				p.Coins++
				return nil
			})
		}()
	}
	wg.Wait()

	p, _ := repo.Get(context.Background(), "p1")
	if p.Coins != workers {
		t.Errorf("coins = %d, want %d (lost updates)", p.Coins, workers)
	}
}

func TestPlayerRepo_List_Order(t *testing.T) {
	repo := memstore.NewPlayerRepo(testClk)
	seed := func(id string, level, xp int) {
		_ = repo.Update(context.Background(), id, func(p *store.PlayerStats) error {
			p.Level, p.XP = level, xp
			return nil
		})
	}
	seed("low", 2, 10)
	seed("high", 5, 0)
	seed("mid", 2, 90)

	players, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"high", "mid", "low"}
	for i, id := range want {
		if players[i].ID != id {
			t.Errorf("players[%d] = %s, want %s", i, players[i].ID, id)
		}
	}
}

func TestInventoryRepo_Update(t *testing.T) {
	repo := memstore.NewInventoryRepo()

	err := repo.Update(context.Background(), "p1", func(inv *store.Inventory) error {
		inv.Items = append(inv.Items, "bg-forest")
		inv.Equipped[store.SlotBackground] = "bg-forest"
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	inv, _ := repo.Get(context.Background(), "p1")
	if !inv.Owns("bg-forest") {
		t.Error("expected bg-forest to be owned")
	}
	if inv.Equipped[store.SlotBackground] != "bg-forest" {
		t.Errorf("equipped = %q", inv.Equipped[store.SlotBackground])
	}

	// Mutating the snapshot must not leak into the store.
	inv.Items[0] = "hacked"
	again, _ := repo.Get(context.Background(), "p1")
	if again.Items[0] != "bg-forest" {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestClanRepo_Uniqueness(t *testing.T) {
	repo := memstore.NewClanRepo()
	mk := func(id, name, tag string) *store.Clan {
		return &store.Clan{ID: id, Name: name, Tag: tag, Leader: "p1", Members: []string{"p1"}, Status: store.ClanActive}
	}

	if err := repo.Create(context.Background(), mk("c1", "Dragons", "DRG")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(context.Background(), mk("c2", "dragons", "XYZ")); !errors.Is(err, store.ErrNameTaken) {
		t.Errorf("duplicate name error = %v, want ErrNameTaken", err)
	}
	if err := repo.Create(context.Background(), mk("c3", "Phoenix", "drg")); !errors.Is(err, store.ErrTagTaken) {
		t.Errorf("duplicate tag error = %v, want ErrTagTaken", err)
	}

	// Deleting frees the name for reuse.
	if err := repo.Delete(context.Background(), "c1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Create(context.Background(), mk("c4", "Dragons", "DRG")); err != nil {
		t.Errorf("Create() after delete error = %v", err)
	}
}

func TestClanRepo_GetByName_CaseInsensitive(t *testing.T) {
	repo := memstore.NewClanRepo()
	_ = repo.Create(context.Background(), &store.Clan{ID: "c1", Name: "Dragons", Tag: "DRG", Leader: "p1"})

	c, err := repo.GetByName(context.Background(), "DRAGONS")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if c.ID != "c1" {
		t.Errorf("got clan %s, want c1", c.ID)
	}
}

func TestClanRepo_Update_NotFound(t *testing.T) {
	repo := memstore.NewClanRepo()
	err := repo.Update(context.Background(), "ghost", func(*store.Clan) error { return nil })
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestInviteRepo(t *testing.T) {
	repo := memstore.NewInviteRepo()
	ctx := context.Background()

	_ = repo.Add(ctx, "p1", "Dragons")
	_ = repo.Add(ctx, "p1", "Phoenix")

	has, _ := repo.Has(ctx, "p1", "dragons")
	if !has {
		t.Error("expected case-insensitive invite lookup to succeed")
	}

	list, _ := repo.List(ctx, "p1")
	if len(list) != 2 {
		t.Fatalf("invites = %d, want 2", len(list))
	}

	_ = repo.Remove(ctx, "p1", "DRAGONS")
	_ = repo.Remove(ctx, "p1", "phoenix")

	list, _ = repo.List(ctx, "p1")
	if len(list) != 0 {
		t.Errorf("invites = %d after removal, want 0", len(list))
	}
	// Removing from an empty set is a no-op.
	if err := repo.Remove(ctx, "p1", "ghost"); err != nil {
		t.Errorf("Remove() on empty set error = %v", err)
	}
}

func TestMissionRepo(t *testing.T) {
	repo := memstore.NewMissionRepo()
	ctx := context.Background()

	if _, err := repo.Get(ctx, "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if err := repo.Update(ctx, "p1", func(*store.MissionSet) error { return nil }); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}

	set := &store.MissionSet{
		PlayerID:   "p1",
		Daily:      []store.MissionInstance{{TemplateID: "daily-raids", Goal: 3}},
		AssignedAt: time.Now().UTC(),
	}
	if err := repo.Save(ctx, set); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	err := repo.Update(ctx, "p1", func(s *store.MissionSet) error {
		s.Daily[0].Progress = 2
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := repo.Get(ctx, "p1")
	if got.Daily[0].Progress != 2 {
		t.Errorf("progress = %d, want 2", got.Daily[0].Progress)
	}

	_ = repo.Delete(ctx, "p1")
	if _, err := repo.Get(ctx, "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestEventStore(t *testing.T) {
	s := memstore.NewEventStore(testClk)
	ctx := context.Background()

	err := s.Append(ctx,
		event.Event{AggregateID: "a1", Type: event.AuctionStarted, Version: 1},
		event.Event{AggregateID: "a1", Type: event.AuctionBid, Version: 2},
		event.Event{AggregateID: "p1", Type: event.PlayerCredited, Version: 0},
	)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	byAgg, _ := s.Load(ctx, "a1")
	if len(byAgg) != 2 {
		t.Errorf("Load(a1) = %d events, want 2", len(byAgg))
	}
	for _, e := range byAgg {
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Errorf("event missing id or timestamp: %+v", e)
		}
	}

	byType, _ := s.LoadByType(ctx, event.PlayerCredited)
	if len(byType) != 1 {
		t.Errorf("LoadByType = %d events, want 1", len(byType))
	}
}
