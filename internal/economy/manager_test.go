package economy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/event"
	"github.com/mlindholt/discord-guildbot/internal/store"
	"github.com/mlindholt/discord-guildbot/internal/store/memstore"
)

func newTestManager(t *testing.T) (*Manager, *store.Repositories) {
	t.Helper()
	repos := memstore.Open(&clock.Mock{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(repos.Players, repos.Events, logger, noop.NewTracerProvider()), repos
}

func TestCreditLevelCascade(t *testing.T) {
	tests := []struct {
		name       string
		xp         int
		wantLevel  int
		wantXP     int
		wantGained int
	}{
		{name: "no level", xp: 50, wantLevel: 1, wantXP: 50, wantGained: 0},
		{name: "exact threshold", xp: 100, wantLevel: 2, wantXP: 0, wantGained: 1},
		{name: "two levels in one credit", xp: 350, wantLevel: 3, wantXP: 50, wantGained: 2},
		{name: "three levels", xp: 650, wantLevel: 4, wantXP: 50, wantGained: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t)
			res, err := m.Credit(context.Background(), "p1", tt.xp, 0, "test")
			if err != nil {
				t.Fatalf("Credit: %v", err)
			}
			if res.Level != tt.wantLevel {
				t.Errorf("level = %d, want %d", res.Level, tt.wantLevel)
			}
			if res.XP != tt.wantXP {
				t.Errorf("xp = %d, want %d", res.XP, tt.wantXP)
			}
			if res.LevelsGained != tt.wantGained {
				t.Errorf("levels gained = %d, want %d", res.LevelsGained, tt.wantGained)
			}
		})
	}
}

func TestCreditCoins(t *testing.T) {
	m, repos := newTestManager(t)

	if _, err := m.Credit(context.Background(), "p1", 0, 75, "mission"); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	p, err := repos.Players.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Coins != 75 {
		t.Errorf("coins = %d, want 75", p.Coins)
	}
	if p.Level != 1 || p.XP != 0 {
		t.Errorf("level/xp = %d/%d, want 1/0", p.Level, p.XP)
	}
}

func TestCreditAppendsEvents(t *testing.T) {
	m, repos := newTestManager(t)

	if _, err := m.Credit(context.Background(), "p1", 150, 10, "raid"); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	events, err := repos.Events.Load(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != event.PlayerCredited {
		t.Errorf("first event type = %s, want %s", events[0].Type, event.PlayerCredited)
	}
	if events[1].Type != event.PlayerLeveled {
		t.Errorf("second event type = %s, want %s", events[1].Type, event.PlayerLeveled)
	}
}

func TestDebit(t *testing.T) {
	m, repos := newTestManager(t)
	if _, err := m.Credit(context.Background(), "p1", 0, 100, "seed"); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	if err := m.Debit(context.Background(), "p1", 40, "purchase"); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	p, err := repos.Players.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Coins != 60 {
		t.Errorf("coins = %d, want 60", p.Coins)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	m, repos := newTestManager(t)
	if _, err := m.Credit(context.Background(), "p1", 0, 30, "seed"); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	err := m.Debit(context.Background(), "p1", 31, "purchase")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Debit error = %v, want ErrInsufficientFunds", err)
	}

	// The balance must be untouched after a failed debit.
	p, err := repos.Players.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Coins != 30 {
		t.Errorf("coins = %d, want 30", p.Coins)
	}
}

func TestIncrementCounter(t *testing.T) {
	m, repos := newTestManager(t)

	for i := 0; i < 3; i++ {
		if err := m.IncrementCounter(context.Background(), "p1", store.CounterRaidsCreated, 1); err != nil {
			t.Fatalf("IncrementCounter: %v", err)
		}
	}

	p, err := repos.Players.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := p.Counter(store.CounterRaidsCreated); got != 3 {
		t.Errorf("raids_created = %d, want 3", got)
	}
}

func TestSetClassImmutable(t *testing.T) {
	m, repos := newTestManager(t)

	if err := m.SetClass(context.Background(), "p1", "warrior"); err != nil {
		t.Fatalf("SetClass: %v", err)
	}
	err := m.SetClass(context.Background(), "p1", "mage")
	if !errors.Is(err, ErrClassAlreadySet) {
		t.Fatalf("second SetClass error = %v, want ErrClassAlreadySet", err)
	}

	p, err := repos.Players.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.ClassID != "warrior" {
		t.Errorf("class = %q, want warrior", p.ClassID)
	}
	if p.ClassLevels["warrior"] != 1 {
		t.Errorf("class level = %d, want 1", p.ClassLevels["warrior"])
	}
}

func TestCreditClassXP(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.SetClass(context.Background(), "p1", "warrior"); err != nil {
		t.Fatalf("SetClass: %v", err)
	}
	level, err := m.CreditClassXP(context.Background(), "p1", "warrior", 350)
	if err != nil {
		t.Fatalf("CreditClassXP: %v", err)
	}
	if level != 3 {
		t.Errorf("class level = %d, want 3", level)
	}
}

func TestSetAutoCollectAndLocale(t *testing.T) {
	m, repos := newTestManager(t)

	if err := m.SetAutoCollect(context.Background(), "p1", true); err != nil {
		t.Fatalf("SetAutoCollect: %v", err)
	}
	if err := m.SetLocale(context.Background(), "p1", "dk"); err != nil {
		t.Fatalf("SetLocale: %v", err)
	}

	p, err := repos.Players.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !p.AutoCollect {
		t.Error("auto-collect not set")
	}
	if p.Locale != "dk" {
		t.Errorf("locale = %q, want dk", p.Locale)
	}
}

func TestListOrdering(t *testing.T) {
	m, _ := newTestManager(t)

	if _, err := m.Credit(context.Background(), "low", 10, 0, "seed"); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := m.Credit(context.Background(), "high", 350, 0, "seed"); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	players, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("got %d players, want 2", len(players))
	}
	if players[0].ID != "high" {
		t.Errorf("first player = %s, want high", players[0].ID)
	}
}
