package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/config"
	"github.com/mlindholt/discord-guildbot/internal/store"

	// Import drivers so their init() functions register them.
	_ "github.com/mlindholt/discord-guildbot/internal/store/memstore"
	_ "github.com/mlindholt/discord-guildbot/internal/store/postgres"
)

// fakeDriver is a store.Driver that always succeeds without opening anything.
func fakeDriver(_ context.Context, _ config.DatabaseConfig, _ clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{}, nil
}

func TestOpen(t *testing.T) {
	store.Register("test-driver", fakeDriver)

	tests := []struct {
		name    string
		driver  string
		wantErr bool
	}{
		{
			name:   "registered driver succeeds",
			driver: "test-driver",
		},
		{
			name:   "memory driver registered",
			driver: "memory",
		},
		{
			name:    "unknown driver fails",
			driver:  "nonexistent",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos, err := store.Open(context.Background(), config.DatabaseConfig{Driver: tt.driver}, clock.Real{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.driver) {
				t.Errorf("error %q does not name the driver", err)
			}
			if !tt.wantErr && repos == nil {
				t.Error("Open() returned nil repositories")
			}
		})
	}
}

func TestPlayerStats_Counter(t *testing.T) {
	p := &store.PlayerStats{}
	if got := p.Counter(store.CounterRaidsCreated); got != 0 {
		t.Errorf("missing counter = %d, want 0", got)
	}
	p.Counters = map[string]int{store.CounterRaidsCreated: 7}
	if got := p.Counter(store.CounterRaidsCreated); got != 7 {
		t.Errorf("counter = %d, want 7", got)
	}
}

func TestClan_Members(t *testing.T) {
	c := &store.Clan{Leader: "p1", Members: []string{"p1", "p2", "p3"}}
	if !c.HasMember("p2") {
		t.Error("expected p2 to be a member")
	}
	c.RemoveMember("p2")
	if c.HasMember("p2") {
		t.Error("p2 still a member after RemoveMember")
	}
	if len(c.Members) != 2 {
		t.Errorf("members = %d, want 2", len(c.Members))
	}
}
