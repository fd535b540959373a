// Package memstore provides the in-memory store driver. All engine state
// lives in process and is lost on restart; every record is guarded by a
// per-entity lock so concurrent handlers cannot interleave read-modify-write
// sequences on the same player or clan.
package memstore

import (
	"context"

	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/config"
	"github.com/mlindholt/discord-guildbot/internal/store"
)

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("memory", openMemory)
}

// openMemory is the store.Driver for the "memory" backend.
func openMemory(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return Open(clk), nil
}

// Open builds a fresh set of in-memory repositories. Exported so tests can
// construct one without going through the driver registry.
func Open(clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Players:     NewPlayerRepo(clk),
		Inventories: NewInventoryRepo(),
		Clans:       NewClanRepo(),
		Invites:     NewInviteRepo(),
		Missions:    NewMissionRepo(),
		Events:      NewEventStore(clk),
		Closer:      closerFunc(func() error { return nil }),
		Ping:        func(context.Context) error { return nil },
	}
}
