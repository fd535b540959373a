// Package economy owns the per-player ledger: level, xp, coins, class and
// the named counters every other component feeds.
package economy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mlindholt/discord-guildbot/internal/event"
	"github.com/mlindholt/discord-guildbot/internal/store"
)

// Errors returned by ledger operations.
var (
	ErrInsufficientFunds = errors.New("insufficient coins")
	ErrClassAlreadySet   = errors.New("class already chosen")
)

// CreditResult reports the ledger state after a credit, including how many
// levels the xp cascaded through.
type CreditResult struct {
	Level        int
	XP           int
	Coins        int
	LevelsGained int
}

// Manager handles ledger operations.
type Manager struct {
	players store.PlayerRepository
	events  event.Store
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewManager returns a new ledger Manager.
func NewManager(players store.PlayerRepository, events event.Store, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		players: players,
		events:  events,
		logger:  logger,
		tracer:  tp.Tracer("github.com/mlindholt/discord-guildbot/internal/economy"),
	}
}

// GetOrCreate returns the player's stats, creating the default record on
// first access.
func (m *Manager) GetOrCreate(ctx context.Context, playerID string) (*store.PlayerStats, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.GetOrCreate",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	return m.players.GetOrCreate(ctx, playerID)
}

// Credit adds xp and coins and applies level-ups: every time xp reaches
// 100*level, a level is consumed. A single large credit can cascade through
// several levels.
func (m *Manager) Credit(ctx context.Context, playerID string, xp, coins int, reason string) (*CreditResult, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Credit",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.Int("xp", xp),
			attribute.Int("coins", coins),
		),
	)
	defer span.End()

	var result CreditResult
	err := m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
		p.XP += xp
		p.Coins += coins
		for p.XP >= 100*p.Level {
			p.XP -= 100 * p.Level
			p.Level++
			result.LevelsGained++
		}
		result.Level = p.Level
		result.XP = p.XP
		result.Coins = p.Coins
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("crediting player: %w", err)
	}

	m.appendEvent(ctx, playerID, event.PlayerCredited, event.BalanceChangeData{
		PlayerID: playerID, XP: xp, Coins: coins, Reason: reason,
	})
	if result.LevelsGained > 0 {
		m.appendEvent(ctx, playerID, event.PlayerLeveled, event.LevelUpData{
			PlayerID: playerID, Level: result.Level, Gained: result.LevelsGained,
		})
	}

	m.logger.InfoContext(ctx, "player credited",
		slog.String("player_id", playerID),
		slog.Int("xp", xp),
		slog.Int("coins", coins),
		slog.Int("levels_gained", result.LevelsGained),
		slog.String("reason", reason),
	)
	return &result, nil
}

// Debit removes coins, failing with ErrInsufficientFunds when the balance
// cannot cover the amount. Coins never go negative.
func (m *Manager) Debit(ctx context.Context, playerID string, coins int, reason string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Debit",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.Int("coins", coins),
		),
	)
	defer span.End()

	err := m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
		if p.Coins < coins {
			return ErrInsufficientFunds
		}
		p.Coins -= coins
		return nil
	})
	if err != nil {
		return err
	}

	m.appendEvent(ctx, playerID, event.PlayerDebited, event.BalanceChangeData{
		PlayerID: playerID, Coins: coins, Reason: reason,
	})

	m.logger.InfoContext(ctx, "player debited",
		slog.String("player_id", playerID),
		slog.Int("coins", coins),
		slog.String("reason", reason),
	)
	return nil
}

// IncrementCounter bumps a named counter, initializing it to zero first if
// the player has never touched it.
func (m *Manager) IncrementCounter(ctx context.Context, playerID, name string, delta int) error {
	ctx, span := m.tracer.Start(ctx, "Manager.IncrementCounter",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("counter", name),
			attribute.Int("delta", delta),
		),
	)
	defer span.End()

	return m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
		if p.Counters == nil {
			p.Counters = make(map[string]int)
		}
		p.Counters[name] += delta
		return nil
	})
}

// SetClass sets the player's class. The class is immutable once chosen.
func (m *Manager) SetClass(ctx context.Context, playerID, classID string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.SetClass",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("class_id", classID),
		),
	)
	defer span.End()

	return m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
		if p.ClassID != "" {
			return ErrClassAlreadySet
		}
		p.ClassID = classID
		if p.ClassLevels == nil {
			p.ClassLevels = make(map[string]int)
		}
		if p.ClassLevels[classID] == 0 {
			p.ClassLevels[classID] = 1
		}
		return nil
	})
}

// CreditClassXP adds xp to a specific class, leveling it with the same
// threshold rule as the main level. It returns the class's level afterwards.
func (m *Manager) CreditClassXP(ctx context.Context, playerID, classID string, xp int) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CreditClassXP",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("class_id", classID),
			attribute.Int("xp", xp),
		),
	)
	defer span.End()

	var level int
	err := m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
		if p.ClassLevels == nil {
			p.ClassLevels = make(map[string]int)
		}
		if p.ClassXP == nil {
			p.ClassXP = make(map[string]int)
		}
		if p.ClassLevels[classID] == 0 {
			p.ClassLevels[classID] = 1
		}
		p.ClassXP[classID] += xp
		for p.ClassXP[classID] >= 100*p.ClassLevels[classID] {
			p.ClassXP[classID] -= 100 * p.ClassLevels[classID]
			p.ClassLevels[classID]++
		}
		level = p.ClassLevels[classID]
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("crediting class xp: %w", err)
	}
	return level, nil
}

// SetAutoCollect toggles automatic collection of completed daily missions.
func (m *Manager) SetAutoCollect(ctx context.Context, playerID string, on bool) error {
	return m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
		p.AutoCollect = on
		return nil
	})
}

// SetLocale changes the player's shop locale.
func (m *Manager) SetLocale(ctx context.Context, playerID, locale string) error {
	return m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
		p.Locale = locale
		return nil
	})
}

// List returns all players ordered by level and xp.
func (m *Manager) List(ctx context.Context) ([]store.PlayerStats, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.List")
	defer span.End()

	return m.players.List(ctx)
}

func (m *Manager) appendEvent(ctx context.Context, aggregateID string, t event.Type, payload interface{}) {
	data, _ := json.Marshal(payload)
	evt := event.Event{
		AggregateID: aggregateID,
		Type:        t,
		Data:        data,
	}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append ledger event",
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
	}
}
