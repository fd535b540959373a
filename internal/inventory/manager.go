// Package inventory manages item ownership and the three profile equipment
// slots.
package inventory

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mlindholt/discord-guildbot/internal/catalog"
	"github.com/mlindholt/discord-guildbot/internal/effect"
	"github.com/mlindholt/discord-guildbot/internal/store"
)

// Errors returned by inventory operations.
var (
	ErrUnknownItem       = errors.New("item not in catalog")
	ErrItemNotOwned      = errors.New("item not owned")
	ErrItemNotEquippable = errors.New("item cannot be equipped")
)

// Manager handles inventory operations.
type Manager struct {
	inventories store.InventoryRepository
	catalog     *catalog.Catalog
	sink        effect.Sink
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewManager returns a new inventory Manager.
func NewManager(inventories store.InventoryRepository, cat *catalog.Catalog, sink effect.Sink, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		inventories: inventories,
		catalog:     cat,
		sink:        sink,
		logger:      logger,
		tracer:      tp.Tracer("github.com/mlindholt/discord-guildbot/internal/inventory"),
	}
}

// Get returns the player's inventory, creating an empty one on first access.
func (m *Manager) Get(ctx context.Context, playerID string) (*store.Inventory, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	return m.inventories.Get(ctx, playerID)
}

// Grant adds an item to the player's inventory. Granting an item the player
// already owns is a no-op; the returned bool reports whether ownership
// actually changed.
func (m *Manager) Grant(ctx context.Context, playerID, itemID string) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Grant",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("item_id", itemID),
		),
	)
	defer span.End()

	if _, ok := m.catalog.Item(itemID); !ok {
		return false, ErrUnknownItem
	}

	granted := false
	err := m.inventories.Update(ctx, playerID, func(inv *store.Inventory) error {
		if inv.Owns(itemID) {
			return nil
		}
		inv.Items = append(inv.Items, itemID)
		granted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if granted {
		m.logger.InfoContext(ctx, "item granted",
			slog.String("player_id", playerID),
			slog.String("item_id", itemID),
		)
	}
	return granted, nil
}

// Equip places an owned item into its matching profile slot, replacing
// whatever occupied the slot, and requests a profile re-render.
func (m *Manager) Equip(ctx context.Context, playerID, itemID string) (*effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Equip",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("item_id", itemID),
		),
	)
	defer span.End()

	item, ok := m.catalog.Item(itemID)
	if !ok {
		return nil, ErrUnknownItem
	}
	if !item.Equippable() {
		return nil, ErrItemNotEquippable
	}

	err := m.inventories.Update(ctx, playerID, func(inv *store.Inventory) error {
		if !inv.Owns(itemID) {
			return ErrItemNotOwned
		}
		if inv.Equipped == nil {
			inv.Equipped = make(map[string]string)
		}
		inv.Equipped[item.Kind] = itemID
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := &effect.Report{}
	re := effect.RenderProfile(playerID)
	report.Record(re, "", m.sink.RenderProfile(ctx, playerID))
	if failed := report.Failed(); len(failed) > 0 {
		m.logger.WarnContext(ctx, "profile render failed after equip",
			slog.String("player_id", playerID),
			slog.Any("error", failed[0].Err),
		)
	}

	m.logger.InfoContext(ctx, "item equipped",
		slog.String("player_id", playerID),
		slog.String("item_id", itemID),
		slog.String("slot", item.Kind),
	)
	return report, nil
}

// OwnedByRarity counts the player's items per rarity. Milestone evaluation
// uses it for the collector kinds.
func (m *Manager) OwnedByRarity(ctx context.Context, playerID string) (map[catalog.Rarity]int, error) {
	inv, err := m.inventories.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	counts := make(map[catalog.Rarity]int)
	for _, id := range inv.Items {
		if item, ok := m.catalog.Item(id); ok {
			counts[item.Rarity]++
		}
	}
	return counts, nil
}
