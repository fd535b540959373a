// Package shop maintains the per-locale rotating shop window and sells its
// items. Windows are recomputed lazily: the first request after expiry rolls
// a new window for that locale only.
package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mlindholt/discord-guildbot/internal/catalog"
	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/economy"
	"github.com/mlindholt/discord-guildbot/internal/effect"
	"github.com/mlindholt/discord-guildbot/internal/inventory"
)

// Errors returned by shop operations.
var (
	ErrNotInShop = errors.New("item not in the current shop window")
)

// Window is one locale's shop rotation. FeatureID, when set, also appears in
// ItemIDs.
type Window struct {
	Locale    string
	ItemIDs   []string
	FeatureID string
	ExpiresAt time.Time
}

// Has reports whether the window offers the item.
func (w *Window) Has(itemID string) bool {
	for _, id := range w.ItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// Manager owns the shop windows.
type Manager struct {
	catalog   *catalog.Catalog
	economy   *economy.Manager
	inventory *inventory.Manager
	clk       clock.Clock
	length    time.Duration
	slots     int
	logger    *slog.Logger
	tracer    trace.Tracer

	mu      sync.Mutex
	windows map[string]*Window
	rng     *rand.Rand
}

// NewManager returns a new shop Manager. rng drives item selection and is
// guarded by the same mutex as the window map.
func NewManager(cat *catalog.Catalog, eco *economy.Manager, inv *inventory.Manager, clk clock.Clock, length time.Duration, slots int, rng *rand.Rand, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		catalog:   cat,
		economy:   eco,
		inventory: inv,
		clk:       clk,
		length:    length,
		slots:     slots,
		logger:    logger,
		tracer:    tp.Tracer("github.com/mlindholt/discord-guildbot/internal/shop"),
		windows:   make(map[string]*Window),
		rng:       rng,
	}
}

// Current returns the locale's active window, rolling a new one if the
// previous window has expired. Expiry is independent per locale.
func (m *Manager) Current(ctx context.Context, locale string) *Window {
	ctx, span := m.tracer.Start(ctx, "Manager.Current",
		trace.WithAttributes(attribute.String("locale", locale)),
	)
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()
	if w, ok := m.windows[locale]; ok && now.Before(w.ExpiresAt) {
		return w
	}

	w := m.roll(locale, now)
	m.windows[locale] = w
	m.logger.InfoContext(ctx, "shop window rotated",
		slog.String("locale", locale),
		slog.String("feature", w.FeatureID),
		slog.Int("items", len(w.ItemIDs)),
		slog.Time("expires_at", w.ExpiresAt),
	)
	return w
}

// Buy sells a window item to the player: the coins are debited first, then
// the item granted. The window is resolved against the player's locale.
func (m *Manager) Buy(ctx context.Context, playerID, itemID string) (*effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Buy",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("item_id", itemID),
		),
	)
	defer span.End()

	p, err := m.economy.GetOrCreate(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}

	w := m.Current(ctx, p.Locale)
	if !w.Has(itemID) {
		return nil, ErrNotInShop
	}
	item, ok := m.catalog.Item(itemID)
	if !ok {
		return nil, ErrNotInShop
	}

	if err := m.economy.Debit(ctx, playerID, item.Price, "shop:"+itemID); err != nil {
		return nil, err
	}
	if _, err := m.inventory.Grant(ctx, playerID, itemID); err != nil {
		// The debit went through; surface the grant failure rather than
		// attempting a refund, the grant path only fails on store errors.
		return nil, fmt.Errorf("granting purchase: %w", err)
	}

	m.logger.InfoContext(ctx, "shop purchase",
		slog.String("player_id", playerID),
		slog.String("item_id", itemID),
		slog.Int("price", item.Price),
	)
	return &effect.Report{}, nil
}

// roll computes a fresh window starting at now. The feature slot is chosen
// by the cascading boundary rule; remaining slots are filled with distinct
// items from below the Rare pool.
func (m *Manager) roll(locale string, now time.Time) *Window {
	w := &Window{
		Locale:    locale,
		ExpiresAt: now.Add(m.length),
	}

	if pool := m.featurePool(now); len(pool) > 0 {
		feature := pool[m.rng.Intn(len(pool))]
		w.FeatureID = feature.ID
		w.ItemIDs = append(w.ItemIDs, feature.ID)
	}

	fillers := m.catalog.BelowRarity(catalog.Rare)
	m.rng.Shuffle(len(fillers), func(i, j int) { fillers[i], fillers[j] = fillers[j], fillers[i] })
	for _, item := range fillers {
		if len(w.ItemIDs) >= m.slots {
			break
		}
		if item.ID == w.FeatureID {
			continue
		}
		w.ItemIDs = append(w.ItemIDs, item.ID)
	}
	return w
}

// featurePool picks the rarity pool for the feature slot. The first matching
// boundary wins; a window on no boundary has no feature item.
func (m *Manager) featurePool(now time.Time) []catalog.Item {
	start := now.UTC().Truncate(m.length)
	switch {
	case start.YearDay() != start.Add(-m.length).UTC().YearDay():
		return m.catalog.ByRarity(catalog.Kardec)
	case start.Unix()%(24*3600) == 0:
		return m.catalog.ByRarity(catalog.Mythic)
	case start.Unix()%(12*3600) == 0:
		return m.catalog.ByRarity(catalog.Legendary)
	case start.Unix()%(6*3600) == 0:
		return m.catalog.ByRarity(catalog.Rare)
	default:
		return nil
	}
}
