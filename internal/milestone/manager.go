// Package milestone evaluates long-horizon tiered achievements. Progress is
// derived on demand from player stats and inventories; only the per-tier
// completion flags and the announcement message ref are stored.
package milestone

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mlindholt/discord-guildbot/internal/catalog"
	"github.com/mlindholt/discord-guildbot/internal/effect"
	"github.com/mlindholt/discord-guildbot/internal/event"
	"github.com/mlindholt/discord-guildbot/internal/store"
)

// Crossing is one newly completed milestone tier.
type Crossing struct {
	MilestoneID string
	Tier        int
	Secret      bool

	// messageRef is the announcement message handle, persisted with the
	// tier flags.
	messageRef string
}

// Manager evaluates milestones.
type Manager struct {
	players         store.PlayerRepository
	inventories     store.InventoryRepository
	catalog         *catalog.Catalog
	events          event.Store
	sink            effect.Sink
	announceChannel string
	logger          *slog.Logger
	tracer          trace.Tracer
}

// NewManager returns a new milestone Manager. announceChannel receives tier
// announcements; when empty, announcements go out as DMs.
func NewManager(players store.PlayerRepository, inventories store.InventoryRepository, cat *catalog.Catalog, events event.Store, sink effect.Sink, announceChannel string, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		players:         players,
		inventories:     inventories,
		catalog:         cat,
		events:          events,
		sink:            sink,
		announceChannel: announceChannel,
		logger:          logger,
		tracer:          tp.Tracer("github.com/mlindholt/discord-guildbot/internal/milestone"),
	}
}

// Check re-evaluates every milestone for the player and announces each newly
// crossed tier exactly once. Already-flagged tiers are never re-announced.
// When every regular milestone is fully complete the secret milestone is
// evaluated too; completing it grants the distinguished role.
func (m *Manager) Check(ctx context.Context, playerID string) ([]Crossing, *effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Check",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	p, err := m.players.GetOrCreate(ctx, playerID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading player: %w", err)
	}
	inv, err := m.inventories.Get(ctx, playerID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading inventory: %w", err)
	}

	var crossings []Crossing
	report := &effect.Report{}
	allComplete := true

	for _, ms := range m.catalog.Milestones() {
		newly, complete := m.evaluate(p, inv, ms)
		if !complete {
			allComplete = false
		}
		for _, tier := range newly {
			ref := m.announce(ctx, report, p, ms, tier)
			crossings = append(crossings, Crossing{MilestoneID: ms.ID, Tier: tier, messageRef: ref})
		}
	}

	if secret, ok := m.catalog.SecretMilestone(); ok && allComplete {
		newly, complete := m.evaluate(p, inv, secret)
		for _, tier := range newly {
			ref := m.announce(ctx, report, p, secret, tier)
			crossings = append(crossings, Crossing{MilestoneID: secret.ID, Tier: tier, Secret: true, messageRef: ref})
		}
		if complete && len(newly) > 0 && secret.RoleName != "" {
			report.Record(effect.RoleEnsure(secret.RoleName), "", m.sink.EnsureRole(ctx, secret.RoleName))
			report.Record(effect.RoleGrant(playerID, secret.RoleName), "", m.sink.GrantRole(ctx, playerID, secret.RoleName))
		}
	}

	if len(crossings) > 0 {
		if err := m.storeFlags(ctx, playerID, crossings); err != nil {
			return nil, nil, err
		}
		m.logger.InfoContext(ctx, "milestone tiers crossed",
			slog.String("player_id", playerID),
			slog.Int("count", len(crossings)),
		)
	}
	return crossings, report, nil
}

// Progress returns how many tiers of the milestone the player has completed
// and the total tier count.
func (m *Manager) Progress(ctx context.Context, playerID, milestoneID string) (done, total int, err error) {
	p, err := m.players.GetOrCreate(ctx, playerID)
	if err != nil {
		return 0, 0, fmt.Errorf("loading player: %w", err)
	}
	for _, ms := range m.catalog.Milestones() {
		if ms.ID != milestoneID {
			continue
		}
		rec := p.Completed[ms.ID]
		for i := range ms.Tiers {
			if i < len(rec.Tiers) && rec.Tiers[i] {
				done++
			}
		}
		return done, len(ms.Tiers), nil
	}
	return 0, 0, fmt.Errorf("unknown milestone %q", milestoneID)
}

// evaluate returns the indexes of newly crossed tiers and whether the
// milestone is now fully complete.
func (m *Manager) evaluate(p *store.PlayerStats, inv *store.Inventory, ms catalog.Milestone) (newly []int, complete bool) {
	rec := p.Completed[ms.ID]
	complete = true
	for i, tier := range ms.Tiers {
		done := i < len(rec.Tiers) && rec.Tiers[i]
		if done {
			continue
		}
		if m.tierMet(p, inv, ms, tier) {
			newly = append(newly, i)
		} else {
			complete = false
		}
	}
	return newly, complete
}

func (m *Manager) tierMet(p *store.PlayerStats, inv *store.Inventory, ms catalog.Milestone, tier catalog.Tier) bool {
	switch ms.Kind {
	case catalog.KindCounter:
		return m.statValue(p, ms.Stat) >= tier.Goal
	case catalog.KindRarityCollector:
		count := 0
		for _, id := range inv.Items {
			if item, ok := m.catalog.Item(id); ok && item.Rarity == tier.Rarity {
				count++
			}
		}
		return count >= tier.Goal
	case catalog.KindVersatilityMaster:
		count := 0
		for _, level := range p.ClassLevels {
			if level >= tier.Level {
				count++
			}
		}
		return count >= tier.Goal
	}
	return false
}

// statValue resolves a counter milestone's stat: a named counter, or the
// special "level" and "coins" stats.
func (m *Manager) statValue(p *store.PlayerStats, stat string) int {
	switch stat {
	case "level":
		return p.Level
	case "coins":
		return p.Coins
	default:
		return p.Counter(stat)
	}
}

// announce notifies the player of a crossed tier and returns the message
// reference, empty when the announcement had none or failed.
func (m *Manager) announce(ctx context.Context, report *effect.Report, p *store.PlayerStats, ms catalog.Milestone, tier int) string {
	content := fmt.Sprintf("%s reached %s tier %d %s", p.ID, ms.Name, tier+1, RenderBar(tier+1, len(ms.Tiers)))
	if m.announceChannel != "" {
		e := effect.Message(m.announceChannel, content)
		ref, err := m.sink.SendMessage(ctx, m.announceChannel, content)
		report.Record(e, ref, err)
		if err != nil {
			return ""
		}
		return ref
	}
	e := effect.DirectMessage(p.ID, content)
	report.Record(e, "", m.sink.SendDirectMessage(ctx, p.ID, content))
	return ""
}

// storeFlags persists the crossed-tier flags under the per-player lock.
func (m *Manager) storeFlags(ctx context.Context, playerID string, crossings []Crossing) error {
	return m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
		if p.Completed == nil {
			p.Completed = make(map[string]store.MilestoneRecord)
		}
		for _, c := range crossings {
			rec := p.Completed[c.MilestoneID]
			for len(rec.Tiers) <= c.Tier {
				rec.Tiers = append(rec.Tiers, false)
			}
			rec.Tiers[c.Tier] = true
			if c.messageRef != "" {
				rec.MessageRef = c.messageRef
			}
			p.Completed[c.MilestoneID] = rec

			m.appendEvent(ctx, playerID, event.MilestoneReachedData{
				PlayerID: playerID, MilestoneID: c.MilestoneID, Tier: c.Tier,
			})
		}
		return nil
	})
}

func (m *Manager) appendEvent(ctx context.Context, aggregateID string, payload event.MilestoneReachedData) {
	data, _ := json.Marshal(payload)
	if err := m.events.Append(ctx, event.Event{AggregateID: aggregateID, Type: event.MilestoneReached, Data: data}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append milestone event",
			slog.Any("error", err),
		)
	}
}

// RenderBar renders milestone progress as a fixed 10-slot bar: completed
// tiers filled, the rest struck through.
func RenderBar(done, total int) string {
	const slots = 10
	if total < 1 {
		total = 1
	}
	if done > total {
		done = total
	}
	filled := done * slots / total
	var b strings.Builder
	for i := 0; i < slots; i++ {
		if i < filled {
			b.WriteString("■")
		} else {
			b.WriteString("~~□~~")
		}
	}
	return b.String()
}
