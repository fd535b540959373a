// Package mission assigns daily and weekly missions, tracks their progress
// and pays out rewards through the ledger and inventory.
package mission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mlindholt/discord-guildbot/internal/catalog"
	"github.com/mlindholt/discord-guildbot/internal/economy"
	"github.com/mlindholt/discord-guildbot/internal/effect"
	"github.com/mlindholt/discord-guildbot/internal/event"
	"github.com/mlindholt/discord-guildbot/internal/inventory"
	"github.com/mlindholt/discord-guildbot/internal/milestone"
	"github.com/mlindholt/discord-guildbot/internal/store"
)

// Errors returned by mission operations.
var (
	ErrNoAssignment       = errors.New("player has no mission assignment")
	ErrNoSuchMission      = errors.New("mission not assigned to player")
	ErrMissionNotComplete = errors.New("mission not completed yet")
)

const (
	dailyCount = 3
	// Players above this level can roll a rare-item reward at assignment.
	rareRewardMinLevel = 10
	rareRewardChance   = 0.2
)

// CollectResult reports what collecting a mission paid out.
type CollectResult struct {
	// ItemID is set when the reward was an item grant.
	ItemID string
	XP     int
	Coins  int
	// LevelsGained is non-zero when an xp reward cascaded into level-ups.
	LevelsGained int
	// Collected is false when the mission had already been collected and
	// the call was a no-op.
	Collected bool
}

// Manager handles mission assignment, progress and collection.
type Manager struct {
	missions   store.MissionRepository
	players    store.PlayerRepository
	catalog    *catalog.Catalog
	economy    *economy.Manager
	inventory  *inventory.Manager
	milestones *milestone.Manager
	events     event.Store
	sink       effect.Sink
	// announceChannel receives assignment announcements; empty disables them.
	announceChannel string
	rng             *rand.Rand
	logger          *slog.Logger
	tracer          trace.Tracer
}

// NewManager returns a new mission Manager. rng drives template selection and
// the rare-reward roll; tests pass a seeded source.
func NewManager(missions store.MissionRepository, players store.PlayerRepository, cat *catalog.Catalog, eco *economy.Manager, inv *inventory.Manager, ms *milestone.Manager, events event.Store, sink effect.Sink, announceChannel string, rng *rand.Rand, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		missions:        missions,
		players:         players,
		catalog:         cat,
		economy:         eco,
		inventory:       inv,
		milestones:      ms,
		events:          events,
		sink:            sink,
		announceChannel: announceChannel,
		rng:             rng,
		logger:          logger,
		tracer:          tp.Tracer("github.com/mlindholt/discord-guildbot/internal/mission"),
	}
}

// Get returns the player's current assignment or ErrNoAssignment.
func (m *Manager) Get(ctx context.Context, playerID string) (*store.MissionSet, error) {
	set, err := m.missions.Get(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoAssignment
	}
	return set, err
}

// Assign gives the player three random dailies and one weekly. It is a no-op
// when an assignment already exists. Each goal is scaled by the player's
// relevant counter at assignment time and never rescaled afterwards.
func (m *Manager) Assign(ctx context.Context, playerID string) (*store.MissionSet, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Assign",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	if set, err := m.missions.Get(ctx, playerID); err == nil {
		return set, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking assignment: %w", err)
	}

	p, err := m.players.GetOrCreate(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}

	set := &store.MissionSet{PlayerID: playerID}
	for _, tmpl := range m.pickDailies() {
		set.Daily = append(set.Daily, m.instantiate(p, tmpl))
	}
	if weeklies := m.catalog.WeeklyTemplates(); len(weeklies) > 0 {
		inst := m.instantiate(p, weeklies[m.rng.Intn(len(weeklies))])
		set.Weekly = &inst
	}

	if err := m.missions.Save(ctx, set); err != nil {
		return nil, fmt.Errorf("saving assignment: %w", err)
	}

	if ref := m.announceAssignment(ctx, playerID, set); ref != "" {
		stamp := func(s *store.MissionSet) {
			for i := range s.Daily {
				s.Daily[i].MessageRef = ref
			}
			if s.Weekly != nil {
				s.Weekly.MessageRef = ref
			}
		}
		if err := m.missions.Update(ctx, playerID, func(s *store.MissionSet) error {
			stamp(s)
			return nil
		}); err != nil {
			m.logger.WarnContext(ctx, "failed to store assignment message ref",
				slog.String("player_id", playerID),
				slog.Any("error", err),
			)
		} else {
			stamp(set)
		}
	}

	m.logger.InfoContext(ctx, "missions assigned",
		slog.String("player_id", playerID),
		slog.Int("dailies", len(set.Daily)),
		slog.Bool("weekly", set.Weekly != nil),
	)
	return set, nil
}

// announceAssignment posts the fresh assignment to the announce channel and
// returns the message reference. Best-effort: failures log and return "".
func (m *Manager) announceAssignment(ctx context.Context, playerID string, set *store.MissionSet) string {
	if m.announceChannel == "" {
		return ""
	}

	var names []string
	for _, inst := range set.Daily {
		if tmpl, ok := m.catalog.Template(inst.TemplateID); ok {
			names = append(names, tmpl.Name)
		}
	}
	if set.Weekly != nil {
		if tmpl, ok := m.catalog.Template(set.Weekly.TemplateID); ok {
			names = append(names, tmpl.Name)
		}
	}

	content := fmt.Sprintf("%s received new missions: %s", playerID, strings.Join(names, ", "))
	ref, err := m.sink.SendMessage(ctx, m.announceChannel, content)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to announce mission assignment",
			slog.String("player_id", playerID),
			slog.Any("error", err),
		)
		return ""
	}
	return ref
}

// Reset drops the player's assignment so the next Assign rolls fresh
// missions. The daily rollover timer calls this.
func (m *Manager) Reset(ctx context.Context, playerID string) error {
	err := m.missions.Delete(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Advance applies progress to every non-completed instance whose template
// listens for eventType. Completed dailies are collected immediately for
// players who opted into auto-collect. Any progress change triggers a
// profile re-render and a milestone recheck.
func (m *Manager) Advance(ctx context.Context, playerID, eventType string, amount int) (*effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Advance",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("event_type", eventType),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	p, err := m.players.GetOrCreate(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}

	changed := false
	var completed []string
	var toCollect []string
	err = m.missions.Update(ctx, playerID, func(set *store.MissionSet) error {
		apply := func(inst *store.MissionInstance, daily bool) {
			tmpl, ok := m.catalog.Template(inst.TemplateID)
			if !ok || tmpl.Event != eventType || inst.Completed {
				return
			}
			inst.Progress += amount
			changed = true
			if inst.Progress >= inst.Goal {
				inst.Progress = inst.Goal
				inst.Completed = true
				completed = append(completed, inst.TemplateID)
				if daily && p.AutoCollect {
					toCollect = append(toCollect, inst.TemplateID)
				}
			}
		}
		for i := range set.Daily {
			apply(&set.Daily[i], true)
		}
		if set.Weekly != nil {
			apply(set.Weekly, false)
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return &effect.Report{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("advancing missions: %w", err)
	}

	report := &effect.Report{}
	if !changed {
		return report, nil
	}

	for _, templateID := range completed {
		m.appendCompleted(ctx, playerID, templateID)
	}
	for _, templateID := range toCollect {
		if _, err := m.collect(ctx, report, playerID, templateID); err != nil {
			m.logger.ErrorContext(ctx, "auto-collect failed",
				slog.String("player_id", playerID),
				slog.String("template_id", templateID),
				slog.Any("error", err),
			)
		}
	}

	re := effect.RenderProfile(playerID)
	report.Record(re, "", m.sink.RenderProfile(ctx, playerID))

	_, msReport, err := m.milestones.Check(ctx, playerID)
	if err != nil {
		m.logger.ErrorContext(ctx, "milestone recheck failed",
			slog.String("player_id", playerID),
			slog.Any("error", err),
		)
	}
	report.Merge(msReport)

	return report, nil
}

// Collect pays out a completed mission. Collecting twice is a no-op reported
// through CollectResult.Collected.
func (m *Manager) Collect(ctx context.Context, playerID, templateID string) (*CollectResult, *effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Collect",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("template_id", templateID),
		),
	)
	defer span.End()

	report := &effect.Report{}
	result, err := m.collect(ctx, report, playerID, templateID)
	if err != nil {
		return nil, nil, err
	}
	if result.Collected {
		re := effect.RenderProfile(playerID)
		report.Record(re, "", m.sink.RenderProfile(ctx, playerID))
	}
	return result, report, nil
}

func (m *Manager) collect(ctx context.Context, report *effect.Report, playerID, templateID string) (*CollectResult, error) {
	result := &CollectResult{}
	var rewardItem string
	err := m.missions.Update(ctx, playerID, func(set *store.MissionSet) error {
		inst := findInstance(set, templateID)
		if inst == nil {
			return ErrNoSuchMission
		}
		if !inst.Completed {
			return ErrMissionNotComplete
		}
		if inst.Collected {
			return nil
		}
		inst.Collected = true
		result.Collected = true
		rewardItem = inst.RewardItemID
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoAssignment
	}
	if err != nil {
		return nil, err
	}
	if !result.Collected {
		return result, nil
	}

	tmpl, ok := m.catalog.Template(templateID)
	if !ok {
		return nil, fmt.Errorf("assignment references unknown template %q", templateID)
	}
	if rewardItem == "" {
		rewardItem = tmpl.Reward.ItemID
	}

	if rewardItem != "" {
		if _, err := m.inventory.Grant(ctx, playerID, rewardItem); err != nil {
			return nil, fmt.Errorf("granting reward item: %w", err)
		}
		result.ItemID = rewardItem
		if item, ok := m.catalog.Item(rewardItem); ok && item.Rarity == catalog.Kardec {
			report.Record(effect.RoleGrant(playerID, item.Name), "", m.sink.GrantRole(ctx, playerID, item.Name))
		}
	} else {
		credit, err := m.economy.Credit(ctx, playerID, tmpl.Reward.XP, tmpl.Reward.Coins, "mission:"+templateID)
		if err != nil {
			return nil, fmt.Errorf("crediting reward: %w", err)
		}
		result.XP = tmpl.Reward.XP
		result.Coins = tmpl.Reward.Coins
		result.LevelsGained = credit.LevelsGained
	}

	m.logger.InfoContext(ctx, "mission collected",
		slog.String("player_id", playerID),
		slog.String("template_id", templateID),
		slog.String("item_id", result.ItemID),
		slog.Int("levels_gained", result.LevelsGained),
	)
	return result, nil
}

// pickDailies draws up to three daily templates without replacement.
func (m *Manager) pickDailies() []catalog.MissionTemplate {
	pool := append([]catalog.MissionTemplate(nil), m.catalog.DailyTemplates()...)
	m.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > dailyCount {
		pool = pool[:dailyCount]
	}
	return pool
}

// instantiate scales the template goal against the player's counter and
// rolls the high-level rare-item reward replacement.
func (m *Manager) instantiate(p *store.PlayerStats, tmpl catalog.MissionTemplate) store.MissionInstance {
	inst := store.MissionInstance{
		TemplateID: tmpl.ID,
		Goal:       ScaledGoal(tmpl.Goal, p.Counter(tmpl.CounterStat)),
	}
	if tmpl.CounterStat == "" {
		inst.Goal = tmpl.Goal
	}
	if p.Level > rareRewardMinLevel && m.rng.Float64() < rareRewardChance {
		if pool := m.catalog.ByRarity(catalog.Rare); len(pool) > 0 {
			inst.RewardItemID = pool[m.rng.Intn(len(pool))].ID
		}
	}
	return inst
}

func (m *Manager) appendCompleted(ctx context.Context, playerID, templateID string) {
	tmpl, _ := m.catalog.Template(templateID)
	data, _ := json.Marshal(event.MissionCompletedData{
		PlayerID: playerID, TemplateID: templateID, Weekly: tmpl.Weekly,
	})
	evt := event.Event{AggregateID: playerID, Type: event.MissionCompleted, Data: data}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append mission event",
			slog.Any("error", err),
		)
	}
}

func findInstance(set *store.MissionSet, templateID string) *store.MissionInstance {
	for i := range set.Daily {
		if set.Daily[i].TemplateID == templateID {
			return &set.Daily[i]
		}
	}
	if set.Weekly != nil && set.Weekly.TemplateID == templateID {
		return set.Weekly
	}
	return nil
}

// Multiplier maps a counter value to the goal difficulty multiplier.
func Multiplier(counter int) float64 {
	switch {
	case counter < 10:
		return 1.0
	case counter < 50:
		return 1.2
	case counter < 150:
		return 1.5
	case counter < 500:
		return 2.0
	default:
		return 2.5
	}
}

// ScaledGoal applies the difficulty multiplier to a template goal, rounding
// up with a floor of 1.
func ScaledGoal(goal, counter int) int {
	scaled := int(math.Ceil(float64(goal) * Multiplier(counter)))
	if scaled < 1 {
		return 1
	}
	return scaled
}
