// Package clan manages clan lifecycle and membership. PlayerStats.ClanID is
// the single source of truth for membership; the clan roster is a derived
// cache kept in sync by every operation here.
package clan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mlindholt/discord-guildbot/internal/effect"
	"github.com/mlindholt/discord-guildbot/internal/event"
	"github.com/mlindholt/discord-guildbot/internal/store"
)

// Errors returned by clan operations.
var (
	ErrAlreadyInClan       = errors.New("player already in a clan")
	ErrEligibilityNotMet   = errors.New("player has not met the clan founding requirements")
	ErrInvalidColor        = errors.New("color must be a #RRGGBB hex value")
	ErrInvalidTag          = errors.New("clan tag must be 3 to 5 characters")
	ErrInappropriateName   = errors.New("clan name contains a blocked word")
	ErrNotInClan           = errors.New("player not in a clan")
	ErrNotLeader           = errors.New("player is not the clan leader")
	ErrTargetIsSelf        = errors.New("cannot target yourself")
	ErrTargetIsBot         = errors.New("cannot target a bot")
	ErrTargetAlreadyInClan = errors.New("target already in a clan")
	ErrNoSuchInvite        = errors.New("no invite from that clan")
	ErrClanGone            = errors.New("clan no longer exists")
	ErrCannotKickSelf      = errors.New("leader cannot kick themselves")
	ErrTargetNotMember     = errors.New("target is not a clan member")
	ErrLeaderCannotLeave   = errors.New("leader must dissolve the clan instead of leaving")
)

// Founding requirements.
const (
	minRaidsCreated = 10
	minRaidsHelped  = 10
)

// Tag length bounds.
const (
	minTagLen = 3
	maxTagLen = 5
)

// Manager handles clan operations.
type Manager struct {
	players   store.PlayerRepository
	clans     store.ClanRepository
	invites   store.InviteRepository
	events    event.Store
	sink      effect.Sink
	blocklist []string
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewManager returns a new clan Manager. blocklist entries are matched as
// case-insensitive substrings of proposed clan names.
func NewManager(players store.PlayerRepository, clans store.ClanRepository, invites store.InviteRepository, events event.Store, sink effect.Sink, blocklist []string, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	lowered := make([]string, len(blocklist))
	for i, w := range blocklist {
		lowered[i] = strings.ToLower(w)
	}
	return &Manager{
		players:   players,
		clans:     clans,
		invites:   invites,
		events:    events,
		sink:      sink,
		blocklist: lowered,
		logger:    logger,
		tracer:    tp.Tracer("github.com/mlindholt/discord-guildbot/internal/clan"),
	}
}

// Get returns a clan by id.
func (m *Manager) Get(ctx context.Context, clanID string) (*store.Clan, error) {
	return m.clans.GetByID(ctx, clanID)
}

// List returns all clans.
func (m *Manager) List(ctx context.Context) ([]store.Clan, error) {
	return m.clans.List(ctx)
}

// Create founds a new clan with the caller as leader. The player must have
// created and helped at least ten raids each, must not already be in a clan,
// the tag must be 3 to 5 characters, and the name and tag must be free. Role and channel provisioning is
// best-effort: failures land in the Report, never abort the creation.
func (m *Manager) Create(ctx context.Context, leaderID, name, tag, color string) (*store.Clan, *effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Create",
		trace.WithAttributes(
			attribute.String("player_id", leaderID),
			attribute.String("clan_name", name),
		),
	)
	defer span.End()

	if !validColor(color) {
		return nil, nil, ErrInvalidColor
	}
	if l := len([]rune(tag)); l < minTagLen || l > maxTagLen {
		return nil, nil, ErrInvalidTag
	}
	if m.blockedName(name) {
		return nil, nil, ErrInappropriateName
	}

	leader, err := m.players.GetOrCreate(ctx, leaderID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading founder: %w", err)
	}
	if leader.ClanID != "" {
		return nil, nil, ErrAlreadyInClan
	}
	if leader.Counter(store.CounterRaidsCreated) < minRaidsCreated || leader.Counter(store.CounterRaidsHelped) < minRaidsHelped {
		return nil, nil, ErrEligibilityNotMet
	}

	c := &store.Clan{
		ID:      uuid.NewString(),
		Name:    name,
		Tag:     tag,
		Leader:  leaderID,
		Members: []string{leaderID},
		Color:   color,
		Status:  store.ClanActive,
	}
	if err := m.clans.Create(ctx, c); err != nil {
		return nil, nil, err
	}

	if err := m.players.Update(ctx, leaderID, func(p *store.PlayerStats) error {
		if p.ClanID != "" {
			return ErrAlreadyInClan
		}
		p.ClanID = c.ID
		return nil
	}); err != nil {
		// The founder joined another clan between the check and the write.
		// Roll the clan record back and surface the conflict.
		if derr := m.clans.Delete(ctx, c.ID); derr != nil {
			m.logger.ErrorContext(ctx, "failed to roll back clan after membership conflict",
				slog.String("clan_id", c.ID),
				slog.Any("error", derr),
			)
		}
		return nil, nil, err
	}

	report := &effect.Report{}
	roleRef, err := m.sink.ProvisionClanRole(ctx, c.ID, c.Name, c.Color)
	report.Record(effect.ClanRole(c.ID, c.Name), roleRef, err)
	channelRef, cerr := m.sink.ProvisionClanChannel(ctx, c.ID, c.Name)
	report.Record(effect.ClanChannel(c.ID, c.Name), channelRef, cerr)

	if roleRef != "" || channelRef != "" {
		if err := m.clans.Update(ctx, c.ID, func(cl *store.Clan) error {
			cl.RoleRef = roleRef
			cl.ChannelRef = channelRef
			return nil
		}); err != nil {
			m.logger.ErrorContext(ctx, "failed to store provisioned refs",
				slog.String("clan_id", c.ID),
				slog.Any("error", err),
			)
		}
		c.RoleRef = roleRef
		c.ChannelRef = channelRef
	}
	if roleRef != "" {
		report.Record(effect.RoleGrant(leaderID, roleRef), "", m.sink.GrantRole(ctx, leaderID, roleRef))
	}

	m.appendEvent(ctx, c.ID, event.ClanCreated, event.ClanLifecycleData{
		ClanID: c.ID, Name: c.Name, Leader: leaderID,
	})
	m.logger.InfoContext(ctx, "clan created",
		slog.String("clan_id", c.ID),
		slog.String("name", c.Name),
		slog.String("leader", leaderID),
		slog.Bool("provisioned", report.AllOK()),
	)
	return c, report, nil
}

// Invite lets the clan leader invite another player. The invite is keyed by
// clan name and survives until accepted, the player joins elsewhere, or the
// clan disappears.
func (m *Manager) Invite(ctx context.Context, inviterID, targetID string, targetIsBot bool) (*effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Invite",
		trace.WithAttributes(
			attribute.String("player_id", inviterID),
			attribute.String("target_id", targetID),
		),
	)
	defer span.End()

	if targetID == inviterID {
		return nil, ErrTargetIsSelf
	}
	if targetIsBot {
		return nil, ErrTargetIsBot
	}

	c, err := m.clanOf(ctx, inviterID)
	if err != nil {
		return nil, err
	}
	if c.Leader != inviterID {
		return nil, ErrNotLeader
	}

	target, err := m.players.GetOrCreate(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("loading target: %w", err)
	}
	if target.ClanID != "" {
		return nil, ErrTargetAlreadyInClan
	}

	if err := m.invites.Add(ctx, targetID, c.Name); err != nil {
		return nil, fmt.Errorf("storing invite: %w", err)
	}

	report := &effect.Report{}
	dm := effect.DirectMessage(targetID, fmt.Sprintf("You have been invited to join %s [%s].", c.Name, c.Tag))
	report.Record(dm, "", m.sink.SendDirectMessage(ctx, targetID, dm.Content))

	m.logger.InfoContext(ctx, "clan invite sent",
		slog.String("clan_id", c.ID),
		slog.String("target_id", targetID),
	)
	return report, nil
}

// Accept joins the player to the clan that invited them. If the clan was
// dissolved while the invite was pending, the stale invite is dropped and
// ErrClanGone is returned.
func (m *Manager) Accept(ctx context.Context, playerID, clanName string) (*store.Clan, *effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Accept",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("clan_name", clanName),
		),
	)
	defer span.End()

	ok, err := m.invites.Has(ctx, playerID, clanName)
	if err != nil {
		return nil, nil, fmt.Errorf("checking invite: %w", err)
	}
	if !ok {
		return nil, nil, ErrNoSuchInvite
	}

	p, err := m.players.GetOrCreate(ctx, playerID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading player: %w", err)
	}
	if p.ClanID != "" {
		return nil, nil, ErrAlreadyInClan
	}

	c, err := m.clans.GetByName(ctx, clanName)
	if errors.Is(err, store.ErrNotFound) {
		// Self-heal: drop the invite to the vanished clan.
		if rerr := m.invites.Remove(ctx, playerID, clanName); rerr != nil {
			m.logger.WarnContext(ctx, "failed to drop stale invite",
				slog.String("player_id", playerID),
				slog.Any("error", rerr),
			)
		}
		return nil, nil, ErrClanGone
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading clan: %w", err)
	}

	if err := m.clans.Update(ctx, c.ID, func(cl *store.Clan) error {
		if !cl.HasMember(playerID) {
			cl.Members = append(cl.Members, playerID)
		}
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("updating roster: %w", err)
	}
	if err := m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
		if p.ClanID != "" {
			return ErrAlreadyInClan
		}
		p.ClanID = c.ID
		return nil
	}); err != nil {
		// The player joined another clan between the precondition read and
		// the write. Roll the roster add back and surface the conflict.
		if rerr := m.clans.Update(ctx, c.ID, func(cl *store.Clan) error {
			cl.RemoveMember(playerID)
			return nil
		}); rerr != nil {
			m.logger.ErrorContext(ctx, "failed to roll back roster after membership conflict",
				slog.String("clan_id", c.ID),
				slog.String("player_id", playerID),
				slog.Any("error", rerr),
			)
		}
		if errors.Is(err, ErrAlreadyInClan) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("updating player: %w", err)
	}
	if err := m.invites.Remove(ctx, playerID, clanName); err != nil {
		m.logger.WarnContext(ctx, "failed to remove consumed invite",
			slog.String("player_id", playerID),
			slog.Any("error", err),
		)
	}

	report := &effect.Report{}
	if c.RoleRef != "" {
		report.Record(effect.RoleGrant(playerID, c.RoleRef), "", m.sink.GrantRole(ctx, playerID, c.RoleRef))
	}

	m.logger.InfoContext(ctx, "player joined clan",
		slog.String("clan_id", c.ID),
		slog.String("player_id", playerID),
	)
	return c, report, nil
}

// Kick removes a member from the leader's clan. The kick is tallied on both
// sides: kicked_others for the leader, was_kicked for the target.
func (m *Manager) Kick(ctx context.Context, leaderID, targetID string) (*effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Kick",
		trace.WithAttributes(
			attribute.String("player_id", leaderID),
			attribute.String("target_id", targetID),
		),
	)
	defer span.End()

	if targetID == leaderID {
		return nil, ErrCannotKickSelf
	}

	c, err := m.clanOf(ctx, leaderID)
	if err != nil {
		return nil, err
	}
	if c.Leader != leaderID {
		return nil, ErrNotLeader
	}
	if !c.HasMember(targetID) {
		return nil, ErrTargetNotMember
	}

	if err := m.clans.Update(ctx, c.ID, func(cl *store.Clan) error {
		cl.RemoveMember(targetID)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("updating roster: %w", err)
	}
	if err := m.players.Update(ctx, targetID, func(p *store.PlayerStats) error {
		p.ClanID = ""
		if p.Counters == nil {
			p.Counters = make(map[string]int)
		}
		p.Counters[store.CounterWasKicked]++
		return nil
	}); err != nil {
		return nil, fmt.Errorf("updating target: %w", err)
	}
	if err := m.players.Update(ctx, leaderID, func(p *store.PlayerStats) error {
		if p.Counters == nil {
			p.Counters = make(map[string]int)
		}
		p.Counters[store.CounterKickedOthers]++
		return nil
	}); err != nil {
		return nil, fmt.Errorf("updating leader: %w", err)
	}

	report := &effect.Report{}
	dm := effect.DirectMessage(targetID, fmt.Sprintf("You have been removed from %s.", c.Name))
	report.Record(dm, "", m.sink.SendDirectMessage(ctx, targetID, dm.Content))

	m.logger.InfoContext(ctx, "member kicked",
		slog.String("clan_id", c.ID),
		slog.String("target_id", targetID),
	)
	return report, nil
}

// Leave removes the caller from their clan. The leader cannot leave; they
// must dissolve instead.
func (m *Manager) Leave(ctx context.Context, playerID string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Leave",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	c, err := m.clanOf(ctx, playerID)
	if err != nil {
		return err
	}
	if c.Leader == playerID {
		return ErrLeaderCannotLeave
	}

	if err := m.clans.Update(ctx, c.ID, func(cl *store.Clan) error {
		cl.RemoveMember(playerID)
		return nil
	}); err != nil {
		return fmt.Errorf("updating roster: %w", err)
	}
	if err := m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
		p.ClanID = ""
		return nil
	}); err != nil {
		return fmt.Errorf("updating player: %w", err)
	}

	m.logger.InfoContext(ctx, "member left clan",
		slog.String("clan_id", c.ID),
		slog.String("player_id", playerID),
	)
	return nil
}

// Dissolve disbands the leader's clan: every member's membership is cleared,
// non-leader members are notified best-effort, the external role and channel
// are released, and the record is deleted.
func (m *Manager) Dissolve(ctx context.Context, leaderID string) (*effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Dissolve",
		trace.WithAttributes(attribute.String("player_id", leaderID)),
	)
	defer span.End()

	c, err := m.clanOf(ctx, leaderID)
	if err != nil {
		return nil, err
	}
	if c.Leader != leaderID {
		return nil, ErrNotLeader
	}

	// Mark disbanded first so a concurrent Accept observing the record sees
	// it is on its way out.
	if err := m.clans.Update(ctx, c.ID, func(cl *store.Clan) error {
		cl.Status = store.ClanDisbanded
		return nil
	}); err != nil {
		return nil, fmt.Errorf("marking clan disbanded: %w", err)
	}

	report := &effect.Report{}
	for _, memberID := range c.Members {
		if err := m.players.Update(ctx, memberID, func(p *store.PlayerStats) error {
			if p.ClanID == c.ID {
				p.ClanID = ""
			}
			return nil
		}); err != nil {
			m.logger.ErrorContext(ctx, "failed to clear membership during dissolve",
				slog.String("clan_id", c.ID),
				slog.String("player_id", memberID),
				slog.Any("error", err),
			)
		}
		if memberID == leaderID {
			continue
		}
		dm := effect.DirectMessage(memberID, fmt.Sprintf("%s has been dissolved.", c.Name))
		report.Record(dm, "", m.sink.SendDirectMessage(ctx, memberID, dm.Content))
	}

	report.Record(effect.ClanRelease(c.ID), "", m.sink.ReleaseClanResources(ctx, c.ID, c.RoleRef, c.ChannelRef))

	if err := m.clans.Delete(ctx, c.ID); err != nil {
		return report, fmt.Errorf("deleting clan: %w", err)
	}

	m.appendEvent(ctx, c.ID, event.ClanDisbanded, event.ClanLifecycleData{
		ClanID: c.ID, Name: c.Name, Leader: leaderID,
	})
	m.logger.InfoContext(ctx, "clan dissolved",
		slog.String("clan_id", c.ID),
		slog.String("name", c.Name),
	)
	return report, nil
}

// RecordDailyPresence bumps the days_in_clan counter for every current clan
// member. The daily rollover timer calls this once per UTC day.
func (m *Manager) RecordDailyPresence(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "Manager.RecordDailyPresence")
	defer span.End()

	clans, err := m.clans.List(ctx)
	if err != nil {
		return fmt.Errorf("listing clans: %w", err)
	}
	for _, c := range clans {
		for _, memberID := range c.Members {
			if err := m.players.Update(ctx, memberID, func(p *store.PlayerStats) error {
				if p.ClanID != c.ID {
					return nil
				}
				if p.Counters == nil {
					p.Counters = make(map[string]int)
				}
				p.Counters[store.CounterDaysInClan]++
				return nil
			}); err != nil {
				m.logger.ErrorContext(ctx, "failed to record clan day",
					slog.String("clan_id", c.ID),
					slog.String("player_id", memberID),
					slog.Any("error", err),
				)
			}
		}
	}
	return nil
}

// clanOf resolves the player's current clan, self-healing a dangling ClanID
// that points at a deleted clan.
func (m *Manager) clanOf(ctx context.Context, playerID string) (*store.Clan, error) {
	p, err := m.players.GetOrCreate(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}
	if p.ClanID == "" {
		return nil, ErrNotInClan
	}
	c, err := m.clans.GetByID(ctx, p.ClanID)
	if errors.Is(err, store.ErrNotFound) {
		if uerr := m.players.Update(ctx, playerID, func(p *store.PlayerStats) error {
			p.ClanID = ""
			return nil
		}); uerr != nil {
			m.logger.WarnContext(ctx, "failed to clear dangling clan reference",
				slog.String("player_id", playerID),
				slog.Any("error", uerr),
			)
		}
		return nil, ErrClanGone
	}
	if err != nil {
		return nil, fmt.Errorf("loading clan: %w", err)
	}
	return c, nil
}

func (m *Manager) blockedName(name string) bool {
	lowered := strings.ToLower(name)
	for _, w := range m.blocklist {
		if w != "" && strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

// validColor accepts #RRGGBB hex colors.
func validColor(color string) bool {
	if len(color) != 7 || color[0] != '#' {
		return false
	}
	for _, c := range color[1:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func (m *Manager) appendEvent(ctx context.Context, aggregateID string, t event.Type, payload interface{}) {
	data, _ := json.Marshal(payload)
	if err := m.events.Append(ctx, event.Event{AggregateID: aggregateID, Type: t, Data: data}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append clan event",
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
	}
}
