package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// Sink executes engine effects against the Discord API. Every call waits on
// a shared rate limiter so effect bursts (milestone cascades, clan dissolve
// DMs) stay inside Discord's limits.
type Sink struct {
	session *discordgo.Session
	guildID string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSink wraps a Discord session as an effect sink.
func NewSink(session *discordgo.Session, guildID string, logger *slog.Logger) *Sink {
	return &Sink{
		session: session,
		guildID: guildID,
		// Discord allows 50 requests/s globally; stay well under it.
		limiter: rate.NewLimiter(rate.Limit(20), 5),
		logger:  logger,
	}
}

// RenderProfile requests a profile card re-render. Rendering happens in an
// external service; here we only log the request.
func (s *Sink) RenderProfile(ctx context.Context, playerID string) error {
	s.logger.DebugContext(ctx, "profile re-render requested", slog.String("player_id", playerID))
	return nil
}

// SendMessage posts to a channel and returns the message id.
func (s *Sink) SendMessage(ctx context.Context, channelRef, content string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	msg, err := s.session.ChannelMessageSend(channelRef, content)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return msg.ID, nil
}

// SendDirectMessage DMs a player.
func (s *Sink) SendDirectMessage(ctx context.Context, playerID, content string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	ch, err := s.session.UserChannelCreate(playerID)
	if err != nil {
		return fmt.Errorf("opening dm channel: %w", err)
	}
	if _, err := s.session.ChannelMessageSend(ch.ID, content); err != nil {
		return fmt.Errorf("sending dm: %w", err)
	}
	return nil
}

// GrantRole assigns a role to a guild member. role accepts either a role id
// (clan role refs) or a role name (milestone roles).
func (s *Sink) GrantRole(ctx context.Context, playerID, role string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	roleID, err := s.resolveRole(role)
	if err != nil {
		return err
	}
	if err := s.session.GuildMemberRoleAdd(s.guildID, playerID, roleID); err != nil {
		return fmt.Errorf("granting role: %w", err)
	}
	return nil
}

// EnsureRole creates the named role if the guild does not have it.
func (s *Sink) EnsureRole(ctx context.Context, roleName string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	roles, err := s.session.GuildRoles(s.guildID)
	if err != nil {
		return fmt.Errorf("listing roles: %w", err)
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, roleName) {
			return nil
		}
	}
	if _, err := s.session.GuildRoleCreate(s.guildID, &discordgo.RoleParams{Name: roleName}); err != nil {
		return fmt.Errorf("creating role: %w", err)
	}
	return nil
}

// ProvisionClanRole creates the clan's colored role and returns its id.
func (s *Sink) ProvisionClanRole(ctx context.Context, clanID, clanName, color string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	params := &discordgo.RoleParams{Name: clanName}
	if c, err := parseColor(color); err == nil {
		params.Color = &c
	}
	role, err := s.session.GuildRoleCreate(s.guildID, params)
	if err != nil {
		return "", fmt.Errorf("creating clan role: %w", err)
	}
	return role.ID, nil
}

// ProvisionClanChannel creates the clan's text channel and returns its id.
func (s *Sink) ProvisionClanChannel(ctx context.Context, clanID, clanName string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	name := strings.ToLower(strings.ReplaceAll(clanName, " ", "-"))
	ch, err := s.session.GuildChannelCreate(s.guildID, name, discordgo.ChannelTypeGuildText)
	if err != nil {
		return "", fmt.Errorf("creating clan channel: %w", err)
	}
	return ch.ID, nil
}

// ReleaseClanResources removes the clan's role and channel. Both deletions
// are attempted; errors are joined.
func (s *Sink) ReleaseClanResources(ctx context.Context, clanID, roleRef, channelRef string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	var errs []error
	if roleRef != "" {
		if err := s.session.GuildRoleDelete(s.guildID, roleRef); err != nil {
			errs = append(errs, fmt.Errorf("deleting clan role: %w", err))
		}
	}
	if channelRef != "" {
		if _, err := s.session.ChannelDelete(channelRef); err != nil {
			errs = append(errs, fmt.Errorf("deleting clan channel: %w", err))
		}
	}
	return errors.Join(errs...)
}

// resolveRole maps a role id or name to a role id.
func (s *Sink) resolveRole(role string) (string, error) {
	roles, err := s.session.GuildRoles(s.guildID)
	if err != nil {
		return "", fmt.Errorf("listing roles: %w", err)
	}
	for _, r := range roles {
		if r.ID == role {
			return r.ID, nil
		}
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, role) {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("role %q not found in guild", role)
}

// parseColor converts a #RRGGBB string to Discord's integer color.
func parseColor(color string) (int, error) {
	v, err := strconv.ParseInt(strings.TrimPrefix(color, "#"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing color %q: %w", color, err)
	}
	return int(v), nil
}
