// Package effect models the engine's outbound side effects. Engine
// operations mutate core state first and then apply effects through a Sink;
// an effect failure never rolls the mutation back, it is recorded in the
// operation's Report so callers can see partial success.
package effect

import "context"

// Kind identifies an outbound effect.
type Kind string

// Effect kinds.
const (
	KindRenderProfile        Kind = "render_profile"
	KindSendMessage          Kind = "send_message"
	KindSendDirectMessage    Kind = "send_direct_message"
	KindGrantRole            Kind = "grant_role"
	KindEnsureRole           Kind = "ensure_role"
	KindProvisionClanRole    Kind = "provision_clan_role"
	KindProvisionClanChannel Kind = "provision_clan_channel"
	KindReleaseClanResources Kind = "release_clan_resources"
)

// Effect describes a single outbound call. Only the fields relevant to the
// Kind are set.
type Effect struct {
	Kind       Kind
	PlayerID   string
	ChannelRef string
	Content    string
	RoleName   string
	ClanID     string
	ClanName   string
}

// RenderProfile requests a profile card re-render for a player.
func RenderProfile(playerID string) Effect {
	return Effect{Kind: KindRenderProfile, PlayerID: playerID}
}

// Message requests a message in a channel.
func Message(channelRef, content string) Effect {
	return Effect{Kind: KindSendMessage, ChannelRef: channelRef, Content: content}
}

// DirectMessage requests a DM to a player.
func DirectMessage(playerID, content string) Effect {
	return Effect{Kind: KindSendDirectMessage, PlayerID: playerID, Content: content}
}

// RoleGrant requests assignment of a named role to a player.
func RoleGrant(playerID, roleName string) Effect {
	return Effect{Kind: KindGrantRole, PlayerID: playerID, RoleName: roleName}
}

// RoleEnsure requests creation of a named role if it does not exist.
func RoleEnsure(roleName string) Effect {
	return Effect{Kind: KindEnsureRole, RoleName: roleName}
}

// ClanRole requests provisioning of a clan role.
func ClanRole(clanID, clanName string) Effect {
	return Effect{Kind: KindProvisionClanRole, ClanID: clanID, ClanName: clanName}
}

// ClanChannel requests provisioning of a clan channel.
func ClanChannel(clanID, clanName string) Effect {
	return Effect{Kind: KindProvisionClanChannel, ClanID: clanID, ClanName: clanName}
}

// ClanRelease requests release of a clan's external role and channel.
func ClanRelease(clanID string) Effect {
	return Effect{Kind: KindReleaseClanResources, ClanID: clanID}
}

// Outcome is the result of applying one effect. Ref carries any externally
// allocated handle (message id, role id, channel id).
type Outcome struct {
	Effect Effect
	Ref    string
	Err    error
}

// OK reports whether the effect was applied successfully.
func (o Outcome) OK() bool { return o.Err == nil }

// Report accumulates effect outcomes across an engine operation.
type Report struct {
	Outcomes []Outcome
}

// Record appends an outcome.
func (r *Report) Record(e Effect, ref string, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Effect: e, Ref: ref, Err: err})
}

// Merge appends all outcomes from another report.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
}

// Failed returns the outcomes that errored.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// AllOK reports whether every recorded effect succeeded.
func (r *Report) AllOK() bool { return len(r.Failed()) == 0 }

// Sink is the presentation layer's surface for outbound effects. All calls
// are best-effort: the engine treats errors as partial failure, never as a
// reason to undo state.
type Sink interface {
	RenderProfile(ctx context.Context, playerID string) error
	// SendMessage returns a reference to the sent message.
	SendMessage(ctx context.Context, channelRef, content string) (string, error)
	SendDirectMessage(ctx context.Context, playerID, content string) error
	GrantRole(ctx context.Context, playerID, roleName string) error
	// EnsureRole creates the named role if it is absent.
	EnsureRole(ctx context.Context, roleName string) error
	// ProvisionClanRole allocates a role for a clan and returns its handle.
	ProvisionClanRole(ctx context.Context, clanID, clanName, color string) (string, error)
	// ProvisionClanChannel allocates a channel for a clan and returns its handle.
	ProvisionClanChannel(ctx context.Context, clanID, clanName string) (string, error)
	ReleaseClanResources(ctx context.Context, clanID, roleRef, channelRef string) error
}

// Discard is a Sink that does nothing. Used in tests and for timer-driven
// flows that have no presentation surface attached.
type Discard struct{}

func (Discard) RenderProfile(context.Context, string) error                 { return nil }
func (Discard) SendMessage(context.Context, string, string) (string, error) { return "", nil }
func (Discard) SendDirectMessage(context.Context, string, string) error     { return nil }
func (Discard) GrantRole(context.Context, string, string) error             { return nil }
func (Discard) EnsureRole(context.Context, string) error                    { return nil }
func (Discard) ProvisionClanRole(context.Context, string, string, string) (string, error) {
	return "", nil
}
func (Discard) ProvisionClanChannel(context.Context, string, string) (string, error) {
	return "", nil
}
func (Discard) ReleaseClanResources(context.Context, string, string, string) error { return nil }
