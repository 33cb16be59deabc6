package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Event is one voice-state transition for a user, already decoupled
// from the platform's wire format.
type Event struct {
	GuildID     string
	UserID      string
	DisplayName string
	Bot         bool

	PrevChannelID string
	NewChannelID  string
	PrevMuted     bool
	NewMuted      bool
}

// Member is one occupant of a voice channel.
type Member struct {
	UserID string
	Bot    bool
}

// PermissionQuery reports whether the bot may connect to a channel.
type PermissionQuery interface {
	CanConnect(guildID, channelID string) bool
}

// Occupancy enumerates the current occupants of a voice channel.
type Occupancy interface {
	Occupants(guildID, channelID string) []Member
}

// AnnouncementResolver decides which clip path to play for a user.
type AnnouncementResolver interface {
	Resolve(ctx context.Context, displayName string, userID int64) (string, error)
}

// PairRule plays a fixed sound when two designated identities are first
// observed together in the same channel.
type PairRule struct {
	UserA string
	UserB string
	Sound string
}

// ParsePairRules parses "userA:userB:soundpath" entries separated by
// commas. An empty input yields no rules.
func ParsePairRules(raw string) ([]PairRule, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var rules []PairRule
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid pair rule %q", entry)
		}
		rules = append(rules, PairRule{UserA: parts[0], UserB: parts[1], Sound: parts[2]})
	}
	return rules, nil
}

// Controller is the per-guild voice presence state machine. It decides
// when to connect or disconnect the transport and which clip to play.
type Controller struct {
	transport Transport
	resolver  AnnouncementResolver
	perms     PermissionQuery
	occupancy Occupancy
	pairs     []PairRule

	mu     sync.Mutex
	guilds map[string]*guildState
}

type guildState struct {
	mu sync.Mutex

	// channelID is the channel the transport occupies, or "" when
	// disconnected.
	channelID string
	// firedPairs marks pair rules that already triggered in this guild.
	firedPairs map[int]bool
}

func NewController(
	transport Transport,
	resolver AnnouncementResolver,
	perms PermissionQuery,
	occupancy Occupancy,
	pairs []PairRule,
) *Controller {
	return &Controller{
		transport: transport,
		resolver:  resolver,
		perms:     perms,
		occupancy: occupancy,
		pairs:     pairs,
		guilds:    make(map[string]*guildState),
	}
}

func (c *Controller) guild(guildID string) *guildState {
	c.mu.Lock()
	defer c.mu.Unlock()
	gs, ok := c.guilds[guildID]
	if !ok {
		gs = &guildState{firedPairs: make(map[int]bool)}
		c.guilds[guildID] = gs
	}
	return gs
}

// HandleEvent processes one voice-state transition. Events for one
// guild are serialized so two concurrent events cannot race the
// transport into different channels; guilds are independent.
func (c *Controller) HandleEvent(ctx context.Context, ev Event) {
	gs := c.guild(ev.GuildID)
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if ev.NewChannelID == "" || !c.perms.CanConnect(ev.GuildID, ev.NewChannelID) {
		c.maybeLeave(ctx, gs, ev)
		return
	}

	if ev.Bot {
		return
	}

	if c.firePairRule(ctx, gs, ev) {
		return
	}

	if ev.NewMuted {
		return
	}
	// The general rule triggers on first appearance, on a muted to
	// unmuted transition, and on a channel change. An unmuted user
	// staying put is not a trigger.
	if ev.PrevChannelID == ev.NewChannelID && ev.PrevChannelID != "" && !ev.PrevMuted {
		return
	}

	userID, err := strconv.ParseInt(ev.UserID, 10, 64)
	if err != nil {
		slog.Error("invalid user id in voice event", "userID", ev.UserID, "error", err)
		return
	}

	path, err := c.resolver.Resolve(ctx, ev.DisplayName, userID)
	if err != nil {
		slog.Error("failed to resolve announcement", "name", ev.DisplayName, "error", err)
		return
	}

	c.connectAndPlay(ctx, gs, ev.GuildID, ev.NewChannelID, path)
}

// maybeLeave disconnects when the occupied channel has no humans left.
func (c *Controller) maybeLeave(ctx context.Context, gs *guildState, ev Event) {
	if gs.channelID == "" || ev.PrevChannelID != gs.channelID {
		return
	}
	for _, m := range c.occupancy.Occupants(ev.GuildID, gs.channelID) {
		if !m.Bot {
			return
		}
	}

	if err := c.transport.Leave(ctx, ev.GuildID); err != nil {
		slog.Error("failed to leave voice channel", "guildID", ev.GuildID, "error", err)
		return
	}
	gs.channelID = ""
}

// firePairRule plays a dedicated sound the first time a configured pair
// of identities shares a channel, taking precedence over the general
// unmute path.
func (c *Controller) firePairRule(ctx context.Context, gs *guildState, ev Event) bool {
	for i, rule := range c.pairs {
		if gs.firedPairs[i] {
			continue
		}

		var other string
		switch ev.UserID {
		case rule.UserA:
			other = rule.UserB
		case rule.UserB:
			other = rule.UserA
		default:
			continue
		}

		present := false
		for _, m := range c.occupancy.Occupants(ev.GuildID, ev.NewChannelID) {
			if m.UserID == other {
				present = true
				break
			}
		}
		if !present {
			continue
		}

		gs.firedPairs[i] = true
		c.connectAndPlay(ctx, gs, ev.GuildID, ev.NewChannelID, rule.Sound)
		return true
	}
	return false
}

// connectAndPlay joins the channel if not already there and starts
// playback. Transport failures are logged and the event dropped.
func (c *Controller) connectAndPlay(ctx context.Context, gs *guildState, guildID, channelID, path string) {
	if gs.channelID != channelID {
		if err := c.transport.Join(ctx, guildID, channelID); err != nil {
			slog.Error("failed to join voice channel",
				"guildID", guildID,
				"channelID", channelID,
				"error", err,
			)
			return
		}
		gs.channelID = channelID
	}

	if err := c.transport.Play(ctx, guildID, path); err != nil {
		slog.Error("failed to play announcement", "path", path, "error", err)
	}
}
