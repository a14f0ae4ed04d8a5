package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/developingchet/guild-counter-sync/internal/metrics"
	"github.com/rs/zerolog"
)

// memberPageSize is the maximum page size of the list-guild-members endpoint.
const memberPageSize = 1000

// Intents requests the gateway data the counters depend on: member list,
// presences for the active count and voice states for the voice count.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsGuildVoiceStates

// NewSession builds a discordgo session with the intents and state tracking
// the counters need. The session is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackPresences = true
	s.State.TrackVoice = true
	s.State.TrackMembers = true
	s.State.TrackChannels = true
	return s, nil
}

// discordClient implements Platform on top of a discordgo session. REST calls
// go through the session; presence and voice state come from the gateway cache.
type discordClient struct {
	session *discordgo.Session
	log     zerolog.Logger
}

// NewDiscordClient wraps a discordgo session. The session's gateway must be
// open for presence and voice data to be populated.
func NewDiscordClient(session *discordgo.Session, log zerolog.Logger) Platform {
	return &discordClient{session: session, log: log}
}

// call executes fn, recording metrics and translating errors into typed errors.
func (c *discordClient) call(endpoint string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	metrics.APIDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	if err != nil {
		translated := translateError(err)
		metrics.APICalls.WithLabelValues(endpoint, statusLabel(err)).Inc()
		c.log.Debug().Str("endpoint", endpoint).Err(translated).Dur("elapsed", elapsed).
			Msg("discord api request failed")
		return translated
	}
	metrics.APICalls.WithLabelValues(endpoint, "2xx").Inc()
	c.log.Trace().Str("endpoint", endpoint).Dur("elapsed", elapsed).Msg("discord api response")
	return nil
}

// Guild returns the community view, preferring the gateway cache.
func (c *discordClient) Guild(ctx context.Context, guildID string) (Guild, error) {
	if g, err := c.session.State.Guild(guildID); err == nil {
		c.session.State.RLock()
		out := Guild{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID, BoostCount: g.PremiumSubscriptionCount}
		c.session.State.RUnlock()
		return out, nil
	}

	var g *discordgo.Guild
	err := c.call("get-guild", func() error {
		var err error
		g, err = c.session.Guild(guildID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return Guild{}, withID(err, guildID)
	}
	return Guild{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID, BoostCount: g.PremiumSubscriptionCount}, nil
}

// Members lists every guild member over REST and joins presence and voice
// state from the gateway cache.
func (c *discordClient) Members(ctx context.Context, guildID string) ([]Member, error) {
	var all []*discordgo.Member
	after := ""
	for {
		var page []*discordgo.Member
		err := c.call("list-members", func() error {
			var err error
			page, err = c.session.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
			return err
		})
		if err != nil {
			return nil, withID(err, guildID)
		}
		all = append(all, page...)
		if len(page) < memberPageSize {
			break
		}
		after = page[len(page)-1].User.ID
	}

	statuses, voice := c.volatileState(guildID)
	return buildMembers(all, statuses, voice), nil
}

// volatileState snapshots presence and voice state for one guild from the cache.
func (c *discordClient) volatileState(guildID string) (map[string]Status, map[string]string) {
	statuses := make(map[string]Status)
	voice := make(map[string]string)

	g, err := c.session.State.Guild(guildID)
	if err != nil {
		return statuses, voice
	}

	c.session.State.RLock()
	defer c.session.State.RUnlock()
	for _, p := range g.Presences {
		if p == nil || p.User == nil {
			continue
		}
		statuses[p.User.ID] = Status(p.Status)
	}
	for _, vs := range g.VoiceStates {
		if vs == nil || vs.ChannelID == "" {
			continue
		}
		voice[vs.UserID] = vs.ChannelID
	}
	return statuses, voice
}

// buildMembers joins REST members with cached presence and voice state.
func buildMembers(members []*discordgo.Member, statuses map[string]Status, voice map[string]string) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m == nil || m.User == nil {
			continue
		}
		status, ok := statuses[m.User.ID]
		if !ok {
			status = StatusOffline
		}
		roles := make([]string, len(m.Roles))
		copy(roles, m.Roles)
		out = append(out, Member{
			UserID:         m.User.ID,
			Bot:            m.User.Bot,
			RoleIDs:        roles,
			Status:         status,
			VoiceChannelID: voice[m.User.ID],
		})
	}
	return out
}

// Channel fetches a channel over REST so the current name is authoritative.
func (c *discordClient) Channel(ctx context.Context, channelID string) (Channel, error) {
	var ch *discordgo.Channel
	err := c.call("get-channel", func() error {
		var err error
		ch, err = c.session.Channel(channelID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return Channel{}, withID(err, channelID)
	}
	return toChannel(ch), nil
}

func (c *discordClient) RenameChannel(ctx context.Context, channelID, name string) error {
	err := c.call("rename-channel", func() error {
		_, err := c.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
		return err
	})
	return withID(err, channelID)
}

// CreateDisplayChannel creates a voice channel under parentID that ordinary
// members cannot connect to.
func (c *discordClient) CreateDisplayChannel(ctx context.Context, guildID, parentID, name string) (Channel, error) {
	data := discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildVoice,
		ParentID: parentID,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{
				// The @everyone role shares the guild's ID.
				ID:   guildID,
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionVoiceConnect,
			},
		},
	}
	var ch *discordgo.Channel
	err := c.call("create-channel", func() error {
		var err error
		ch, err = c.session.GuildChannelCreateComplex(guildID, data, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return Channel{}, withID(err, guildID)
	}
	return toChannel(ch), nil
}

func (c *discordClient) DeleteChannel(ctx context.Context, channelID string) error {
	err := c.call("delete-channel", func() error {
		_, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
		return err
	})
	return withID(err, channelID)
}

// Ping verifies the REST API accepts the bot token.
func (c *discordClient) Ping(ctx context.Context) error {
	return c.call("ping", func() error {
		_, err := c.session.User("@me", discordgo.WithContext(ctx))
		return err
	})
}

// Close is a no-op: the gateway session is owned by the caller that opened it.
func (c *discordClient) Close() error {
	return nil
}

func toChannel(ch *discordgo.Channel) Channel {
	kind := ChannelKindOther
	switch ch.Type {
	case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
		kind = ChannelKindVoice
	case discordgo.ChannelTypeGuildCategory:
		kind = ChannelKindCategory
	}
	return Channel{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		ParentID: ch.ParentID,
		Name:     ch.Name,
		Kind:     kind,
	}
}

// translateError maps discordgo REST failures onto the typed errors of this package.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		retryAfter := 10 * time.Second
		if rl.RateLimit != nil && rl.TooManyRequests != nil && rl.RetryAfter > 0 {
			retryAfter = rl.RetryAfter
		}
		return &ErrRateLimit{RetryAfter: retryAfter}
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return err
	}

	msg := restErr.Response.Status
	if restErr.Message != nil && restErr.Message.Message != "" {
		msg = restErr.Message.Message
	}

	switch restErr.Response.StatusCode {
	case http.StatusUnauthorized:
		return &ErrUnauthorized{Msg: msg}
	case http.StatusForbidden:
		return &ErrForbidden{Msg: msg}
	case http.StatusNotFound:
		return &ErrNotFound{}
	case http.StatusTooManyRequests:
		retryAfter := 10 * time.Second
		if ra := restErr.Response.Header.Get("Retry-After"); ra != "" {
			if d, err := time.ParseDuration(ra + "s"); err == nil {
				retryAfter = d
			}
		}
		return &ErrRateLimit{RetryAfter: retryAfter}
	}
	return err
}

// withID fills in the resource ID on a not-found error.
func withID(err error, id string) error {
	var nf *ErrNotFound
	if errors.As(err, &nf) && nf.ID == "" {
		nf.ID = id
	}
	return err
}

func statusLabel(err error) string {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return fmt.Sprintf("%dxx", restErr.Response.StatusCode/100)
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return "4xx"
	}
	return "error"
}
