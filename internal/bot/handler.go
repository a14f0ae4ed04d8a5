package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/developingchet/guild-counter-sync/internal/commands"
	"github.com/developingchet/guild-counter-sync/internal/permission"
	"github.com/developingchet/guild-counter-sync/internal/sweep"
	"github.com/developingchet/guild-counter-sync/internal/trigger"
)

const (
	// commandTimeout bounds one command; interaction tokens stay valid for 15m.
	commandTimeout = 2 * time.Minute

	// maxImportBytes caps the size of an imported configuration file.
	maxImportBytes = 1 << 20
)

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.ready.Store(true)
	user := ""
	if r.User != nil {
		user = r.User.Username
	}
	b.log.Info().Str("user", user).Int("guilds", len(r.Guilds)).
		Int("configured", b.comp.Counters.Len()).Msg("gateway ready")
	b.scheduler.MarkReady()
}

func (b *Bot) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	b.ready.Store(true)
	b.log.Info().Msg("gateway session resumed")
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.ready.Store(false)
	b.log.Warn().Msg("gateway disconnected")
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	b.handleEvent(voiceEvent(v))
}

func (b *Bot) onMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	b.handleEvent(memberEvent(trigger.KindMemberUpdate, m.Member))
}

func (b *Bot) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	b.handleEvent(memberEvent(trigger.KindMemberJoin, m.Member))
}

func (b *Bot) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	b.handleEvent(memberEvent(trigger.KindMemberLeave, m.Member))
}

func (b *Bot) onGuildUpdate(_ *discordgo.Session, g *discordgo.GuildUpdate) {
	ev := trigger.Event{Kind: trigger.KindGuildUpdate}
	if g.Guild != nil {
		ev.GuildID = g.Guild.ID
	}
	b.handleEvent(ev)
}

func (b *Bot) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	ev := trigger.Event{Kind: trigger.KindPresence, GuildID: p.GuildID}
	if p.User != nil {
		ev.UserID = p.User.ID
	}
	b.handleEvent(ev)
}

func (b *Bot) handleEvent(ev trigger.Event) {
	if trigger.Filter(ev, b.filterCfg, b.log) {
		b.scheduler.Notify()
	}
}

// voiceEvent converts a voice state update. BeforeUpdate is only present
// when the session tracked the member's previous state.
func voiceEvent(v *discordgo.VoiceStateUpdate) trigger.Event {
	ev := trigger.Event{Kind: trigger.KindVoiceState}
	if v.VoiceState != nil {
		ev.GuildID = v.GuildID
		ev.UserID = v.UserID
		ev.NewChannelID = v.ChannelID
	}
	if v.BeforeUpdate != nil {
		ev.OldChannelID = v.BeforeUpdate.ChannelID
	}
	return ev
}

func memberEvent(kind trigger.Kind, m *discordgo.Member) trigger.Event {
	ev := trigger.Event{Kind: kind}
	if m == nil {
		return ev
	}
	ev.GuildID = m.GuildID
	if m.User != nil {
		ev.UserID = m.User.ID
	}
	return ev
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "Commands only work inside a server.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		if err != nil {
			b.log.Debug().Err(err).Msg("interaction reply failed")
		}
		return
	}

	log := b.log.With().Str("guild_id", i.GuildID).Str("command", i.ApplicationCommandData().Name).Logger()
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Warn().Err(err).Msg("interaction acknowledge failed")
		return
	}

	ctx, cancel := context.WithTimeout(b.runCtx, commandTimeout)
	defer cancel()
	resp := b.handleCommand(ctx, i.GuildID, i.Member, i.ApplicationCommandData())

	content := resp.Content
	edit := &discordgo.WebhookEdit{Content: &content}
	if resp.File != nil {
		edit.Files = []*discordgo.File{{
			Name:        resp.File.Name,
			ContentType: "application/json",
			Reader:      bytes.NewReader(resp.File.Data),
		}}
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		log.Warn().Err(err).Msg("interaction reply failed")
	}
}

// handleCommand resolves the caller's context and dispatches one command.
func (b *Bot) handleCommand(ctx context.Context, guildID string, member *discordgo.Member,
	data discordgo.ApplicationCommandInteractionData) commands.Response {

	inv, err := commands.ParseCommand(data)
	if err != nil {
		b.log.Debug().Err(err).Msg("unparseable command")
		return commands.Response{Content: "Unknown command."}
	}

	guild, err := b.platform.Guild(ctx, guildID)
	if err != nil {
		b.log.Warn().Err(err).Str("guild_id", guildID).Msg("read guild for command failed")
		return commands.Response{Content: "Could not read this server's information. Try again shortly."}
	}

	req := commands.Request{
		Action:     inv.Action,
		GuildID:    guildID,
		ActorID:    member.User.ID,
		ActorRoles: member.Roles,
		OwnerID:    guild.OwnerID,
		Args:       inv.Args,
	}
	if url := inv.AttachmentURL; url != "" {
		req.Fetch = func(ctx context.Context) ([]byte, error) {
			return b.fetchAttachment(ctx, url)
		}
	}

	resp := b.dispatcher.Dispatch(ctx, req)
	if resp.Allowed && resp.Err == nil && inv.Action == permission.ActionConfigImport {
		if !b.scheduler.Request(sweep.TriggerManual, guildID) {
			b.log.Warn().Str("guild_id", guildID).Msg("post-import sweep not queued")
		}
	}
	return resp
}

// fetchAttachment downloads an interaction attachment with the session's HTTP client.
func (b *Bot) fetchAttachment(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download attachment: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImportBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	if len(data) > maxImportBytes {
		return nil, fmt.Errorf("attachment larger than %d bytes", maxImportBytes)
	}
	return data, nil
}
