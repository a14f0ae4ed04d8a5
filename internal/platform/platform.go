package platform

import (
	"context"
	"fmt"
	"time"
)

// Status is a member's presence status.
type Status string

const (
	StatusOnline       Status = "online"
	StatusIdle         Status = "idle"
	StatusDoNotDisturb Status = "dnd"
	StatusInvisible    Status = "invisible"
	StatusOffline      Status = "offline"
)

// Active reports whether the status counts as present (online, idle or dnd).
func (s Status) Active() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusDoNotDisturb:
		return true
	}
	return false
}

// ChannelKind classifies a channel for the purposes of this system.
type ChannelKind string

const (
	ChannelKindVoice    ChannelKind = "voice"
	ChannelKindCategory ChannelKind = "category"
	ChannelKindOther    ChannelKind = "other"
)

// Guild is the community-level view needed for counters and permissions.
type Guild struct {
	ID         string
	Name       string
	OwnerID    string
	BoostCount int
}

// Member is one guild member with the volatile state counters depend on.
type Member struct {
	UserID         string
	Bot            bool
	RoleIDs        []string
	Status         Status
	VoiceChannelID string // empty when not connected
}

// Channel is a guild channel. Display surfaces are voice channels.
type Channel struct {
	ID       string
	GuildID  string
	ParentID string
	Name     string
	Kind     ChannelKind
}

// Platform is the chat-platform seam. All methods accept context for deadline control.
type Platform interface {
	// Community reads
	Guild(ctx context.Context, guildID string) (Guild, error)
	Members(ctx context.Context, guildID string) ([]Member, error)

	// Channels
	Channel(ctx context.Context, channelID string) (Channel, error)
	RenameChannel(ctx context.Context, channelID, name string) error
	CreateDisplayChannel(ctx context.Context, guildID, parentID, name string) (Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error

	// Session
	Ping(ctx context.Context) error
	Close() error
}

// --- Typed errors -----------------------------------------------------------

// ErrUnauthorized is returned on HTTP 401 responses (invalid bot token).
type ErrUnauthorized struct {
	Msg string
}

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("unauthorized: %s", e.Msg)
}

// ErrForbidden is returned when the bot lacks a permission for the call.
type ErrForbidden struct {
	Msg string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Msg)
}

// ErrNotFound is returned when a resource does not exist.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("not found: %s", e.ID)
}

// ErrRateLimit is returned when the platform signals rate limiting.
type ErrRateLimit struct {
	RetryAfter time.Duration
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}
