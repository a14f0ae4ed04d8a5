package counter

import (
	"errors"
	"fmt"
)

// ErrConfigurationAbsent is returned when a community has no counter configuration.
var ErrConfigurationAbsent = errors.New("counter configuration absent")

// ErrSurfaceMissing reports a configured display surface that no longer
// exists, or a channel that cannot be one of the guild's surfaces. Reason is
// empty for a deleted channel.
type ErrSurfaceMissing struct {
	GuildID   string
	ChannelID string
	Reason    string
}

func (e *ErrSurfaceMissing) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("display surface %s of guild %s is unusable: %s", e.ChannelID, e.GuildID, e.Reason)
	}
	return fmt.Sprintf("display surface %s of guild %s is missing", e.ChannelID, e.GuildID)
}

// ErrSurfaceNotOwned is returned when a configuration names a channel that is
// not a voice channel of its guild.
type ErrSurfaceNotOwned struct {
	GuildID   string
	ChannelID string
	Reason    string
}

func (e *ErrSurfaceNotOwned) Error() string {
	return fmt.Sprintf("channel %s cannot be a display surface of guild %s: %s", e.ChannelID, e.GuildID, e.Reason)
}

// Failure reasons carried by ErrSurfaceUpdateFailed.
const (
	ReasonRateLimited = "rate_limited"
	ReasonForbidden   = "forbidden"
	ReasonRead        = "read"
	ReasonRender      = "render"
	ReasonAPI         = "api"
)

// ErrSurfaceUpdateFailed reports a rename that could not be applied. The next
// sweep retries it since the names will still differ.
type ErrSurfaceUpdateFailed struct {
	GuildID   string
	ChannelID string
	Reason    string
	Err       error
}

func (e *ErrSurfaceUpdateFailed) Error() string {
	return fmt.Sprintf("update display surface %s of guild %s (%s): %v", e.ChannelID, e.GuildID, e.Reason, e.Err)
}

func (e *ErrSurfaceUpdateFailed) Unwrap() error { return e.Err }
