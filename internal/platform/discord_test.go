package platform

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func restError(status int, header http.Header) *discordgo.RESTError {
	if header == nil {
		header = http.Header{}
	}
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status), Header: header},
		Message:  &discordgo.APIErrorMessage{Code: 0, Message: "api says no"},
	}
}

// TestTranslateError verifies that REST status codes are translated into the
// appropriate typed errors.
func TestTranslateError(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"401 -> ErrUnauthorized", http.StatusUnauthorized, func(err error) bool {
			var e *ErrUnauthorized
			return errors.As(err, &e)
		}},
		{"403 -> ErrForbidden", http.StatusForbidden, func(err error) bool {
			var e *ErrForbidden
			return errors.As(err, &e)
		}},
		{"404 -> ErrNotFound", http.StatusNotFound, func(err error) bool {
			var e *ErrNotFound
			return errors.As(err, &e)
		}},
		{"429 -> ErrRateLimit", http.StatusTooManyRequests, func(err error) bool {
			var e *ErrRateLimit
			return errors.As(err, &e)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateError(restError(tc.status, nil))
			if !tc.check(got) {
				t.Errorf("translateError(%d) = %T (%v)", tc.status, got, got)
			}
		})
	}
}

func TestTranslateError_RetryAfterHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	got := translateError(restError(http.StatusTooManyRequests, h))

	var rl *ErrRateLimit
	if !errors.As(got, &rl) {
		t.Fatalf("expected ErrRateLimit, got %T", got)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter: got %s, want 7s", rl.RetryAfter)
	}
}

func TestTranslateError_Passthrough(t *testing.T) {
	plain := errors.New("connection reset")
	if got := translateError(plain); got != plain {
		t.Errorf("non-REST error should pass through unchanged, got %v", got)
	}
	if got := translateError(restError(http.StatusInternalServerError, nil)); got == nil {
		t.Error("500 should still be an error")
	}
	if translateError(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestWithIDFillsNotFound(t *testing.T) {
	err := withID(&ErrNotFound{}, "chan-1")
	var nf *ErrNotFound
	if !errors.As(err, &nf) || nf.ID != "chan-1" {
		t.Errorf("expected ErrNotFound with ID chan-1, got %v", err)
	}
}

func TestBuildMembers(t *testing.T) {
	members := []*discordgo.Member{
		{User: &discordgo.User{ID: "u1"}, Roles: []string{"r1"}},
		{User: &discordgo.User{ID: "u2"}},
		{User: &discordgo.User{ID: "u3", Bot: true}},
		{User: nil},
		nil,
	}
	statuses := map[string]Status{"u1": StatusOnline, "u3": StatusDoNotDisturb}
	voice := map[string]string{"u2": "vc-1"}

	got := buildMembers(members, statuses, voice)
	if len(got) != 3 {
		t.Fatalf("expected 3 members, got %d", len(got))
	}
	if got[0].Status != StatusOnline || got[0].VoiceChannelID != "" || len(got[0].RoleIDs) != 1 {
		t.Errorf("u1: got %+v", got[0])
	}
	if got[1].Status != StatusOffline || got[1].VoiceChannelID != "vc-1" {
		t.Errorf("u2: got %+v", got[1])
	}
	if !got[2].Bot {
		t.Errorf("u3 should be flagged as bot: %+v", got[2])
	}
}

func TestToChannelKind(t *testing.T) {
	cases := []struct {
		typ  discordgo.ChannelType
		want ChannelKind
	}{
		{discordgo.ChannelTypeGuildVoice, ChannelKindVoice},
		{discordgo.ChannelTypeGuildStageVoice, ChannelKindVoice},
		{discordgo.ChannelTypeGuildCategory, ChannelKindCategory},
		{discordgo.ChannelTypeGuildText, ChannelKindOther},
	}
	for _, tc := range cases {
		got := toChannel(&discordgo.Channel{ID: "c", Type: tc.typ})
		if got.Kind != tc.want {
			t.Errorf("type %d: got %s, want %s", tc.typ, got.Kind, tc.want)
		}
	}
}
