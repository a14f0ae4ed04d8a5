package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/developingchet/guild-counter-sync/internal/platform"
)

// Rename records one RenameChannel call that reached the platform.
type Rename struct {
	ChannelID string
	Name      string
}

// MockPlatform implements platform.Platform for testing.
// All methods are safe for concurrent use.
type MockPlatform struct {
	mu sync.Mutex

	guilds   map[string]platform.Guild
	members  map[string][]platform.Member
	channels map[string]platform.Channel

	// Error injection: method -> next error (consumed on first call)
	errors map[string]error

	// Persistent Members failures per guild
	guildErrors map[string]error

	// Persistent DeleteChannel failures per channel
	deleteErrors map[string]error

	// Call counts per method
	calls map[string]int

	renames []Rename
	deleted []string

	// Auto-increment ID counter for created channels
	nextID int
}

// NewMockPlatform returns a zero-state MockPlatform ready for use.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		guilds:      make(map[string]platform.Guild),
		members:     make(map[string][]platform.Member),
		channels:    make(map[string]platform.Channel),
		errors:      make(map[string]error),
		guildErrors:  make(map[string]error),
		deleteErrors: make(map[string]error),
		calls:        make(map[string]int),
	}
}

// AddGuild presets a guild.
func (m *MockPlatform) AddGuild(g platform.Guild) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guilds[g.ID] = g
}

// SetMembers presets the member list returned for a guild.
func (m *MockPlatform) SetMembers(guildID string, members []platform.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[guildID] = members
}

// AddChannel presets a channel.
func (m *MockPlatform) AddChannel(ch platform.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID] = ch
}

// RemoveChannel deletes a channel without recording a DeleteChannel call,
// as if it had been removed outside the bot.
func (m *MockPlatform) RemoveChannel(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, channelID)
}

// ChannelName returns the current name of a channel.
func (m *MockPlatform) ChannelName(channelID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	return ch.Name, ok
}

// ChannelsUnder returns the channels whose parent is parentID.
func (m *MockPlatform) ChannelsUnder(parentID string) []platform.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []platform.Channel
	for _, ch := range m.channels {
		if ch.ParentID == parentID {
			out = append(out, ch)
		}
	}
	return out
}

// Renames returns every successful rename in call order.
func (m *MockPlatform) Renames() []Rename {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rename, len(m.renames))
	copy(out, m.renames)
	return out
}

// Deleted returns the IDs passed to successful DeleteChannel calls.
func (m *MockPlatform) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}

// SetError injects an error to be returned on the next call to the named method.
// The error is consumed (returned once) and then cleared.
func (m *MockPlatform) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

// SetGuildError makes every Members call for guildID fail with err until
// cleared with a nil error.
func (m *MockPlatform) SetGuildError(guildID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.guildErrors, guildID)
		return
	}
	m.guildErrors[guildID] = err
}

// SetDeleteError makes every DeleteChannel call for channelID fail with err
// until cleared with a nil error.
func (m *MockPlatform) SetDeleteError(channelID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.deleteErrors, channelID)
		return
	}
	m.deleteErrors[channelID] = err
}

// Calls returns the total number of times the named method was called.
func (m *MockPlatform) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// popError returns and clears any pending error for the given method.
func (m *MockPlatform) popError(method string) error {
	err := m.errors[method]
	delete(m.errors, method)
	return err
}

func (m *MockPlatform) newID() string {
	m.nextID++
	return fmt.Sprintf("mock-channel-%d", m.nextID)
}

// --- Platform interface implementation --------------------------------------

func (m *MockPlatform) Guild(ctx context.Context, guildID string) (platform.Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Guild"]++
	if err := m.popError("Guild"); err != nil {
		return platform.Guild{}, err
	}
	g, ok := m.guilds[guildID]
	if !ok {
		return platform.Guild{}, &platform.ErrNotFound{ID: guildID}
	}
	return g, nil
}

func (m *MockPlatform) Members(ctx context.Context, guildID string) ([]platform.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Members"]++
	if err := m.popError("Members"); err != nil {
		return nil, err
	}
	if err := m.guildErrors[guildID]; err != nil {
		return nil, err
	}
	if _, ok := m.guilds[guildID]; !ok {
		return nil, &platform.ErrNotFound{ID: guildID}
	}
	out := make([]platform.Member, len(m.members[guildID]))
	copy(out, m.members[guildID])
	return out, nil
}

func (m *MockPlatform) Channel(ctx context.Context, channelID string) (platform.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Channel"]++
	if err := m.popError("Channel"); err != nil {
		return platform.Channel{}, err
	}
	ch, ok := m.channels[channelID]
	if !ok {
		return platform.Channel{}, &platform.ErrNotFound{ID: channelID}
	}
	return ch, nil
}

func (m *MockPlatform) RenameChannel(ctx context.Context, channelID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["RenameChannel"]++
	if err := m.popError("RenameChannel"); err != nil {
		return err
	}
	ch, ok := m.channels[channelID]
	if !ok {
		return &platform.ErrNotFound{ID: channelID}
	}
	ch.Name = name
	m.channels[channelID] = ch
	m.renames = append(m.renames, Rename{ChannelID: channelID, Name: name})
	return nil
}

func (m *MockPlatform) CreateDisplayChannel(ctx context.Context, guildID, parentID, name string) (platform.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["CreateDisplayChannel"]++
	if err := m.popError("CreateDisplayChannel"); err != nil {
		return platform.Channel{}, err
	}
	ch := platform.Channel{
		ID:       m.newID(),
		GuildID:  guildID,
		ParentID: parentID,
		Name:     name,
		Kind:     platform.ChannelKindVoice,
	}
	m.channels[ch.ID] = ch
	return ch, nil
}

func (m *MockPlatform) DeleteChannel(ctx context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["DeleteChannel"]++
	if err := m.popError("DeleteChannel"); err != nil {
		return err
	}
	if err := m.deleteErrors[channelID]; err != nil {
		return err
	}
	if _, ok := m.channels[channelID]; !ok {
		return &platform.ErrNotFound{ID: channelID}
	}
	delete(m.channels, channelID)
	m.deleted = append(m.deleted, channelID)
	return nil
}

func (m *MockPlatform) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Ping"]++
	return m.popError("Ping")
}

func (m *MockPlatform) Close() error {
	return nil
}
