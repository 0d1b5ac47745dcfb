package reaper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"collabd/internal/discord"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockPlatform implements Platform for testing
type MockPlatform struct {
	channels    []discord.Channel
	lastMessage map[string]*discord.Message
	fetchErr    map[string]error
	deleteErr   map[string]error
	deleted     []string
}

func newMockPlatform() *MockPlatform {
	return &MockPlatform{
		lastMessage: make(map[string]*discord.Message),
		fetchErr:    make(map[string]error),
		deleteErr:   make(map[string]error),
	}
}

func (m *MockPlatform) GuildChannels(ctx context.Context, guildID string) ([]discord.Channel, error) {
	return m.channels, nil
}

func (m *MockPlatform) LastMessage(ctx context.Context, channelID string) (*discord.Message, error) {
	if err := m.fetchErr[channelID]; err != nil {
		return nil, err
	}
	return m.lastMessage[channelID], nil
}

func (m *MockPlatform) DeleteChannel(ctx context.Context, channelID string) error {
	if err := m.deleteErr[channelID]; err != nil {
		return err
	}
	m.deleted = append(m.deleted, channelID)
	return nil
}

type stubPending map[string]bool

func (s stubPending) HasPending(channelID string) bool { return s[channelID] }

const threshold = 90 * 24 * time.Hour

var now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func msgAt(ts time.Time) *discord.Message {
	return &discord.Message{ID: "msg", Timestamp: ts}
}

func newReaper(platform *MockPlatform, pending PendingChecker) *Reaper {
	return New(platform, pending, "guild-1", []string{"cat-a", "cat-b"}, threshold, zap.NewNop())
}

func TestSweep_DeletesIdleManagedChannels(t *testing.T) {
	platform := newMockPlatform()
	platform.channels = []discord.Channel{
		{ID: "idle", ParentID: "cat-a"},
		{ID: "active", ParentID: "cat-a"},
	}
	platform.lastMessage["idle"] = msgAt(now.Add(-91 * 24 * time.Hour))
	platform.lastMessage["active"] = msgAt(now.Add(-89 * 24 * time.Hour))

	removed, err := newReaper(platform, nil).Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"idle"}, platform.deleted)
}

func TestSweep_IgnoresUnmanagedChannels(t *testing.T) {
	platform := newMockPlatform()
	platform.channels = []discord.Channel{
		{ID: "elsewhere", ParentID: "cat-other"},
		{ID: "top-level", ParentID: ""},
	}
	platform.lastMessage["elsewhere"] = msgAt(now.Add(-365 * 24 * time.Hour))

	removed, err := newReaper(platform, nil).Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Empty(t, platform.deleted)
}

func TestSweep_SkipsCategoryContainers(t *testing.T) {
	platform := newMockPlatform()
	platform.channels = []discord.Channel{
		{ID: "cat-b", Type: discord.ChannelTypeGuildCategory, ParentID: "cat-a"},
	}

	removed, err := newReaper(platform, nil).Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSweep_EmptyChannelAgedFromCreation(t *testing.T) {
	// Snowflakes embed their creation time; build one ~100 days before now
	// and one from today.
	old := snowflakeAt(now.Add(-100 * 24 * time.Hour))
	fresh := snowflakeAt(now.Add(-time.Hour))

	platform := newMockPlatform()
	platform.channels = []discord.Channel{
		{ID: old, ParentID: "cat-a"},
		{ID: fresh, ParentID: "cat-a"},
	}

	removed, err := newReaper(platform, nil).Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{old}, platform.deleted, "a freshly created empty channel must not be reaped")
}

func TestSweep_EmptyChannelWithUndatableIDLeftAlone(t *testing.T) {
	platform := newMockPlatform()
	platform.channels = []discord.Channel{
		{ID: "not-a-snowflake", ParentID: "cat-a"},
	}

	removed, err := newReaper(platform, nil).Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSweep_SparesPendingChannels(t *testing.T) {
	platform := newMockPlatform()
	platform.channels = []discord.Channel{
		{ID: "awaiting", ParentID: "cat-a"},
	}
	platform.lastMessage["awaiting"] = msgAt(now.Add(-120 * 24 * time.Hour))

	removed, err := newReaper(platform, stubPending{"awaiting": true}).Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSweep_OneFailureDoesNotAbort(t *testing.T) {
	platform := newMockPlatform()
	platform.channels = []discord.Channel{
		{ID: "fetch-fails", ParentID: "cat-a"},
		{ID: "delete-fails", ParentID: "cat-a"},
		{ID: "idle", ParentID: "cat-b"},
	}
	platform.fetchErr["fetch-fails"] = errors.New("boom")
	platform.lastMessage["delete-fails"] = msgAt(now.Add(-200 * 24 * time.Hour))
	platform.deleteErr["delete-fails"] = discord.ErrForbidden
	platform.lastMessage["idle"] = msgAt(now.Add(-200 * 24 * time.Hour))

	removed, err := newReaper(platform, nil).Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"idle"}, platform.deleted)
}

// snowflakeAt builds a snowflake ID whose embedded timestamp is ts.
func snowflakeAt(ts time.Time) string {
	const epoch = 1420070400000
	ms := ts.UnixMilli() - epoch
	return fmt.Sprintf("%d", uint64(ms)<<22)
}
