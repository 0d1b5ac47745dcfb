// Package reaper reclaims idle collaboration channels under the managed
// categories. It runs on a fixed schedule and is deliberately unaware of the
// request lifecycle beyond a pending check: the inactivity threshold is far
// longer than any request should live.
package reaper

import (
	"context"
	"time"

	"collabd/internal/discord"

	"go.uber.org/zap"
)

type Platform interface {
	GuildChannels(ctx context.Context, guildID string) ([]discord.Channel, error)
	LastMessage(ctx context.Context, channelID string) (*discord.Message, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

// PendingChecker reports whether a channel still holds a live request.
type PendingChecker interface {
	HasPending(channelID string) bool
}

type Reaper struct {
	platform  Platform
	pending   PendingChecker
	guildID   string
	managed   map[string]bool
	threshold time.Duration
	log       *zap.Logger
}

func New(platform Platform, pending PendingChecker, guildID string, managedCategories []string, threshold time.Duration, log *zap.Logger) *Reaper {
	managed := make(map[string]bool, len(managedCategories))
	for _, id := range managedCategories {
		managed[id] = true
	}
	return &Reaper{
		platform:  platform,
		pending:   pending,
		guildID:   guildID,
		managed:   managed,
		threshold: threshold,
		log:       log,
	}
}

// Sweep deletes every channel under a managed category whose last activity is
// older than the threshold relative to now. A channel with no messages is
// aged from its creation timestamp, never from epoch. Each channel is
// evaluated independently; one channel's failure never aborts the sweep.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) (int, error) {
	channels, err := r.platform.GuildChannels(ctx, r.guildID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, ch := range channels {
		if ch.Type == discord.ChannelTypeGuildCategory || !r.managed[ch.ParentID] {
			continue
		}
		if r.pending != nil && r.pending.HasPending(ch.ID) {
			continue
		}

		lastActivity, ok := r.lastActivity(ctx, ch)
		if !ok {
			continue
		}
		if now.Sub(lastActivity) <= r.threshold {
			continue
		}

		if err := r.platform.DeleteChannel(ctx, ch.ID); err != nil {
			r.log.Warn("Failed to delete idle channel",
				zap.String("channel_id", ch.ID), zap.Error(err))
			continue
		}
		removed++
		r.log.Info("Reaped idle channel",
			zap.String("channel_id", ch.ID),
			zap.String("category_id", ch.ParentID),
			zap.Time("last_activity", lastActivity))
	}
	return removed, nil
}

func (r *Reaper) lastActivity(ctx context.Context, ch discord.Channel) (time.Time, bool) {
	msg, err := r.platform.LastMessage(ctx, ch.ID)
	if err != nil {
		r.log.Warn("Failed to fetch last message",
			zap.String("channel_id", ch.ID), zap.Error(err))
		return time.Time{}, false
	}
	if msg != nil {
		return msg.Timestamp, true
	}
	created := discord.SnowflakeTime(ch.ID)
	if created.IsZero() {
		// No messages and no datable ID: leave the channel alone rather
		// than treat it as infinitely idle.
		return time.Time{}, false
	}
	return created, true
}
