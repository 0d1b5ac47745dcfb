package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"collabd/internal/discord"
	"collabd/internal/model"
	"collabd/internal/placement"
	"collabd/internal/store"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Platform is the subset of the messaging platform the lifecycle service
// drives. Channel deletion is not here: deletes always go through the job
// queue so they can be deferred.
type Platform interface {
	GuildMember(ctx context.Context, guildID, userID string) (*discord.Member, error)
	CreateGuildChannel(ctx context.Context, guildID string, req discord.CreateChannelRequest) (*discord.Channel, error)
	EditChannelPermission(ctx context.Context, channelID string, ow discord.PermissionOverwrite) error
	SendMessage(ctx context.Context, channelID, content string, components []discord.Component) (*discord.Message, error)
	SendDM(ctx context.Context, userID, content string) error
	GuildChannels(ctx context.Context, guildID string) ([]discord.Channel, error)
}

type EventBus interface {
	Publish(event string, fields map[string]interface{}) error
}

// JobClient schedules deferred background work.
type JobClient interface {
	ScheduleChannelDelete(channelID string, delay time.Duration) error
}

// CollabService owns the collaboration request lifecycle:
// PENDING → ACCEPTED | REJECTED | EXPIRED. All transitions and their side
// effects happen here; nothing else mutates a request.
type CollabService struct {
	platform  Platform
	selector  *placement.Selector
	pending   *store.Pending
	bus       EventBus
	jobClient JobClient
	log       *zap.Logger

	guildID     string
	botUserID   string
	deleteGrace time.Duration
}

type Options struct {
	GuildID     string
	BotUserID   string
	DeleteGrace time.Duration
	PendingTTL  time.Duration
	// MaxPending caps the store; 0 means unbounded. Overflow evicts the
	// oldest pending request as expired.
	MaxPending int
}

func NewCollabService(platform Platform, selector *placement.Selector, bus EventBus, log *zap.Logger, opts Options) *CollabService {
	s := &CollabService{
		platform:    platform,
		selector:    selector,
		bus:         bus,
		log:         log,
		guildID:     opts.GuildID,
		botUserID:   opts.BotUserID,
		deleteGrace: opts.DeleteGrace,
	}
	s.pending = store.NewPending(opts.MaxPending, opts.PendingTTL, s.handleExpiry)
	return s
}

// SetJobClient sets the client for scheduling deferred deletions.
func (s *CollabService) SetJobClient(client JobClient) {
	s.jobClient = client
}

// HasPending reports whether a channel holds a live pending request. The
// reaper consults this to spare freshly provisioned channels.
func (s *CollabService) HasPending(channelID string) bool {
	return s.pending.Has(channelID)
}

// Initiate starts a collaboration request from requester to target: validates
// the pair, picks a category with room, provisions the private channel with
// target-and-bot-only access, and posts the accept/reject prompt. The
// requester deliberately gets no channel access until the target accepts.
func (s *CollabService) Initiate(ctx context.Context, requesterID, targetID string) (*model.CollaborationRequest, error) {
	if requesterID == targetID {
		return nil, model.ErrSelfRequest
	}
	if s.pending.HasPair(requesterID, targetID) {
		return nil, model.ErrDuplicateRequest
	}

	requester, err := s.platform.GuildMember(ctx, s.guildID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("%w: requester %s: %v", model.ErrMemberResolution, requesterID, err)
	}
	target, err := s.platform.GuildMember(ctx, s.guildID, targetID)
	if err != nil {
		return nil, fmt.Errorf("%w: target %s: %v", model.ErrMemberResolution, targetID, err)
	}

	categoryID, err := s.placeChannel(ctx)
	if err != nil {
		return nil, err
	}

	channel, err := s.platform.CreateGuildChannel(ctx, s.guildID, discord.CreateChannelRequest{
		Name:     channelName(requester.DisplayName(), target.DisplayName()),
		Type:     discord.ChannelTypeGuildText,
		ParentID: categoryID,
		PermissionOverwrites: []discord.PermissionOverwrite{
			// The guild ID doubles as the @everyone role ID.
			{ID: s.guildID, Type: discord.OverwriteRole, Deny: discord.PermBits(discord.PermViewChannel | discord.PermSendMessages)},
			{ID: targetID, Type: discord.OverwriteMember, Allow: discord.PermBits(discord.PermViewChannel | discord.PermSendMessages)},
			{ID: s.botUserID, Type: discord.OverwriteMember, Allow: discord.PermBits(discord.PermViewChannel | discord.PermSendMessages)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrChannelCreation, err)
	}

	req := &model.CollaborationRequest{
		ID:            ulid.Make().String(),
		RequesterID:   requesterID,
		RequesterName: requester.DisplayName(),
		TargetID:      targetID,
		TargetName:    target.DisplayName(),
		ChannelID:     channel.ID,
		CategoryID:    categoryID,
		Status:        model.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.pending.Put(req); err != nil {
		// A concurrent request for the same pair won the race. Tear the
		// channel down again; the pair keeps the earlier channel.
		s.scheduleDelete(channel.ID, 0)
		return nil, err
	}

	prompt := fmt.Sprintf("<@%s>, **%s** would like to collaborate with you. Do you accept?", targetID, requester.DisplayName())
	if _, err := s.platform.SendMessage(ctx, channel.ID, prompt, DecisionControls(requesterID)); err != nil {
		// A channel without the decision controls is unusable. Tear it down
		// and free the pair rather than leave a dead request behind.
		s.pending.Complete(channel.ID, model.StatusExpired)
		s.scheduleDelete(channel.ID, 0)
		return nil, fmt.Errorf("%w: failed to post decision prompt: %v", model.ErrChannelCreation, err)
	}

	_ = s.bus.Publish("collab.requested", map[string]interface{}{
		"requestId":   req.ID,
		"requesterId": requesterID,
		"targetId":    targetID,
		"channelId":   channel.ID,
		"categoryId":  categoryID,
	})

	s.log.Info("Collaboration request created",
		zap.String("request_id", req.ID),
		zap.String("requester_id", requesterID),
		zap.String("target_id", targetID),
		zap.String("channel_id", channel.ID))
	return req, nil
}

// Accept grants the requester access and moves the request to ACCEPTED. Only
// the recorded target may accept; the requester ID encoded in the control
// must match the stored record. A second press on a completed request returns
// model.ErrNotFound, which callers treat as a benign no-op.
func (s *CollabService) Accept(ctx context.Context, requesterID, actingUserID, channelID string) (*model.CollaborationRequest, error) {
	req, ok := s.pending.Get(channelID)
	if !ok || req.RequesterID != requesterID {
		return nil, model.ErrNotFound
	}
	if actingUserID != req.TargetID {
		return nil, model.ErrNotAuthorized
	}

	err := s.platform.EditChannelPermission(ctx, channelID, discord.PermissionOverwrite{
		ID:    req.RequesterID,
		Type:  discord.OverwriteMember,
		Allow: discord.PermBits(discord.PermViewChannel | discord.PermSendMessages),
	})
	if err != nil {
		// Without the grant the requester cannot enter; do not mark the
		// request accepted.
		return nil, fmt.Errorf("%w: %v", model.ErrPermissionGrant, err)
	}

	req, ok = s.pending.Complete(channelID, model.StatusAccepted)
	if !ok {
		return nil, model.ErrNotFound
	}

	_ = s.bus.Publish("collab.accepted", map[string]interface{}{
		"requestId": req.ID,
		"channelId": channelID,
	})

	s.log.Info("Collaboration request accepted",
		zap.String("request_id", req.ID), zap.String("channel_id", channelID))
	return req, nil
}

// CompleteRejection moves the request to REJECTED, then runs two independent
// best-effort side effects: notify the requester (DM, falling back to the
// channel when DMs are blocked) and schedule channel deletion after the grace
// delay so the UI update can render first.
func (s *CollabService) CompleteRejection(ctx context.Context, requesterID, actingUserID, channelID, reason string) (*model.CollaborationRequest, error) {
	req, ok := s.pending.Get(channelID)
	if !ok || req.RequesterID != requesterID {
		return nil, model.ErrNotFound
	}
	if actingUserID != req.TargetID {
		return nil, model.ErrNotAuthorized
	}

	req, ok = s.pending.Complete(channelID, model.StatusRejected)
	if !ok {
		return nil, model.ErrNotFound
	}

	notice := fmt.Sprintf("**%s** declined your collaboration request.", req.TargetName)
	if reason != "" {
		notice += fmt.Sprintf(" Reason: %s", reason)
	}
	if err := s.platform.SendDM(ctx, req.RequesterID, notice); err != nil {
		s.log.Warn("DM undeliverable, falling back to channel notice",
			zap.String("requester_id", req.RequesterID), zap.Error(err))
		if _, err := s.platform.SendMessage(ctx, channelID, fmt.Sprintf("<@%s> %s", req.RequesterID, notice), nil); err != nil {
			s.log.Error("Channel fallback notice failed",
				zap.String("channel_id", channelID), zap.Error(err))
		}
	}

	s.scheduleDelete(channelID, s.deleteGrace)

	_ = s.bus.Publish("collab.rejected", map[string]interface{}{
		"requestId": req.ID,
		"channelId": channelID,
		"reason":    reason,
	})

	s.log.Info("Collaboration request rejected",
		zap.String("request_id", req.ID), zap.String("channel_id", channelID))
	return req, nil
}

// handleExpiry runs when a pending request outlives the store TTL. The
// channel goes away the same deferred way rejected channels do.
func (s *CollabService) handleExpiry(req *model.CollaborationRequest) {
	s.scheduleDelete(req.ChannelID, 0)

	_ = s.bus.Publish("collab.expired", map[string]interface{}{
		"requestId": req.ID,
		"channelId": req.ChannelID,
	})

	s.log.Info("Collaboration request expired",
		zap.String("request_id", req.ID), zap.String("channel_id", req.ChannelID))
}

// placeChannel reads live child counts and runs the placement policy. Counts
// are never cached, so two concurrent initiations can both land in a category
// at 49/50; the cap is a soft limit.
func (s *CollabService) placeChannel(ctx context.Context) (string, error) {
	channels, err := s.platform.GuildChannels(ctx, s.guildID)
	if err != nil {
		return "", fmt.Errorf("%w: failed to list channels: %v", model.ErrChannelCreation, err)
	}
	counts := make(map[string]int)
	for _, ch := range channels {
		if ch.ParentID != "" && ch.Type != discord.ChannelTypeGuildCategory {
			counts[ch.ParentID]++
		}
	}
	categoryID, ok := s.selector.Select(counts)
	if !ok {
		return "", model.ErrCapacityExhausted
	}
	return categoryID, nil
}

func (s *CollabService) scheduleDelete(channelID string, delay time.Duration) {
	if s.jobClient == nil {
		return
	}
	if err := s.jobClient.ScheduleChannelDelete(channelID, delay); err != nil {
		s.log.Error("Failed to schedule channel deletion",
			zap.String("channel_id", channelID), zap.Error(err))
	}
}

// DecisionControls builds the accept/reject button row for a prompt. Each
// custom ID encodes the requester so a control can be matched back to its
// request record.
func DecisionControls(requesterID string) []discord.Component {
	return []discord.Component{{
		Type: discord.ComponentActionRow,
		Components: []discord.Component{
			{Type: discord.ComponentButton, Style: discord.ButtonSuccess, Label: "Accept", CustomID: "accept-" + requesterID},
			{Type: discord.ComponentButton, Style: discord.ButtonDanger, Label: "Reject", CustomID: "reject-" + requesterID},
		},
	}}
}

func channelName(requesterName, targetName string) string {
	return "collab-" + slug(requesterName) + "-" + slug(targetName)
}

// slug reduces a display name to channel-name-safe characters.
func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "member"
	}
	return out
}
