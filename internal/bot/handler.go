// Package bot routes gateway interactions to the lifecycle service: the
// collab slash command, the accept/reject buttons, and the reject-reason
// modal submission.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"collabd/internal/discord"
	"collabd/internal/model"

	"go.uber.org/zap"
)

const (
	CommandName     = "collab"
	commandOption   = "member"
	acceptPrefix    = "accept-"
	rejectPrefix    = "reject-"
	reasonPrefix    = "reject-reason-"
	reasonFieldID   = "reason"
	reasonMaxLength = 500
)

// Lifecycle is the slice of the collaboration service the router drives.
type Lifecycle interface {
	Initiate(ctx context.Context, requesterID, targetID string) (*model.CollaborationRequest, error)
	Accept(ctx context.Context, requesterID, actingUserID, channelID string) (*model.CollaborationRequest, error)
	CompleteRejection(ctx context.Context, requesterID, actingUserID, channelID, reason string) (*model.CollaborationRequest, error)
}

// Interactions is the subset of the platform client used to answer
// interactions.
type Interactions interface {
	RespondEphemeral(ctx context.Context, i *discord.Interaction, content string) error
	UpdateMessage(ctx context.Context, i *discord.Interaction, content string, components []discord.Component) error
	ShowModal(ctx context.Context, i *discord.Interaction, customID, title string, components []discord.Component) error
}

type Handler struct {
	svc    Lifecycle
	client Interactions
	log    *zap.Logger
}

func NewHandler(svc Lifecycle, client Interactions, log *zap.Logger) *Handler {
	return &Handler{svc: svc, client: client, log: log}
}

// Commands returns the declarative command metadata registered with the
// platform at startup.
func Commands() []discord.ApplicationCommand {
	return []discord.ApplicationCommand{{
		Name:        CommandName,
		Description: "Request a private collaboration channel with another member",
		Options: []discord.ApplicationCommandOption{{
			Type:        discord.CommandOptionUser,
			Name:        commandOption,
			Description: "The member you want to collaborate with",
			Required:    true,
		}},
	}}
}

// HandleInteraction dispatches one gateway interaction. Panics are recovered
// and logged so a bad event never takes the process down with all in-flight
// requests.
func (h *Handler) HandleInteraction(i *discord.Interaction) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Interaction handler panicked",
				zap.Any("panic", r), zap.String("interaction_id", i.ID))
		}
	}()

	ctx := context.Background()

	switch i.Type {
	case discord.InteractionTypeCommand:
		if i.Data.Name == CommandName {
			h.handleCommand(ctx, i)
			return
		}
	case discord.InteractionTypeComponent:
		if requesterID, ok := strings.CutPrefix(i.Data.CustomID, acceptPrefix); ok {
			h.handleAccept(ctx, i, requesterID)
			return
		}
		if requesterID, ok := strings.CutPrefix(i.Data.CustomID, rejectPrefix); ok && !strings.HasPrefix(i.Data.CustomID, reasonPrefix) {
			h.handleRejectButton(ctx, i, requesterID)
			return
		}
	case discord.InteractionTypeModalSubmit:
		if requesterID, ok := strings.CutPrefix(i.Data.CustomID, reasonPrefix); ok {
			h.handleRejectSubmit(ctx, i, requesterID)
			return
		}
	}

	h.log.Warn("Unhandled interaction",
		zap.Int("type", i.Type),
		zap.String("name", i.Data.Name),
		zap.String("custom_id", i.Data.CustomID))
	h.respond(ctx, i, "Sorry, I don't know how to handle that.")
}

func (h *Handler) handleCommand(ctx context.Context, i *discord.Interaction) {
	targetID := i.OptionValue(commandOption)
	if targetID == "" {
		h.respond(ctx, i, "You must choose a member to collaborate with.")
		return
	}

	req, err := h.svc.Initiate(ctx, i.ActorID(), targetID)
	if err != nil {
		h.respond(ctx, i, initiateErrorMessage(err))
		return
	}

	h.respond(ctx, i, fmt.Sprintf("Collaboration request sent to **%s** — waiting for their answer in <#%s>.", req.TargetName, req.ChannelID))
}

func (h *Handler) handleAccept(ctx context.Context, i *discord.Interaction, requesterID string) {
	req, err := h.svc.Accept(ctx, requesterID, i.ActorID(), i.ChannelID)
	if err != nil {
		h.respond(ctx, i, decisionErrorMessage(err))
		return
	}

	content := fmt.Sprintf("🤝 **%s** accepted the collaboration request. <@%s>, this channel is now yours too.", req.TargetName, req.RequesterID)
	if err := h.client.UpdateMessage(ctx, i, content, nil); err != nil {
		h.log.Error("Failed to update prompt after accept",
			zap.String("channel_id", i.ChannelID), zap.Error(err))
	}
}

// handleRejectButton opens the reason modal; no state changes until the modal
// is submitted.
func (h *Handler) handleRejectButton(ctx context.Context, i *discord.Interaction, requesterID string) {
	required := false
	fields := []discord.Component{{
		Type: discord.ComponentActionRow,
		Components: []discord.Component{{
			Type:      discord.ComponentTextInput,
			Style:     discord.TextInputParagraph,
			CustomID:  reasonFieldID,
			Label:     "Reason (optional)",
			Required:  &required,
			MaxLength: reasonMaxLength,
		}},
	}}
	if err := h.client.ShowModal(ctx, i, reasonPrefix+requesterID, "Decline collaboration", fields); err != nil {
		h.log.Error("Failed to open reason modal",
			zap.String("channel_id", i.ChannelID), zap.Error(err))
	}
}

func (h *Handler) handleRejectSubmit(ctx context.Context, i *discord.Interaction, requesterID string) {
	reason := i.TextInputValue(reasonFieldID)

	req, err := h.svc.CompleteRejection(ctx, requesterID, i.ActorID(), i.ChannelID, reason)
	if err != nil {
		h.respond(ctx, i, decisionErrorMessage(err))
		return
	}

	content := fmt.Sprintf("**%s** declined the collaboration request. This channel will be removed shortly.", req.TargetName)
	if err := h.client.UpdateMessage(ctx, i, content, nil); err != nil {
		h.log.Error("Failed to update prompt after reject",
			zap.String("channel_id", i.ChannelID), zap.Error(err))
	}
}

func (h *Handler) respond(ctx context.Context, i *discord.Interaction, content string) {
	if err := h.client.RespondEphemeral(ctx, i, content); err != nil {
		h.log.Error("Failed to acknowledge interaction",
			zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

func initiateErrorMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrSelfRequest):
		return "You can't request collaboration with yourself."
	case errors.Is(err, model.ErrDuplicateRequest):
		return "There is already a pending collaboration request between you two."
	case errors.Is(err, model.ErrCapacityExhausted):
		return "All collaboration categories are full right now. Please try again later."
	case errors.Is(err, model.ErrMemberResolution):
		return "I couldn't find that member in this server."
	case errors.Is(err, model.ErrChannelCreation):
		return "I couldn't create the collaboration channel. Please try again later."
	default:
		return "Something went wrong while creating your request. Please try again."
	}
}

func decisionErrorMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return "This request has already been handled."
	case errors.Is(err, model.ErrNotAuthorized):
		return "Only the member this request was sent to can answer it."
	case errors.Is(err, model.ErrPermissionGrant):
		return "I couldn't grant access to the requester. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
