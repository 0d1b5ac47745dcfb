package bot

import (
	"context"
	"testing"

	"collabd/internal/discord"
	"collabd/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockLifecycle implements Lifecycle for testing
type MockLifecycle struct {
	initiateErr error
	decisionErr error

	initiated  [][2]string // requester, target
	accepted   [][3]string // requester, actor, channel
	rejections []rejection
}

type rejection struct {
	requesterID, actingUserID, channelID, reason string
}

func (m *MockLifecycle) request() *model.CollaborationRequest {
	return &model.CollaborationRequest{
		ID:          "req-1",
		RequesterID: "alice",
		TargetID:    "bob",
		TargetName:  "Bob",
		ChannelID:   "chan-1",
		Status:      model.StatusPending,
	}
}

func (m *MockLifecycle) Initiate(ctx context.Context, requesterID, targetID string) (*model.CollaborationRequest, error) {
	if m.initiateErr != nil {
		return nil, m.initiateErr
	}
	m.initiated = append(m.initiated, [2]string{requesterID, targetID})
	return m.request(), nil
}

func (m *MockLifecycle) Accept(ctx context.Context, requesterID, actingUserID, channelID string) (*model.CollaborationRequest, error) {
	if m.decisionErr != nil {
		return nil, m.decisionErr
	}
	m.accepted = append(m.accepted, [3]string{requesterID, actingUserID, channelID})
	return m.request(), nil
}

func (m *MockLifecycle) CompleteRejection(ctx context.Context, requesterID, actingUserID, channelID, reason string) (*model.CollaborationRequest, error) {
	if m.decisionErr != nil {
		return nil, m.decisionErr
	}
	m.rejections = append(m.rejections, rejection{requesterID, actingUserID, channelID, reason})
	return m.request(), nil
}

// MockInteractions implements Interactions for testing
type MockInteractions struct {
	ephemeral []string
	updates   []string
	modals    []string
}

func (m *MockInteractions) RespondEphemeral(ctx context.Context, i *discord.Interaction, content string) error {
	m.ephemeral = append(m.ephemeral, content)
	return nil
}

func (m *MockInteractions) UpdateMessage(ctx context.Context, i *discord.Interaction, content string, components []discord.Component) error {
	m.updates = append(m.updates, content)
	return nil
}

func (m *MockInteractions) ShowModal(ctx context.Context, i *discord.Interaction, customID, title string, components []discord.Component) error {
	m.modals = append(m.modals, customID)
	return nil
}

func newTestHandler() (*Handler, *MockLifecycle, *MockInteractions) {
	svc := &MockLifecycle{}
	client := &MockInteractions{}
	return NewHandler(svc, client, zap.NewNop()), svc, client
}

func interactionFrom(userID string) *discord.Member {
	return &discord.Member{User: &discord.User{ID: userID, Username: userID}}
}

func TestHandleCommand_Initiates(t *testing.T) {
	h, svc, client := newTestHandler()

	h.HandleInteraction(&discord.Interaction{
		ID:     "i-1",
		Type:   discord.InteractionTypeCommand,
		Member: interactionFrom("alice"),
		Data: discord.InteractionData{
			Name:    CommandName,
			Options: []discord.CommandOption{{Name: "member", Type: discord.CommandOptionUser, Value: "bob"}},
		},
	})

	require.Len(t, svc.initiated, 1)
	assert.Equal(t, [2]string{"alice", "bob"}, svc.initiated[0])
	require.Len(t, client.ephemeral, 1)
	assert.Contains(t, client.ephemeral[0], "chan-1")
}

func TestHandleCommand_MissingTarget(t *testing.T) {
	h, svc, client := newTestHandler()

	h.HandleInteraction(&discord.Interaction{
		ID:     "i-1",
		Type:   discord.InteractionTypeCommand,
		Member: interactionFrom("alice"),
		Data:   discord.InteractionData{Name: CommandName},
	})

	assert.Empty(t, svc.initiated)
	require.Len(t, client.ephemeral, 1)
}

func TestHandleCommand_ErrorsAreUserReadable(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{model.ErrSelfRequest, "yourself"},
		{model.ErrDuplicateRequest, "already"},
		{model.ErrCapacityExhausted, "full"},
		{model.ErrMemberResolution, "find"},
		{model.ErrChannelCreation, "create"},
	}
	for _, tc := range cases {
		h, svc, client := newTestHandler()
		svc.initiateErr = tc.err

		h.HandleInteraction(&discord.Interaction{
			ID:     "i-1",
			Type:   discord.InteractionTypeCommand,
			Member: interactionFrom("alice"),
			Data: discord.InteractionData{
				Name:    CommandName,
				Options: []discord.CommandOption{{Name: "member", Value: "bob"}},
			},
		})

		require.Len(t, client.ephemeral, 1)
		assert.Contains(t, client.ephemeral[0], tc.want)
	}
}

func TestHandleAccept_RoutesEncodedRequester(t *testing.T) {
	h, svc, client := newTestHandler()

	h.HandleInteraction(&discord.Interaction{
		ID:        "i-2",
		Type:      discord.InteractionTypeComponent,
		ChannelID: "chan-1",
		Member:    interactionFrom("bob"),
		Data:      discord.InteractionData{CustomID: "accept-alice"},
	})

	require.Len(t, svc.accepted, 1)
	assert.Equal(t, [3]string{"alice", "bob", "chan-1"}, svc.accepted[0])
	require.Len(t, client.updates, 1)
	assert.Contains(t, client.updates[0], "accepted")
}

func TestHandleRejectButton_OpensModalWithoutTransition(t *testing.T) {
	h, svc, client := newTestHandler()

	h.HandleInteraction(&discord.Interaction{
		ID:        "i-3",
		Type:      discord.InteractionTypeComponent,
		ChannelID: "chan-1",
		Member:    interactionFrom("bob"),
		Data:      discord.InteractionData{CustomID: "reject-alice"},
	})

	assert.Empty(t, svc.rejections, "the button press itself must not mutate state")
	require.Len(t, client.modals, 1)
	assert.Equal(t, "reject-reason-alice", client.modals[0])
}

func TestHandleRejectSubmit_PassesReason(t *testing.T) {
	h, svc, client := newTestHandler()

	h.HandleInteraction(&discord.Interaction{
		ID:        "i-4",
		Type:      discord.InteractionTypeModalSubmit,
		ChannelID: "chan-1",
		Member:    interactionFrom("bob"),
		Data: discord.InteractionData{
			CustomID: "reject-reason-alice",
			Components: []discord.Component{{
				Type: discord.ComponentActionRow,
				Components: []discord.Component{{
					Type:     discord.ComponentTextInput,
					CustomID: "reason",
					Value:    "too busy",
				}},
			}},
		},
	})

	require.Len(t, svc.rejections, 1)
	assert.Equal(t, rejection{"alice", "bob", "chan-1", "too busy"}, svc.rejections[0])
	require.Len(t, client.updates, 1)
	assert.Contains(t, client.updates[0], "declined")
}

func TestHandleDecision_AlreadyHandled(t *testing.T) {
	h, svc, client := newTestHandler()
	svc.decisionErr = model.ErrNotFound

	h.HandleInteraction(&discord.Interaction{
		ID:        "i-5",
		Type:      discord.InteractionTypeComponent,
		ChannelID: "chan-1",
		Member:    interactionFrom("bob"),
		Data:      discord.InteractionData{CustomID: "accept-alice"},
	})

	assert.Empty(t, client.updates)
	require.Len(t, client.ephemeral, 1)
	assert.Contains(t, client.ephemeral[0], "already")
}

func TestHandleDecision_WrongUser(t *testing.T) {
	h, svc, client := newTestHandler()
	svc.decisionErr = model.ErrNotAuthorized

	h.HandleInteraction(&discord.Interaction{
		ID:        "i-6",
		Type:      discord.InteractionTypeComponent,
		ChannelID: "chan-1",
		Member:    interactionFrom("mallory"),
		Data:      discord.InteractionData{CustomID: "accept-alice"},
	})

	require.Len(t, client.ephemeral, 1)
	assert.Contains(t, client.ephemeral[0], "Only the member")
}

func TestHandleUnknownInteraction(t *testing.T) {
	h, _, client := newTestHandler()

	h.HandleInteraction(&discord.Interaction{
		ID:     "i-7",
		Type:   discord.InteractionTypeComponent,
		Member: interactionFrom("bob"),
		Data:   discord.InteractionData{CustomID: "mystery-button"},
	})

	require.Len(t, client.ephemeral, 1)
}

func TestCommands_Metadata(t *testing.T) {
	cmds := Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, CommandName, cmds[0].Name)
	require.Len(t, cmds[0].Options, 1)
	assert.True(t, cmds[0].Options[0].Required)
	assert.Equal(t, discord.CommandOptionUser, cmds[0].Options[0].Type)
}
