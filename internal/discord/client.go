// Package discord is the REST and gateway adapter for the messaging platform.
// Every REST call is bounded by the client's per-call timeout and returns an
// explicit error; the caller decides what degrades and what aborts.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://discord.com/api/v10"

var (
	// ErrNotFound is returned for 404 responses (unknown member, channel...).
	ErrNotFound = errors.New("resource not found")
	// ErrForbidden is returned for 403 responses, notably DMs to users who
	// block them and permission edits the bot is not allowed to make.
	ErrForbidden = errors.New("operation forbidden")
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	timeout    time.Duration
	log        *zap.Logger
}

func NewClient(token string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    defaultBaseURL,
		token:      token,
		timeout:    timeout,
		log:        log,
	}
}

// SetBaseURL overrides the API base URL. Used by tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform call failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("platform returned %d: %s", resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// GuildMember resolves a guild member. ErrNotFound when the user is not a
// member of the guild.
func (c *Client) GuildMember(ctx context.Context, guildID, userID string) (*Member, error) {
	var m Member
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/members/"+userID, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) CreateGuildChannel(ctx context.Context, guildID string, req CreateChannelRequest) (*Channel, error) {
	var ch Channel
	if err := c.do(ctx, http.MethodPost, "/guilds/"+guildID+"/channels", req, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// EditChannelPermission upserts one permission overwrite on a channel.
func (c *Client) EditChannelPermission(ctx context.Context, channelID string, ow PermissionOverwrite) error {
	body := map[string]interface{}{
		"type":  ow.Type,
		"allow": ow.Allow,
		"deny":  ow.Deny,
	}
	return c.do(ctx, http.MethodPut, "/channels/"+channelID+"/permissions/"+ow.ID, body, nil)
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+channelID, nil, nil)
}

func (c *Client) GuildChannels(ctx context.Context, guildID string) ([]Channel, error) {
	var chs []Channel
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/channels", nil, &chs); err != nil {
		return nil, err
	}
	return chs, nil
}

// LastMessage fetches the most recent message in a channel, or nil when the
// channel has no messages.
func (c *Client) LastMessage(ctx context.Context, channelID string) (*Message, error) {
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, "/channels/"+channelID+"/messages?limit=1", nil, &msgs); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

func (c *Client) SendMessage(ctx context.Context, channelID, content string, components []Component) (*Message, error) {
	body := map[string]interface{}{"content": content}
	if len(components) > 0 {
		body["components"] = components
	}
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendDM opens (or reuses) the DM channel with a user and sends content.
// ErrForbidden when the recipient blocks DMs from the bot.
func (c *Client) SendDM(ctx context.Context, userID, content string) error {
	var ch Channel
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", map[string]string{"recipient_id": userID}, &ch); err != nil {
		return err
	}
	_, err := c.SendMessage(ctx, ch.ID, content, nil)
	return err
}

// RespondEphemeral acknowledges an interaction with a message only the
// invoking user can see.
func (c *Client) RespondEphemeral(ctx context.Context, i *Interaction, content string) error {
	body := map[string]interface{}{
		"type": CallbackChannelMessage,
		"data": map[string]interface{}{
			"content": content,
			"flags":   FlagEphemeral,
		},
	}
	return c.do(ctx, http.MethodPost, "/interactions/"+i.ID+"/"+i.Token+"/callback", body, nil)
}

// UpdateMessage replaces the message the interaction's component lives on.
func (c *Client) UpdateMessage(ctx context.Context, i *Interaction, content string, components []Component) error {
	data := map[string]interface{}{
		"content":    content,
		"components": components,
	}
	body := map[string]interface{}{
		"type": CallbackUpdateMessage,
		"data": data,
	}
	return c.do(ctx, http.MethodPost, "/interactions/"+i.ID+"/"+i.Token+"/callback", body, nil)
}

// ShowModal opens a modal in response to a component press.
func (c *Client) ShowModal(ctx context.Context, i *Interaction, customID, title string, components []Component) error {
	body := map[string]interface{}{
		"type": CallbackModal,
		"data": map[string]interface{}{
			"custom_id":  customID,
			"title":      title,
			"components": components,
		},
	}
	return c.do(ctx, http.MethodPost, "/interactions/"+i.ID+"/"+i.Token+"/callback", body, nil)
}

// RegisterCommands bulk-overwrites the guild's application commands.
func (c *Client) RegisterCommands(ctx context.Context, appID, guildID string, cmds []ApplicationCommand) error {
	return c.do(ctx, http.MethodPut, "/applications/"+appID+"/guilds/"+guildID+"/commands", cmds, nil)
}

// GatewayURL asks the platform for the websocket gateway endpoint.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, "/gateway/bot", nil, &out); err != nil {
		return "", err
	}
	return out.URL + "/?v=10&encoding=json", nil
}

// PermBits renders a permission bit set the way the wire format wants it.
func PermBits(bits int64) string {
	return strconv.FormatInt(bits, 10)
}
