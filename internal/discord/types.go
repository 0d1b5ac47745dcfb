package discord

import (
	"strconv"
	"time"
)

// Channel types
const (
	ChannelTypeGuildText     = 0
	ChannelTypeGuildCategory = 4
)

// Permission bits used by the bot
const (
	PermViewChannel  = 1 << 10
	PermSendMessages = 1 << 11
)

// Permission overwrite target kinds
const (
	OverwriteRole   = 0
	OverwriteMember = 1
)

// Interaction types
const (
	InteractionTypePing        = 1
	InteractionTypeCommand     = 2
	InteractionTypeComponent   = 3
	InteractionTypeModalSubmit = 5
)

// Interaction callback types
const (
	CallbackChannelMessage = 4
	CallbackUpdateMessage  = 7
	CallbackModal          = 9
)

// Message flags
const FlagEphemeral = 1 << 6

// Component types
const (
	ComponentActionRow = 1
	ComponentButton    = 2
	ComponentTextInput = 4
)

// Button styles
const (
	ButtonSuccess = 3
	ButtonDanger  = 4
)

// Text input styles
const TextInputParagraph = 2

type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
}

type Member struct {
	User *User  `json:"user,omitempty"`
	Nick string `json:"nick,omitempty"`
}

// DisplayName resolves the name shown in prompts: nickname first, then the
// user's global display name, then the bare username.
func (m *Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

type Channel struct {
	ID       string `json:"id"`
	Type     int    `json:"type"`
	Name     string `json:"name,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Author    User      `json:"author"`
}

type PermissionOverwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

type CreateChannelRequest struct {
	Name                 string                `json:"name"`
	Type                 int                   `json:"type"`
	ParentID             string                `json:"parent_id,omitempty"`
	PermissionOverwrites []PermissionOverwrite `json:"permission_overwrites,omitempty"`
}

// Component is a message component: action rows nest buttons or text inputs.
type Component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Required   *bool       `json:"required,omitempty"`
	MaxLength  int         `json:"max_length,omitempty"`
	Value      string      `json:"value,omitempty"`
	Components []Component `json:"components,omitempty"`
}

type CommandOption struct {
	Name  string `json:"name"`
	Type  int    `json:"type"`
	Value string `json:"value,omitempty"`
}

type InteractionData struct {
	Name       string          `json:"name,omitempty"`
	CustomID   string          `json:"custom_id,omitempty"`
	Options    []CommandOption `json:"options,omitempty"`
	Components []Component     `json:"components,omitempty"`
}

type Interaction struct {
	ID        string          `json:"id"`
	Type      int             `json:"type"`
	Token     string          `json:"token"`
	GuildID   string          `json:"guild_id,omitempty"`
	ChannelID string          `json:"channel_id,omitempty"`
	Member    *Member         `json:"member,omitempty"`
	User      *User           `json:"user,omitempty"`
	Data      InteractionData `json:"data"`
}

// ActorID returns the ID of the user who triggered the interaction. Guild
// interactions carry a member, DM interactions a bare user.
func (i *Interaction) ActorID() string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// OptionValue returns the value of the named command option, or "".
func (i *Interaction) OptionValue(name string) string {
	for _, opt := range i.Data.Options {
		if opt.Name == name {
			return opt.Value
		}
	}
	return ""
}

// TextInputValue returns the submitted value of the named modal field, or "".
func (i *Interaction) TextInputValue(customID string) string {
	for _, row := range i.Data.Components {
		for _, c := range row.Components {
			if c.CustomID == customID {
				return c.Value
			}
		}
	}
	return ""
}

// ApplicationCommand is the declarative metadata registered with the platform.
type ApplicationCommand struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Options     []ApplicationCommandOption `json:"options,omitempty"`
}

type ApplicationCommandOption struct {
	Type        int    `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Command option type for a user parameter
const CommandOptionUser = 6

// Platform epoch (ms) for snowflake IDs.
const snowflakeEpoch = 1420070400000

// SnowflakeTime extracts the creation timestamp embedded in a snowflake ID.
// Returns the zero time if the ID is not numeric.
func SnowflakeTime(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}
	}
	ms := int64(n>>22) + snowflakeEpoch
	return time.UnixMilli(ms).UTC()
}
