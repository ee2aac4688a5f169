package domain

import "time"

// Role tags an utterance for the generation service.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance is one role-tagged piece of text in a conversation.
type Utterance struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func System(content string) Utterance    { return Utterance{Role: RoleSystem, Content: content} }
func User(content string) Utterance      { return Utterance{Role: RoleUser, Content: content} }
func Assistant(content string) Utterance { return Utterance{Role: RoleAssistant, Content: content} }

// InboundMessage is a chat message received from a platform.
type InboundMessage struct {
	Platform   string
	ChatID     string
	MessageID  string
	SenderID   string
	SenderName string
	Content    string
	Timestamp  time.Time
}

// ChannelMessage is one entry of a channel's own message log.
type ChannelMessage struct {
	ID        string
	AuthorID  string
	Content   string
	Timestamp time.Time
}
