// Package models defines core data structures for conversations, knowledge snippets, and doubt summaries.
package models

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode is a named behavioral profile that controls the system prompt.
type Mode string

const (
	ModeAcademic           Mode = "academic"
	ModeDoubtClarification Mode = "doubt_clarification"
	ModeStudyHelp          Mode = "study_help"
	ModeGeneral            Mode = "general"
)

// Message is one chat turn. Messages are immutable once appended to a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources,omitempty"`
	Partial   bool      `json:"partial,omitempty"` // stream was cancelled before the answer completed
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the unit of chat session state.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id,omitempty" db:"user_id"`
	Mode      Mode      `json:"mode" db:"mode"`
	Messages  []Message `json:"messages" db:"messages"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a copy whose message slice (and per-message sources) can be mutated freely.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = CloneMessages(c.Messages)
	return &out
}

// CloneMessages deep-copies msgs. A nil input yields an empty, non-nil slice.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.Sources != nil {
			out[i].Sources = append([]string(nil), m.Sources...)
		}
	}
	return out
}
