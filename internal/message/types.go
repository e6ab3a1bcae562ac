// Package message persists immutable conversation turns.
package message

import (
	"errors"
	"time"
)

// Sender type constants.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
	SenderOperator  = "operator"
)

// Metadata keys carried on persisted messages.
const (
	MetaExternalMessageID = "external_message_id"
	MetaDialogID          = "dialog_id"
	MetaRepliesTo         = "replies_to"
	MetaProviderMessageID = "provider_message_id"
)

// ErrNotFound is returned when no message matches a lookup.
var ErrNotFound = errors.New("message not found")

// Message is one immutable turn in a conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderType     string
	Content        string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// RepliesTo returns the inbound message id this message answers, or ""
// for non-reply messages.
func (m Message) RepliesTo() string {
	if m.Metadata == nil {
		return ""
	}
	value, _ := m.Metadata[MetaRepliesTo].(string)
	return value
}

// CreateInput is the input for persisting one message.
type CreateInput struct {
	ConversationID string
	SenderType     string
	Content        string
	Metadata       map[string]any
}
