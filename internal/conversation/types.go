// Package conversation defines the durable per-user conversation and
// its find-or-create resolution.
package conversation

import (
	"errors"
	"time"
)

// Conversation status constants.
const (
	StatusActive   = "active"
	StatusOperator = "operator"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Conversation is the durable thread between one external end-user and
// one channel. Unique per (ChannelID, ExternalUserID).
type Conversation struct {
	ID             string
	ChannelID      string
	OwnerID        string
	ExternalUserID string
	// DialogID is the provider-native dialog identifier (VK peer id,
	// Avito chat id, widget dialog id).
	DialogID    string
	AssistantID string
	ThreadID    string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResolveInput identifies the conversation to find or create.
type ResolveInput struct {
	ChannelID      string
	ExternalUserID string
	DialogID       string
	OwnerID        string
	// AssistantHint seeds the assistant assignment on first creation
	// only; resolve never mutates it afterwards.
	AssistantHint string
}
