// Package assistant holds assistant bindings, per-dialog overrides, and
// the routing decision that picks which assistant answers a conversation.
package assistant

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an assistant, binding, or override does
// not exist.
var ErrNotFound = errors.New("assistant record not found")

// Assistant is an automated responder backed by an external provider
// assistant handle.
type Assistant struct {
	ID             string
	OwnerID        string
	Name           string
	ExternalHandle string
	CreatedAt      time.Time
}

// Binding associates an assistant with a channel. At most one binding
// per channel may be the default.
type Binding struct {
	AssistantID string
	ChannelID   string
	Enabled     bool
	AutoReply   bool
	IsDefault   bool
	CreatedAt   time.Time
}

// Override assigns an assistant to one specific dialog, taking
// precedence over the channel's bindings when present.
type Override struct {
	ChannelID   string
	DialogID    string
	AssistantID string
	Enabled     bool
	AutoReply   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Decision is the routing outcome for one inbound message.
type Decision struct {
	// AssistantID is empty when no automated processing applies.
	AssistantID string
	// AutoReply reports whether a reply should be generated.
	AutoReply bool
	// Suppressed explains why a resolved assistant will not reply
	// ("auto_reply_off", "outside_schedule", "operator").
	Suppressed string
}

// None reports whether no assistant was resolved at all.
func (d Decision) None() bool {
	return d.AssistantID == ""
}

// ShouldGenerate reports whether the pipeline should attempt generation.
func (d Decision) ShouldGenerate() bool {
	return d.AssistantID != "" && d.AutoReply && d.Suppressed == ""
}
