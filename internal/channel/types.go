// Package channel provides the unified abstraction over the external
// messaging surfaces ReplyGate bridges: a VK community, an Avito
// marketplace chat, and the embeddable web widget.
package channel

import (
	"strings"
	"time"
)

// Type identifies a messaging surface.
type Type string

const (
	TypeVK     Type = "vk"
	TypeAvito  Type = "avito"
	TypeWidget Type = "widget"
)

// String returns the channel type as a plain string.
func (t Type) String() string {
	return string(t)
}

// Known reports whether the type is one of the supported surfaces.
func (t Type) Known() bool {
	switch t {
	case TypeVK, TypeAvito, TypeWidget:
		return true
	}
	return false
}

// Channel is a configured messaging surface. It is created by the
// external configuration flow and read-only to the core pipeline.
type Channel struct {
	ID        string
	OwnerID   string
	Type      Type
	Enabled   bool
	Settings  Settings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attachment references a file carried with a message. The reference is
// passed through as-is; the core never re-encodes attachment bytes.
type Attachment struct {
	FileID string
	Name   string
	Mime   string
}

// HasValue reports whether the attachment carries a usable reference.
func (a Attachment) HasValue() bool {
	return strings.TrimSpace(a.FileID) != ""
}

// InboundEvent is the canonical form of one provider webhook delivery,
// produced by a channel adapter at the boundary.
type InboundEvent struct {
	ChannelID         string
	ChannelType       Type
	DialogID          string
	ExternalUserID    string
	ExternalMessageID string
	Text              string
	Attachment        *Attachment
	ReceivedAt        time.Time
}

// DedupFields returns the composite identity used by the deduplication
// cache: channel, dialog, and provider-native message id.
func (e InboundEvent) DedupFields() (string, string, string) {
	return e.ChannelID, e.DialogID, e.ExternalMessageID
}
