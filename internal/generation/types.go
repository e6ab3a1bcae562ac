// Package generation drives one external assistant run to completion,
// including the tool-call round trip, with bounded polling.
package generation

import (
	"context"
	"errors"
	"strings"

	"github.com/replygate/replygate/internal/channel"
)

// RunStatus is the provider-reported state of a run.
type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCompleted      RunStatus = "completed"
	StatusFailed         RunStatus = "failed"
)

// ErrNotFound is returned when no curated response matches a query.
var ErrNotFound = errors.New("curated response not found")

// ToolCall is a provider-initiated request for a local side effect.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolOutput is the result of one executed tool call. Every call gets
// exactly one output; local failures become a structured error payload
// rather than an unanswered call.
type ToolOutput struct {
	CallID string
	Output string
}

// RunSnapshot is one observation of a live run.
type RunSnapshot struct {
	Status RunStatus
	// ToolCalls is populated only while Status is requires_action.
	ToolCalls []ToolCall
}

// ThreadMessage is one message on a provider thread.
type ThreadMessage struct {
	Role string
	// TextSegments holds the text parts of the message content. A
	// completed run whose newest assistant message has none is a failure.
	TextSegments []string
}

// Text joins the message's text segments.
func (m ThreadMessage) Text() string {
	return strings.TrimSpace(strings.Join(m.TextSegments, "\n"))
}

// Provider is the external generation collaborator.
type Provider interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadID, text string, attachment *channel.Attachment) error
	StartRun(ctx context.Context, threadID, assistantHandle string) (string, error)
	GetRunStatus(ctx context.Context, threadID, runID string) (RunSnapshot, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error
	// GetLatestMessages returns the newest messages on the thread,
	// newest first.
	GetLatestMessages(ctx context.Context, threadID string) ([]ThreadMessage, error)
}

// ToolExecutor runs provider-requested tool calls locally.
type ToolExecutor interface {
	Execute(ctx context.Context, conversationID string, call ToolCall) ToolOutput
}

// OutcomeKind classifies the result of one generation attempt.
type OutcomeKind string

const (
	OutcomeReply    OutcomeKind = "reply"
	OutcomeCurated  OutcomeKind = "curated"
	OutcomeFailed   OutcomeKind = "failed"
	OutcomeTimedOut OutcomeKind = "timed_out"
)

// Outcome is the result of Orchestrator.Generate. Text is set for reply
// and curated outcomes only.
type Outcome struct {
	Kind OutcomeKind
	Text string
}

// Delivered reports whether the outcome carries a reply to send.
func (o Outcome) Delivered() bool {
	return o.Kind == OutcomeReply || o.Kind == OutcomeCurated
}
