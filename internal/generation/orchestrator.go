package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/replygate/replygate/internal/assistant"
	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/conversation"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 45
)

// CuratedLookup matches a normalized query against curated responses.
type CuratedLookup interface {
	Find(ctx context.Context, assistantID, normalizedQuery string) (string, error)
}

// ThreadBinder persists the provider thread handle on a conversation,
// first write wins.
type ThreadBinder interface {
	BindThread(ctx context.Context, conversationID, threadID string) (string, error)
}

// GenerateInput is the input for one generation attempt.
type GenerateInput struct {
	Conversation conversation.Conversation
	Assistant    assistant.Assistant
	Text         string
	Attachment   *channel.Attachment
}

// Orchestrator drives one assistant run through the provider state
// machine: created, queued, in_progress, an optional requires_action
// detour per tool round trip, and finally completed, failed, or a local
// timeout once the attempt budget runs out.
type Orchestrator struct {
	provider     Provider
	curated      CuratedLookup
	binder       ThreadBinder
	tools        ToolExecutor
	logger       *slog.Logger
	pollInterval time.Duration
	maxAttempts  int
}

// NewOrchestrator creates a generation orchestrator.
func NewOrchestrator(log *slog.Logger, provider Provider, curated CuratedLookup, binder ThreadBinder, tools ToolExecutor, pollInterval time.Duration, maxAttempts int) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Orchestrator{
		provider:     provider,
		curated:      curated,
		binder:       binder,
		tools:        tools,
		logger:       log.With(slog.String("component", "generation_orchestrator")),
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Generate produces a reply for the user's text, or reports why none
// was produced. The user's message stays persisted regardless of the
// outcome.
func (o *Orchestrator) Generate(ctx context.Context, input GenerateInput) (Outcome, error) {
	// A curated answer wins over fresh generation and issues zero
	// provider calls.
	if o.curated != nil {
		curatedText, err := o.curated.Find(ctx, input.Assistant.ID, NormalizeQuery(input.Text))
		if err == nil {
			o.logger.Info("curated response matched",
				slog.String("assistant_id", input.Assistant.ID),
				slog.String("conversation_id", input.Conversation.ID),
			)
			return Outcome{Kind: OutcomeCurated, Text: curatedText}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Outcome{}, fmt.Errorf("curated lookup: %w", err)
		}
	}

	threadID, err := o.ensureThread(ctx, input.Conversation)
	if err != nil {
		return Outcome{}, err
	}

	if err := o.provider.AppendMessage(ctx, threadID, input.Text, input.Attachment); err != nil {
		return Outcome{}, fmt.Errorf("append message: %w", err)
	}

	runID, err := o.provider.StartRun(ctx, threadID, input.Assistant.ExternalHandle)
	if err != nil {
		return Outcome{}, fmt.Errorf("start run: %w", err)
	}

	return o.await(ctx, input.Conversation.ID, threadID, runID)
}

// ensureThread returns the conversation's provider thread, creating and
// binding one on first use. The bind is first-write-wins, so a raced
// creation converges on whichever handle was persisted.
func (o *Orchestrator) ensureThread(ctx context.Context, conv conversation.Conversation) (string, error) {
	if strings.TrimSpace(conv.ThreadID) != "" {
		return conv.ThreadID, nil
	}
	created, err := o.provider.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	bound, err := o.binder.BindThread(ctx, conv.ID, created)
	if err != nil {
		return "", fmt.Errorf("bind thread: %w", err)
	}
	if bound != created {
		o.logger.Debug("thread bind raced, using persisted handle",
			slog.String("conversation_id", conv.ID))
	}
	return bound, nil
}

// await polls the run until a terminal status or attempt exhaustion.
// The tool round trip resets the attempt counter: submitting outputs
// does not consume the original wait budget.
func (o *Orchestrator) await(ctx context.Context, conversationID, threadID, runID string) (Outcome, error) {
	attempts := 0
	for attempts < o.maxAttempts {
		snapshot, err := o.provider.GetRunStatus(ctx, threadID, runID)
		if err != nil {
			return Outcome{}, fmt.Errorf("get run status: %w", err)
		}

		switch snapshot.Status {
		case StatusQueued, StatusInProgress:
			attempts++
			if err := o.wait(ctx); err != nil {
				return Outcome{}, err
			}
		case StatusRequiresAction:
			if err := o.handleToolCalls(ctx, conversationID, threadID, runID, snapshot.ToolCalls); err != nil {
				return Outcome{}, err
			}
			attempts = 0
		case StatusCompleted:
			return o.extractReply(ctx, threadID)
		case StatusFailed:
			o.logger.Warn("run failed",
				slog.String("thread_id", threadID),
				slog.String("run_id", runID),
			)
			return Outcome{Kind: OutcomeFailed}, nil
		default:
			return Outcome{}, fmt.Errorf("unexpected run status: %s", snapshot.Status)
		}
	}

	o.logger.Warn("run timed out",
		slog.String("thread_id", threadID),
		slog.String("run_id", runID),
		slog.Int("attempts", o.maxAttempts),
	)
	return Outcome{Kind: OutcomeTimedOut}, nil
}

// handleToolCalls executes every requested call and submits one output
// per call. A call that fails locally still gets an answer, so the run
// can finish instead of hanging on a missing output.
func (o *Orchestrator) handleToolCalls(ctx context.Context, conversationID, threadID, runID string, calls []ToolCall) error {
	outputs := make([]ToolOutput, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, o.tools.Execute(ctx, conversationID, call))
	}
	if err := o.provider.SubmitToolOutputs(ctx, threadID, runID, outputs); err != nil {
		return fmt.Errorf("submit tool outputs: %w", err)
	}
	o.logger.Debug("tool outputs submitted",
		slog.String("run_id", runID),
		slog.Int("calls", len(calls)),
	)
	return nil
}

// extractReply fetches the newest assistant-authored message and
// requires a text segment; anything else is a failure, never a partial
// delivery.
func (o *Orchestrator) extractReply(ctx context.Context, threadID string) (Outcome, error) {
	messages, err := o.provider.GetLatestMessages(ctx, threadID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get latest messages: %w", err)
	}
	for _, msg := range messages {
		if msg.Role != "assistant" {
			continue
		}
		text := msg.Text()
		if text == "" {
			break
		}
		return Outcome{Kind: OutcomeReply, Text: text}, nil
	}
	o.logger.Warn("completed run produced no assistant text", slog.String("thread_id", threadID))
	return Outcome{Kind: OutcomeFailed}, nil
}

func (o *Orchestrator) wait(ctx context.Context) error {
	timer := time.NewTimer(o.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
