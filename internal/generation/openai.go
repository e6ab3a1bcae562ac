package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/replygate/replygate/internal/channel"
)

// OpenAIProvider implements Provider on the OpenAI Assistants API.
type OpenAIProvider struct {
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAIProvider creates an Assistants-API generation provider.
// baseURL overrides the API endpoint when non-empty.
func NewOpenAIProvider(log *slog.Logger, apiKey, baseURL string) *OpenAIProvider {
	if log == nil {
		log = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimSpace(baseURL)
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		logger: log.With(slog.String("component", "openai_provider")),
	}
}

// CreateThread creates an empty conversation thread.
func (p *OpenAIProvider) CreateThread(ctx context.Context) (string, error) {
	thread, err := p.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// AppendMessage adds the user's text to the thread. An attachment is
// passed as a file-id reference, never re-encoded.
func (p *OpenAIProvider) AppendMessage(ctx context.Context, threadID, text string, attachment *channel.Attachment) error {
	req := openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	}
	if attachment != nil && attachment.HasValue() {
		req.Attachments = []openai.ThreadAttachment{
			{
				FileID: attachment.FileID,
				Tools:  []openai.ThreadAttachmentTool{{Type: "file_search"}},
			},
		}
	}
	if _, err := p.client.CreateMessage(ctx, threadID, req); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// StartRun begins a run binding the thread to the assistant handle.
func (p *OpenAIProvider) StartRun(ctx context.Context, threadID, assistantHandle string) (string, error) {
	run, err := p.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantHandle})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.ID, nil
}

// GetRunStatus fetches the run state, including requested tool calls
// while the run awaits action.
func (p *OpenAIProvider) GetRunStatus(ctx context.Context, threadID, runID string) (RunSnapshot, error) {
	run, err := p.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return RunSnapshot{}, fmt.Errorf("retrieve run: %w", err)
	}

	snapshot := RunSnapshot{Status: mapRunStatus(run.Status)}
	if snapshot.Status == StatusRequiresAction &&
		run.RequiredAction != nil &&
		run.RequiredAction.SubmitToolOutputs != nil {
		for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			snapshot.ToolCalls = append(snapshot.ToolCalls, ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}
	return snapshot, nil
}

// SubmitToolOutputs reports the executed tool results back to the run.
func (p *OpenAIProvider) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	payload := make([]openai.ToolOutput, 0, len(outputs))
	for _, out := range outputs {
		payload = append(payload, openai.ToolOutput{
			ToolCallID: out.CallID,
			Output:     out.Output,
		})
	}
	_, err := p.client.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{
		ToolOutputs: payload,
	})
	if err != nil {
		return fmt.Errorf("submit tool outputs: %w", err)
	}
	return nil
}

// GetLatestMessages returns the newest thread messages, newest first.
func (p *OpenAIProvider) GetLatestMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	limit := 10
	order := "desc"
	list, err := p.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	items := make([]ThreadMessage, 0, len(list.Messages))
	for _, msg := range list.Messages {
		item := ThreadMessage{Role: msg.Role}
		for _, content := range msg.Content {
			if content.Text != nil && strings.TrimSpace(content.Text.Value) != "" {
				item.TextSegments = append(item.TextSegments, content.Text.Value)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// mapRunStatus folds the provider vocabulary onto the orchestrator's.
// Cancelled, expired, and incomplete runs are failures from the
// pipeline's point of view.
func mapRunStatus(status openai.RunStatus) RunStatus {
	switch status {
	case openai.RunStatusQueued:
		return StatusQueued
	case openai.RunStatusInProgress:
		return StatusInProgress
	case openai.RunStatusRequiresAction:
		return StatusRequiresAction
	case openai.RunStatusCompleted:
		return StatusCompleted
	default:
		return StatusFailed
	}
}
