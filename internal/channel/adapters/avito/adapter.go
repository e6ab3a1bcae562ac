// Package avito bridges an Avito messenger account onto the inbound
// pipeline and sends replies through the messenger API.
package avito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/config"
)

// Adapter sends messages through the Avito messenger API.
type Adapter struct {
	http    *http.Client
	apiBase string
	logger  *slog.Logger
}

// NewAdapter creates an Avito channel adapter.
func NewAdapter(log *slog.Logger, cfg config.AvitoConfig) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = config.DefaultAvitoAPIBase
	}
	return &Adapter{
		http:    &http.Client{Timeout: 15 * time.Second},
		apiBase: apiBase,
		logger:  log.With(slog.String("adapter", "avito")),
	}
}

func (a *Adapter) Type() channel.Type { return channel.TypeAvito }

type sendRequest struct {
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	Type string `json:"type"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send posts a text message into the chat. target is the Avito chat id.
func (a *Adapter) Send(ctx context.Context, ch channel.Channel, target, text string, _ *channel.Attachment) (string, error) {
	settings, ok := ch.Settings.(channel.AvitoSettings)
	if !ok {
		return "", fmt.Errorf("avito send: channel %s has non-avito settings", ch.ID)
	}

	var payload sendRequest
	payload.Message.Text = text
	payload.Type = "text"

	endpoint := fmt.Sprintf("%s/messenger/v1/accounts/%d/chats/%s/messages", a.apiBase, settings.UserID, target)
	body, err := a.call(ctx, endpoint, settings.AccessToken, payload)
	if err != nil {
		return "", err
	}
	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("avito send: decode response: %w", err)
	}
	return parsed.ID, nil
}

// MarkRead marks the chat as read.
func (a *Adapter) MarkRead(ctx context.Context, ch channel.Channel, target string) error {
	settings, ok := ch.Settings.(channel.AvitoSettings)
	if !ok {
		return fmt.Errorf("avito mark read: channel %s has non-avito settings", ch.ID)
	}
	endpoint := fmt.Sprintf("%s/messenger/v1/accounts/%d/chats/%s/read", a.apiBase, settings.UserID, target)
	_, err := a.call(ctx, endpoint, settings.AccessToken, struct{}{})
	return err
}

func (a *Adapter) call(ctx context.Context, endpoint, accessToken string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("avito: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("avito: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("avito: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("avito: read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		a.logger.Warn("avito rate limited", slog.String("endpoint", endpoint))
		return nil, channel.ErrRateLimited
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("avito: status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
