// Package vk bridges a VK community onto the inbound pipeline via the
// Callback API and sends replies through the messages API.
package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/config"
)

// VK API error codes treated as transient rate limiting.
const (
	errCodeTooManyRequests = 6
	errCodeFloodControl    = 9
)

// Adapter sends messages through the VK API on behalf of a community.
type Adapter struct {
	http       *http.Client
	apiBase    string
	apiVersion string
	logger     *slog.Logger
}

// NewAdapter creates a VK channel adapter.
func NewAdapter(log *slog.Logger, cfg config.VKConfig) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = config.DefaultVKAPIBase
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = config.DefaultVKAPIVersion
	}
	return &Adapter{
		http:       &http.Client{Timeout: 15 * time.Second},
		apiBase:    apiBase,
		apiVersion: apiVersion,
		logger:     log.With(slog.String("adapter", "vk")),
	}
}

func (a *Adapter) Type() channel.Type { return channel.TypeVK }

type apiResponse struct {
	Response json.RawMessage `json:"response"`
	Error    *apiError       `json:"error"`
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

// Send posts a message to the peer. random_id makes VK drop its own
// duplicates of a retried call.
func (a *Adapter) Send(ctx context.Context, ch channel.Channel, target, text string, _ *channel.Attachment) (string, error) {
	settings, ok := ch.Settings.(channel.VKSettings)
	if !ok {
		return "", fmt.Errorf("vk send: channel %s has non-vk settings", ch.ID)
	}

	params := url.Values{}
	params.Set("peer_id", target)
	params.Set("message", text)
	params.Set("random_id", strconv.FormatInt(rand.Int63(), 10))

	raw, err := a.call(ctx, "messages.send", settings.AccessToken, params)
	if err != nil {
		return "", err
	}
	var messageID int64
	if err := json.Unmarshal(raw, &messageID); err != nil {
		// Group tokens may get an object response instead of a bare id.
		return "", nil
	}
	return strconv.FormatInt(messageID, 10), nil
}

// MarkRead marks the peer's incoming messages as read.
func (a *Adapter) MarkRead(ctx context.Context, ch channel.Channel, target string) error {
	settings, ok := ch.Settings.(channel.VKSettings)
	if !ok {
		return fmt.Errorf("vk mark read: channel %s has non-vk settings", ch.ID)
	}
	params := url.Values{}
	params.Set("peer_id", target)
	params.Set("mark_conversation_as_read", "1")
	_, err := a.call(ctx, "messages.markAsRead", settings.AccessToken, params)
	return err
}

func (a *Adapter) call(ctx context.Context, method, accessToken string, params url.Values) (json.RawMessage, error) {
	params.Set("access_token", accessToken)
	params.Set("v", a.apiVersion)

	endpoint := fmt.Sprintf("%s/%s", a.apiBase, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("vk %s: %w", method, err)
	}
	req.URL.RawQuery = params.Encode()

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vk %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vk %s: read response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("vk %s: decode response: %w", method, err)
	}
	if parsed.Error != nil {
		if parsed.Error.Code == errCodeTooManyRequests || parsed.Error.Code == errCodeFloodControl {
			a.logger.Warn("vk rate limited",
				slog.String("method", method),
				slog.Int("code", parsed.Error.Code),
			)
			return nil, channel.ErrRateLimited
		}
		return nil, fmt.Errorf("vk %s: api error %d: %s", method, parsed.Error.Code, parsed.Error.Message)
	}
	return parsed.Response, nil
}
