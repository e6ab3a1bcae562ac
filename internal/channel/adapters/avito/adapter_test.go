package avito

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/config"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAdapter(nil, config.AvitoConfig{APIBase: srv.URL})
}

func TestSendPostsMessage(t *testing.T) {
	t.Parallel()
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messenger/v1/accounts/900/chats/chat-7/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text", body["type"])

		_, _ = w.Write([]byte(`{"id":"sent-1"}`))
	})

	id, err := adapter.Send(context.Background(), avitoChannel(), "chat-7", "готово", nil)
	require.NoError(t, err)
	assert.Equal(t, "sent-1", id)
}

func TestSendMapsTooManyRequests(t *testing.T) {
	t.Parallel()
	adapter := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := adapter.Send(context.Background(), avitoChannel(), "chat-7", "hi", nil)
	assert.ErrorIs(t, err, channel.ErrRateLimited)
}

func TestSendSurfacesAPIErrors(t *testing.T) {
	t.Parallel()
	adapter := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden"}`))
	})

	_, err := adapter.Send(context.Background(), avitoChannel(), "chat-7", "hi", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, channel.ErrRateLimited)
}

func TestMarkRead(t *testing.T) {
	t.Parallel()
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messenger/v1/accounts/900/chats/chat-7/read", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	assert.NoError(t, adapter.MarkRead(context.Background(), avitoChannel(), "chat-7"))
}
