package toolexec

import (
	"context"
	"fmt"
	"time"

	"github.com/replygate/replygate/internal/conversation"
)

// StatusUpdater flips a conversation's status.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, conversationID, status string) error
}

// HandoffToOperator returns a handler that parks the conversation with
// a human operator; the router suppresses automated replies afterwards.
func HandoffToOperator(store StatusUpdater) Handler {
	return func(ctx context.Context, conversationID, _ string) (string, error) {
		if err := store.UpdateStatus(ctx, conversationID, conversation.StatusOperator); err != nil {
			return "", fmt.Errorf("handoff: %w", err)
		}
		return `{"status":"operator_notified"}`, nil
	}
}

// CurrentTime returns a handler reporting the server time in RFC 3339.
func CurrentTime() Handler {
	return func(_ context.Context, _, _ string) (string, error) {
		return fmt.Sprintf(`{"now":%q}`, time.Now().Format(time.RFC3339)), nil
	}
}
