package channel

import (
	"context"
	"errors"
)

// ErrRateLimited signals a transient provider rate limit on outbound
// send. Delivery retries exactly once after a fixed backoff.
var ErrRateLimited = errors.New("channel provider rate limited")

// Adapter is implemented once per channel surface. Send returns the
// provider-native id of the delivered message. MarkRead is best-effort:
// callers log and swallow its failures.
type Adapter interface {
	Type() Type
	Send(ctx context.Context, ch Channel, target, text string, attachment *Attachment) (string, error)
	MarkRead(ctx context.Context, ch Channel, target string) error
}
