package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/conversation"
	"github.com/replygate/replygate/internal/message"
)

type fakeMessages struct {
	created []message.CreateInput
}

func (f *fakeMessages) Create(_ context.Context, input message.CreateInput) (message.Message, error) {
	f.created = append(f.created, input)
	return message.Message{
		ID:             "msg-reply",
		ConversationID: input.ConversationID,
		SenderType:     input.SenderType,
		Content:        input.Content,
		Metadata:       input.Metadata,
	}, nil
}

type fakeAdapter struct {
	sendErrs    []error
	sends       int
	markReadErr error
	markReads   int
	lastTarget  string
}

func (f *fakeAdapter) Type() channel.Type { return channel.TypeWidget }

func (f *fakeAdapter) Send(_ context.Context, _ channel.Channel, target, _ string, _ *channel.Attachment) (string, error) {
	f.sends++
	f.lastTarget = target
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "provider-1", nil
}

func (f *fakeAdapter) MarkRead(context.Context, channel.Channel, string) error {
	f.markReads++
	return f.markReadErr
}

type singleAdapter struct {
	adapter channel.Adapter
}

func (s singleAdapter) Get(channel.Type) (channel.Adapter, bool) {
	return s.adapter, s.adapter != nil
}

func testConversation() conversation.Conversation {
	return conversation.Conversation{
		ID:             "conv-1",
		ExternalUserID: "user-1",
		DialogID:       "dlg-1",
	}
}

func TestDeliverPersistsReplyMarker(t *testing.T) {
	t.Parallel()
	messages := &fakeMessages{}
	adapter := &fakeAdapter{}
	svc := NewService(nil, messages, singleAdapter{adapter}, time.Millisecond)

	msg, err := svc.Deliver(context.Background(), testConversation(), channel.Channel{Type: channel.TypeWidget}, "hello", "ext-42")
	require.NoError(t, err)
	assert.Equal(t, "msg-reply", msg.ID)

	require.Len(t, messages.created, 1)
	created := messages.created[0]
	assert.Equal(t, message.SenderAssistant, created.SenderType)
	assert.Equal(t, "hello", created.Content)
	assert.Equal(t, "ext-42", created.Metadata[message.MetaRepliesTo])
	assert.Equal(t, "dlg-1", created.Metadata[message.MetaDialogID])

	assert.Equal(t, 1, adapter.sends)
	assert.Equal(t, "dlg-1", adapter.lastTarget)
	assert.Equal(t, 1, adapter.markReads)
}

func TestDeliverRetriesOnceOnRateLimit(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{sendErrs: []error{channel.ErrRateLimited}}
	svc := NewService(nil, &fakeMessages{}, singleAdapter{adapter}, time.Millisecond)

	_, err := svc.Deliver(context.Background(), testConversation(), channel.Channel{Type: channel.TypeWidget}, "hello", "ext-42")
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.sends)
}

func TestDeliverGivesUpAfterSecondRateLimit(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{sendErrs: []error{channel.ErrRateLimited, channel.ErrRateLimited}}
	svc := NewService(nil, &fakeMessages{}, singleAdapter{adapter}, time.Millisecond)

	_, err := svc.Deliver(context.Background(), testConversation(), channel.Channel{Type: channel.TypeWidget}, "hello", "ext-42")
	require.Error(t, err)
	assert.ErrorIs(t, err, channel.ErrRateLimited)
	assert.Equal(t, 2, adapter.sends)
}

func TestDeliverDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()
	sendErr := errors.New("provider rejected message")
	adapter := &fakeAdapter{sendErrs: []error{sendErr}}
	svc := NewService(nil, &fakeMessages{}, singleAdapter{adapter}, time.Millisecond)

	_, err := svc.Deliver(context.Background(), testConversation(), channel.Channel{Type: channel.TypeWidget}, "hello", "ext-42")
	require.Error(t, err)
	assert.ErrorIs(t, err, sendErr)
	assert.Equal(t, 1, adapter.sends)
}

func TestDeliverSwallowsMarkReadFailure(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{markReadErr: errors.New("mark read unavailable")}
	svc := NewService(nil, &fakeMessages{}, singleAdapter{adapter}, time.Millisecond)

	_, err := svc.Deliver(context.Background(), testConversation(), channel.Channel{Type: channel.TypeWidget}, "hello", "ext-42")
	assert.NoError(t, err)
}

func TestDeliverTargetsExternalUserWithoutDialog(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{}
	svc := NewService(nil, &fakeMessages{}, singleAdapter{adapter}, time.Millisecond)

	conv := testConversation()
	conv.DialogID = ""
	_, err := svc.Deliver(context.Background(), conv, channel.Channel{Type: channel.TypeWidget}, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "user-1", adapter.lastTarget)
}

func TestDeliverFailsWithoutAdapter(t *testing.T) {
	t.Parallel()
	svc := NewService(nil, &fakeMessages{}, singleAdapter{}, time.Millisecond)

	_, err := svc.Deliver(context.Background(), testConversation(), channel.Channel{Type: channel.TypeVK}, "hello", "")
	assert.Error(t, err)
}
