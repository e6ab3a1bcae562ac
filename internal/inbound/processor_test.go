package inbound

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replygate/replygate/internal/assistant"
	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/conversation"
	"github.com/replygate/replygate/internal/dedup"
	"github.com/replygate/replygate/internal/generation"
	"github.com/replygate/replygate/internal/message"
)

type fakeChannels struct {
	ch       channel.Channel
	getCalls int
}

func (f *fakeChannels) Get(context.Context, string) (channel.Channel, error) {
	f.getCalls++
	return f.ch, nil
}

type fakeResolver struct {
	conv conversation.Conversation
}

func (f *fakeResolver) Resolve(context.Context, conversation.ResolveInput) (conversation.Conversation, error) {
	return f.conv, nil
}

type fakeMessages struct {
	created  []message.CreateInput
	answered map[string]message.Message
}

func (f *fakeMessages) Create(_ context.Context, input message.CreateInput) (message.Message, error) {
	f.created = append(f.created, input)
	return message.Message{ID: "msg-1", Content: input.Content}, nil
}

func (f *fakeMessages) FindReplyTo(_ context.Context, _, inboundMessageID string) (message.Message, error) {
	if reply, ok := f.answered[inboundMessageID]; ok {
		return reply, nil
	}
	return message.Message{}, message.ErrNotFound
}

type fakeRouter struct {
	decision assistant.Decision
}

func (f *fakeRouter) Route(context.Context, conversation.Conversation, channel.Channel) (assistant.Decision, error) {
	return f.decision, nil
}

type fakeAssistants struct{}

func (fakeAssistants) Get(_ context.Context, id string) (assistant.Assistant, error) {
	return assistant.Assistant{ID: id, ExternalHandle: "asst_" + id}, nil
}

type fakeGenerator struct {
	outcome generation.Outcome
	calls   int
}

func (f *fakeGenerator) Generate(context.Context, generation.GenerateInput) (generation.Outcome, error) {
	f.calls++
	return f.outcome, nil
}

type fakeDeliverer struct {
	calls     int
	repliesTo string
	text      string
}

func (f *fakeDeliverer) Deliver(_ context.Context, _ conversation.Conversation, _ channel.Channel, replyText, inboundMessageID string) (message.Message, error) {
	f.calls++
	f.text = replyText
	f.repliesTo = inboundMessageID
	return message.Message{ID: "reply-1", Content: replyText}, nil
}

type pipeline struct {
	processor *Processor
	channels  *fakeChannels
	messages  *fakeMessages
	generator *fakeGenerator
	deliverer *fakeDeliverer
	cache     *dedup.Cache
}

func newPipeline() *pipeline {
	channels := &fakeChannels{ch: channel.Channel{ID: "ch-1", Type: channel.TypeVK, Enabled: true}}
	messages := &fakeMessages{answered: map[string]message.Message{}}
	generator := &fakeGenerator{outcome: generation.Outcome{Kind: generation.OutcomeReply, Text: "the answer"}}
	deliverer := &fakeDeliverer{}
	cache := dedup.NewCache(nil, time.Hour)
	processor := NewProcessor(
		nil, cache, channels,
		&fakeResolver{conv: conversation.Conversation{ID: "conv-1", DialogID: "dlg-1", Status: conversation.StatusActive}},
		messages,
		&fakeRouter{decision: assistant.Decision{AssistantID: "ast-1", AutoReply: true}},
		fakeAssistants{}, generator, deliverer,
	)
	return &pipeline{
		processor: processor,
		channels:  channels,
		messages:  messages,
		generator: generator,
		deliverer: deliverer,
		cache:     cache,
	}
}

func testEvent() channel.InboundEvent {
	return channel.InboundEvent{
		ChannelID:         "ch-1",
		ChannelType:       channel.TypeVK,
		DialogID:          "dlg-1",
		ExternalUserID:    "user-1",
		ExternalMessageID: "ext-1",
		Text:              "hello",
		ReceivedAt:        time.Now(),
	}
}

func TestProcessDeliversReply(t *testing.T) {
	t.Parallel()
	p := newPipeline()

	result, err := p.processor.Process(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, StageDelivered, result.Stage)
	assert.Equal(t, "reply-1", result.Reply.ID)

	require.Len(t, p.messages.created, 1)
	inboundMsg := p.messages.created[0]
	assert.Equal(t, message.SenderUser, inboundMsg.SenderType)
	assert.Equal(t, "ext-1", inboundMsg.Metadata[message.MetaExternalMessageID])
	assert.Equal(t, "dlg-1", inboundMsg.Metadata[message.MetaDialogID])

	assert.Equal(t, 1, p.generator.calls)
	assert.Equal(t, 1, p.deliverer.calls)
	assert.Equal(t, "ext-1", p.deliverer.repliesTo)
	assert.Equal(t, "the answer", p.deliverer.text)
}

func TestProcessAbsorbsCachedDuplicate(t *testing.T) {
	t.Parallel()
	p := newPipeline()

	first, err := p.processor.Process(context.Background(), testEvent())
	require.NoError(t, err)
	require.Equal(t, StageDelivered, first.Stage)

	second, err := p.processor.Process(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, StageDuplicate, second.Stage)

	// The duplicate stops before any storage or provider work.
	assert.Equal(t, 1, p.channels.getCalls)
	assert.Equal(t, 1, p.generator.calls)
	assert.Equal(t, 1, p.deliverer.calls)
}

func TestProcessAnswersFromPersistedReplyAfterRestart(t *testing.T) {
	t.Parallel()
	p := newPipeline()
	p.messages.answered["ext-1"] = message.Message{ID: "reply-old", Content: "answered before"}

	// Cache is empty, as after a restart; the persisted marker still
	// stops the second generation.
	result, err := p.processor.Process(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, StageAlreadyAnswered, result.Stage)
	assert.Equal(t, "reply-old", result.Reply.ID)
	assert.Zero(t, p.generator.calls)
	assert.Zero(t, p.deliverer.calls)
	assert.Empty(t, p.messages.created)
}

func TestProcessStopsOnDisabledChannel(t *testing.T) {
	t.Parallel()
	p := newPipeline()
	p.channels.ch.Enabled = false

	result, err := p.processor.Process(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, StageChannelDisabled, result.Stage)
	assert.Zero(t, p.generator.calls)
}

func TestProcessStopsWhenNoAssistant(t *testing.T) {
	t.Parallel()
	p := newPipeline()
	processor := NewProcessor(
		nil, p.cache, p.channels,
		&fakeResolver{conv: conversation.Conversation{ID: "conv-1"}},
		p.messages, &fakeRouter{}, fakeAssistants{}, p.generator, p.deliverer,
	)

	result, err := processor.Process(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, StageNoAssistant, result.Stage)
	// The user's message is still persisted.
	assert.Len(t, p.messages.created, 1)
	assert.Zero(t, p.generator.calls)
}

func TestProcessStopsWhenSuppressed(t *testing.T) {
	t.Parallel()
	p := newPipeline()
	processor := NewProcessor(
		nil, dedup.NewCache(nil, time.Hour), p.channels,
		&fakeResolver{conv: conversation.Conversation{ID: "conv-1"}},
		p.messages,
		&fakeRouter{decision: assistant.Decision{AssistantID: "ast-1", Suppressed: "outside_schedule"}},
		fakeAssistants{}, p.generator, p.deliverer,
	)

	result, err := processor.Process(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, StageSuppressed, result.Stage)
	assert.Equal(t, "outside_schedule", result.Suppressed)
	assert.Zero(t, p.generator.calls)
	assert.Zero(t, p.deliverer.calls)
}

func TestProcessReportsUndeliveredOutcome(t *testing.T) {
	t.Parallel()
	p := newPipeline()
	p.generator.outcome = generation.Outcome{Kind: generation.OutcomeTimedOut}

	result, err := p.processor.Process(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, StageNotGenerated, result.Stage)
	assert.Equal(t, generation.OutcomeTimedOut, result.Outcome.Kind)
	assert.Zero(t, p.deliverer.calls)
}
