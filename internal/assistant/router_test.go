package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/conversation"
)

type fakeBindings struct {
	override *Override
	bindings []Binding
}

func (f *fakeBindings) ListBindings(context.Context, string) ([]Binding, error) {
	return f.bindings, nil
}

func (f *fakeBindings) GetOverride(context.Context, string, string) (Override, error) {
	if f.override == nil {
		return Override{}, ErrNotFound
	}
	return *f.override, nil
}

type fixedAvailability bool

func (a fixedAvailability) Available(channel.Channel, time.Time) bool { return bool(a) }

func newTestRouter(store Bindings, available bool) *Router {
	r := NewRouter(nil, store, fixedAvailability(available))
	r.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestRouteOverrideWins(t *testing.T) {
	t.Parallel()
	store := &fakeBindings{
		override: &Override{AssistantID: "ast-override", Enabled: true, AutoReply: true},
		bindings: []Binding{{AssistantID: "ast-bound", Enabled: true, AutoReply: true}},
	}
	router := newTestRouter(store, true)

	d, err := router.Route(context.Background(), conversation.Conversation{Status: conversation.StatusActive}, channel.Channel{ID: "ch-1"})
	require.NoError(t, err)
	assert.Equal(t, "ast-override", d.AssistantID)
	assert.True(t, d.ShouldGenerate())
}

func TestRouteOverrideWithoutAutoReplySuppresses(t *testing.T) {
	t.Parallel()
	store := &fakeBindings{
		override: &Override{AssistantID: "ast-override", Enabled: true, AutoReply: false},
	}
	router := newTestRouter(store, true)

	d, err := router.Route(context.Background(), conversation.Conversation{Status: conversation.StatusActive}, channel.Channel{ID: "ch-1"})
	require.NoError(t, err)
	assert.Equal(t, "ast-override", d.AssistantID)
	assert.False(t, d.ShouldGenerate())
	assert.Equal(t, "auto_reply_off", d.Suppressed)
}

func TestRouteDisabledOverrideBlocksEverything(t *testing.T) {
	t.Parallel()
	store := &fakeBindings{
		override: &Override{AssistantID: "ast-override", Enabled: false, AutoReply: true},
		bindings: []Binding{{AssistantID: "ast-bound", Enabled: true, AutoReply: true}},
	}
	router := newTestRouter(store, true)

	d, err := router.Route(context.Background(), conversation.Conversation{Status: conversation.StatusActive}, channel.Channel{ID: "ch-1"})
	require.NoError(t, err)
	assert.True(t, d.None())
}

func TestRouteBindingOrder(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name          string
		bindings      []Binding
		wantAssistant string
		wantGenerate  bool
	}{
		{
			name: "auto reply binding preferred over default",
			bindings: []Binding{
				{AssistantID: "ast-default", Enabled: true, IsDefault: true},
				{AssistantID: "ast-auto", Enabled: true, AutoReply: true},
			},
			wantAssistant: "ast-auto",
			wantGenerate:  true,
		},
		{
			name: "default binding assigned but suppressed",
			bindings: []Binding{
				{AssistantID: "ast-disabled", Enabled: false, AutoReply: true},
				{AssistantID: "ast-default", Enabled: true, IsDefault: true},
			},
			wantAssistant: "ast-default",
			wantGenerate:  false,
		},
		{
			name: "first enabled binding as last resort",
			bindings: []Binding{
				{AssistantID: "ast-disabled", Enabled: false},
				{AssistantID: "ast-plain", Enabled: true},
			},
			wantAssistant: "ast-plain",
			wantGenerate:  false,
		},
		{
			name:          "no bindings",
			bindings:      nil,
			wantAssistant: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			router := newTestRouter(&fakeBindings{bindings: tc.bindings}, true)
			d, err := router.Route(context.Background(), conversation.Conversation{Status: conversation.StatusActive}, channel.Channel{ID: "ch-1"})
			require.NoError(t, err)
			assert.Equal(t, tc.wantAssistant, d.AssistantID)
			assert.Equal(t, tc.wantGenerate, d.ShouldGenerate())
		})
	}
}

func TestRouteOperatorStatusSuppresses(t *testing.T) {
	t.Parallel()
	store := &fakeBindings{bindings: []Binding{{AssistantID: "ast-1", Enabled: true, AutoReply: true}}}
	router := newTestRouter(store, true)

	d, err := router.Route(context.Background(), conversation.Conversation{Status: conversation.StatusOperator}, channel.Channel{ID: "ch-1"})
	require.NoError(t, err)
	assert.Equal(t, "ast-1", d.AssistantID)
	assert.False(t, d.ShouldGenerate())
	assert.Equal(t, "operator", d.Suppressed)
}

func TestRouteOutsideScheduleDowngrades(t *testing.T) {
	t.Parallel()
	store := &fakeBindings{bindings: []Binding{{AssistantID: "ast-1", Enabled: true, AutoReply: true}}}
	router := newTestRouter(store, false)

	d, err := router.Route(context.Background(), conversation.Conversation{Status: conversation.StatusActive}, channel.Channel{ID: "ch-1"})
	require.NoError(t, err)
	assert.Equal(t, "ast-1", d.AssistantID)
	assert.False(t, d.ShouldGenerate())
	assert.Equal(t, "outside_schedule", d.Suppressed)
}
