package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	existing    map[string]Conversation
	createErr   error
	created     []ResolveInput
	getCalls    int
	afterCreate *Conversation
}

func (f *fakeFinder) key(channelID, externalUserID string) string {
	return channelID + "/" + externalUserID
}

func (f *fakeFinder) GetByKey(_ context.Context, channelID, externalUserID string) (Conversation, error) {
	f.getCalls++
	if conv, ok := f.existing[f.key(channelID, externalUserID)]; ok {
		return conv, nil
	}
	// Simulates the row appearing between lookup and insert.
	if f.afterCreate != nil && len(f.created) > 0 {
		return *f.afterCreate, nil
	}
	return Conversation{}, ErrNotFound
}

func (f *fakeFinder) Create(_ context.Context, input ResolveInput) (Conversation, error) {
	f.created = append(f.created, input)
	if f.createErr != nil {
		return Conversation{}, f.createErr
	}
	return Conversation{
		ID:             "conv-new",
		ChannelID:      input.ChannelID,
		ExternalUserID: input.ExternalUserID,
		DialogID:       input.DialogID,
		Status:         StatusActive,
	}, nil
}

func TestResolveReturnsExisting(t *testing.T) {
	t.Parallel()
	store := &fakeFinder{existing: map[string]Conversation{
		"ch-1/user-1": {ID: "conv-1", ChannelID: "ch-1", ExternalUserID: "user-1"},
	}}
	resolver := NewResolver(nil, store)

	conv, err := resolver.Resolve(context.Background(), ResolveInput{ChannelID: "ch-1", ExternalUserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
	assert.Empty(t, store.created)
}

func TestResolveCreatesWhenMissing(t *testing.T) {
	t.Parallel()
	store := &fakeFinder{}
	resolver := NewResolver(nil, store)

	conv, err := resolver.Resolve(context.Background(), ResolveInput{
		ChannelID:      "ch-1",
		ExternalUserID: "user-1",
		DialogID:       "dlg-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "conv-new", conv.ID)
	assert.Equal(t, "dlg-9", conv.DialogID)
	require.Len(t, store.created, 1)
}

func TestResolveConvergesOnCreationRace(t *testing.T) {
	t.Parallel()
	winner := Conversation{ID: "conv-winner", ChannelID: "ch-1", ExternalUserID: "user-1"}
	store := &fakeFinder{
		createErr:   errors.New(`duplicate key value violates unique constraint (SQLSTATE 23505)`),
		afterCreate: &winner,
	}
	resolver := NewResolver(nil, store)

	conv, err := resolver.Resolve(context.Background(), ResolveInput{ChannelID: "ch-1", ExternalUserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "conv-winner", conv.ID)
}

func TestResolvePropagatesCreateError(t *testing.T) {
	t.Parallel()
	createErr := errors.New("insert failed")
	store := &fakeFinder{createErr: createErr}
	resolver := NewResolver(nil, store)

	_, err := resolver.Resolve(context.Background(), ResolveInput{ChannelID: "ch-1", ExternalUserID: "user-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, createErr)
}

func TestResolveRequiresKey(t *testing.T) {
	t.Parallel()
	resolver := NewResolver(nil, &fakeFinder{})

	_, err := resolver.Resolve(context.Background(), ResolveInput{ChannelID: "ch-1"})
	assert.Error(t, err)
	_, err = resolver.Resolve(context.Background(), ResolveInput{ExternalUserID: "user-1"})
	assert.Error(t, err)
}
