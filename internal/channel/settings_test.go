package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettingsVK(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"group_id":100,"access_token":"tok","confirmation":"abc","secret":"s"}`)
	settings, err := ParseSettings(TypeVK, raw)
	require.NoError(t, err)

	vk, ok := settings.(VKSettings)
	require.True(t, ok)
	assert.Equal(t, int64(100), vk.GroupID)
	assert.Equal(t, "abc", vk.Confirmation)
	assert.Nil(t, settings.Hours())
}

func TestParseSettingsVKRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := ParseSettings(TypeVK, []byte(`{"group_id":100}`))
	assert.ErrorContains(t, err, "access_token")
}

func TestParseSettingsRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := ParseSettings(TypeVK, []byte(`{"access_token":"tok","surprise":true}`))
	assert.Error(t, err)
}

func TestParseSettingsAvitoRequiresUserID(t *testing.T) {
	t.Parallel()
	_, err := ParseSettings(TypeAvito, []byte(`{"access_token":"tok"}`))
	assert.ErrorContains(t, err, "user_id")

	settings, err := ParseSettings(TypeAvito, []byte(`{"user_id":7,"access_token":"tok"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeAvito, settings.ChannelType())
}

func TestParseSettingsWidgetDefaults(t *testing.T) {
	t.Parallel()
	settings, err := ParseSettings(TypeWidget, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeWidget, settings.ChannelType())
}

func TestParseSettingsValidatesWorkHours(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"work_hours":{"start":"9am","end":"18:00"}}`)
	_, err := ParseSettings(TypeWidget, raw)
	assert.ErrorContains(t, err, "work_hours")

	raw = []byte(`{"work_hours":{"start":"09:00","end":"18:00","days":[0,9]}}`)
	_, err = ParseSettings(TypeWidget, raw)
	assert.ErrorContains(t, err, "day out of range")

	raw = []byte(`{"work_hours":{"timezone":"Europe/Moscow","start":"09:00","end":"18:00","days":[1,2,3,4,5]}}`)
	settings, err := ParseSettings(TypeWidget, raw)
	require.NoError(t, err)
	require.NotNil(t, settings.Hours())
	assert.Equal(t, "Europe/Moscow", settings.Hours().Timezone)
}

func TestParseSettingsUnsupportedType(t *testing.T) {
	t.Parallel()
	_, err := ParseSettings(Type("telegram"), []byte(`{}`))
	assert.Error(t, err)
}
