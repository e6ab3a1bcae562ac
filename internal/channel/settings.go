package channel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Settings is the strict per-type settings variant for a channel.
// Exactly one concrete type backs it; the core never sees the raw blob.
type Settings interface {
	ChannelType() Type
	// Hours returns the optional operating-hours window, nil when the
	// channel answers around the clock.
	Hours() *OperatingHours
}

// OperatingHours restricts automated replies to a daily window.
type OperatingHours struct {
	Timezone string `json:"timezone"`
	Start    string `json:"start"` // "09:00"
	End      string `json:"end"`   // "18:00"
	Days     []int  `json:"days"`  // time.Weekday values; empty means every day
}

// VKSettings configures a VK community Callback API channel.
type VKSettings struct {
	GroupID      int64           `json:"group_id"`
	AccessToken  string          `json:"access_token"`
	Confirmation string          `json:"confirmation"`
	Secret       string          `json:"secret"`
	WorkHours    *OperatingHours `json:"work_hours,omitempty"`
}

func (s VKSettings) ChannelType() Type      { return TypeVK }
func (s VKSettings) Hours() *OperatingHours { return s.WorkHours }

// AvitoSettings configures an Avito messenger channel.
type AvitoSettings struct {
	UserID      int64           `json:"user_id"`
	AccessToken string          `json:"access_token"`
	WorkHours   *OperatingHours `json:"work_hours,omitempty"`
}

func (s AvitoSettings) ChannelType() Type      { return TypeAvito }
func (s AvitoSettings) Hours() *OperatingHours { return s.WorkHours }

// WidgetSettings configures the embeddable web chat widget.
type WidgetSettings struct {
	Title     string          `json:"title"`
	Greeting  string          `json:"greeting"`
	Color     string          `json:"color"`
	WorkHours *OperatingHours `json:"work_hours,omitempty"`
}

func (s WidgetSettings) ChannelType() Type      { return TypeWidget }
func (s WidgetSettings) Hours() *OperatingHours { return s.WorkHours }

// ParseSettings decodes the stored settings blob into the strict variant
// for the given channel type. Unknown fields are rejected so a
// misconfigured channel fails at the boundary, not mid-pipeline.
func ParseSettings(channelType Type, raw []byte) (Settings, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch channelType {
	case TypeVK:
		var s VKSettings
		if err := decodeStrict(raw, &s); err != nil {
			return nil, fmt.Errorf("vk settings: %w", err)
		}
		if s.AccessToken == "" {
			return nil, fmt.Errorf("vk settings: access_token is required")
		}
		if err := validateHours(s.WorkHours); err != nil {
			return nil, fmt.Errorf("vk settings: %w", err)
		}
		return s, nil
	case TypeAvito:
		var s AvitoSettings
		if err := decodeStrict(raw, &s); err != nil {
			return nil, fmt.Errorf("avito settings: %w", err)
		}
		if s.UserID == 0 {
			return nil, fmt.Errorf("avito settings: user_id is required")
		}
		if s.AccessToken == "" {
			return nil, fmt.Errorf("avito settings: access_token is required")
		}
		if err := validateHours(s.WorkHours); err != nil {
			return nil, fmt.Errorf("avito settings: %w", err)
		}
		return s, nil
	case TypeWidget:
		var s WidgetSettings
		if err := decodeStrict(raw, &s); err != nil {
			return nil, fmt.Errorf("widget settings: %w", err)
		}
		if err := validateHours(s.WorkHours); err != nil {
			return nil, fmt.Errorf("widget settings: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported channel type: %s", channelType)
	}
}

func decodeStrict(raw []byte, target any) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func validateHours(hours *OperatingHours) error {
	if hours == nil {
		return nil
	}
	if !validClock(hours.Start) || !validClock(hours.End) {
		return fmt.Errorf("work_hours: start/end must be HH:MM")
	}
	for _, day := range hours.Days {
		if day < 0 || day > 6 {
			return fmt.Errorf("work_hours: day out of range: %d", day)
		}
	}
	return nil
}

func validClock(value string) bool {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return false
	}
	h := (int(parts[0][0]-'0') * 10) + int(parts[0][1]-'0')
	m := (int(parts[1][0]-'0') * 10) + int(parts[1][1]-'0')
	for _, c := range parts[0] + parts[1] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return h >= 0 && h < 24 && m >= 0 && m < 60
}
