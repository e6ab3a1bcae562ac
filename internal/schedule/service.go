// Package schedule answers whether a channel's assistant is inside its
// operating hours.
package schedule

import (
	"log/slog"
	"time"

	"github.com/replygate/replygate/internal/channel"
)

// Service evaluates per-channel operating-hours windows.
type Service struct {
	logger *slog.Logger
}

// NewService creates a schedule service.
func NewService(log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		logger: log.With(slog.String("service", "schedule")),
	}
}

// Available reports whether automated replies are allowed on the
// channel at the given instant. Channels without configured hours are
// always available.
func (s *Service) Available(ch channel.Channel, at time.Time) bool {
	if ch.Settings == nil {
		return true
	}
	hours := ch.Settings.Hours()
	if hours == nil {
		return true
	}

	loc := time.UTC
	if hours.Timezone != "" {
		parsed, err := time.LoadLocation(hours.Timezone)
		if err != nil {
			s.logger.Warn("invalid work-hours timezone, falling back to UTC",
				slog.String("channel_id", ch.ID),
				slog.String("timezone", hours.Timezone),
			)
		} else {
			loc = parsed
		}
	}
	local := at.In(loc)

	if len(hours.Days) > 0 && !containsDay(hours.Days, int(local.Weekday())) {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	start := clockMinutes(hours.Start)
	end := clockMinutes(hours.End)
	if start == end {
		return true
	}
	if start < end {
		return minutes >= start && minutes < end
	}
	// Window crosses midnight, e.g. 22:00-06:00.
	return minutes >= start || minutes < end
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

func clockMinutes(value string) int {
	if len(value) != 5 || value[2] != ':' {
		return 0
	}
	h := int(value[0]-'0')*10 + int(value[1]-'0')
	m := int(value[3]-'0')*10 + int(value[4]-'0')
	return h*60 + m
}
