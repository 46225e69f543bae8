package domain

import "time"

// DayStats summarizes one day bucket
type DayStats struct {
	Date        string         `json:"date,omitempty"`
	TotalEvents int            `json:"total_events"`
	EventTypes  map[string]int `json:"event_types"`
	Archived    bool           `json:"archived,omitempty"`
}

// NewDayStats counts events by type.
func NewDayStats(date string, events []Event) *DayStats {
	stats := &DayStats{
		Date:        date,
		TotalEvents: len(events),
		EventTypes:  make(map[string]int),
	}
	for _, e := range events {
		t := string(e.Type)
		if t == "" {
			t = "unknown"
		}
		stats.EventTypes[t]++
	}
	return stats
}

// DistinctTypes returns the event types present, in first-seen order.
func DistinctTypes(events []Event) []string {
	seen := make(map[EventType]bool)
	var types []string
	for _, e := range events {
		if seen[e.Type] {
			continue
		}
		seen[e.Type] = true
		types = append(types, string(e.Type))
	}
	return types
}

// TimeRange is an inclusive span of day buckets grouped by granularity
type TimeRange struct {
	Start       time.Time
	End         time.Time
	Granularity string // "day", "week" or "month"
}

// RangeStats aggregates day stats over a date range
type RangeStats struct {
	Start       string         `json:"start"`
	End         string         `json:"end"`
	Granularity string         `json:"granularity"`
	Days        []*DayStats    `json:"days"`
	TotalEvents int            `json:"total_events"`
	EventTypes  map[string]int `json:"event_types"`
	PostedDays  int            `json:"posted_days"`
	PendingDays int            `json:"pending_days"`
}
