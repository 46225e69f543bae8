package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
	apperrors "github.com/kurihiro0119/github-social-relay/internal/errors"
)

// maxRangeDays caps how many day buckets one query may scan.
const maxRangeDays = 366

// DayReader is the read side of the day-bucket store
type DayReader interface {
	Load(date string) []domain.Event
	LoadArchived(date string) []domain.Event
	HasActive(date string) bool
	HasArchived(date string) bool
}

// Aggregator defines the interface for aggregating buffered events
type Aggregator interface {
	// Aggregate sums pending and posted buckets over an inclusive range
	Aggregate(ctx context.Context, timeRange domain.TimeRange) (*domain.RangeStats, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	store DayReader
}

// NewAggregator creates a new aggregator
func NewAggregator(store DayReader) Aggregator {
	return &aggregator{
		store: store,
	}
}

// Aggregate walks every day in the range, merging its pending and posted
// events, and groups the results by the requested granularity.
func (a *aggregator) Aggregate(ctx context.Context, timeRange domain.TimeRange) (*domain.RangeStats, error) {
	start := truncateTime(timeRange.Start, "day")
	end := truncateTime(timeRange.End, "day")
	if end.Before(start) {
		return nil, apperrors.NewBadRequestError("end date is before start date", nil)
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > maxRangeDays {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("range of %d days exceeds %d", days, maxRangeDays), nil)
	}
	granularity := timeRange.Granularity
	if granularity == "" {
		granularity = "day"
	}

	result := &domain.RangeStats{
		Start:       domain.DateKey(start),
		End:         domain.DateKey(end),
		Granularity: granularity,
		EventTypes:  make(map[string]int),
	}

	periods := make(map[time.Time]*domain.DayStats)
	var order []time.Time

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date := domain.DateKey(day)
		hasActive := a.store.HasActive(date)
		hasArchived := a.store.HasArchived(date)
		if !hasActive && !hasArchived {
			continue
		}
		if hasArchived {
			result.PostedDays++
		}
		if hasActive {
			result.PendingDays++
		}

		events := append(a.store.LoadArchived(date), a.store.Load(date)...)
		dayStats := domain.NewDayStats(date, events)

		period := truncateTime(day, granularity)
		posted := hasArchived && !hasActive
		row, ok := periods[period]
		if !ok {
			row = &domain.DayStats{Date: domain.DateKey(period), EventTypes: make(map[string]int), Archived: posted}
			periods[period] = row
			order = append(order, period)
		}
		row.TotalEvents += dayStats.TotalEvents
		row.Archived = row.Archived && posted
		for t, n := range dayStats.EventTypes {
			row.EventTypes[t] += n
			result.EventTypes[t] += n
		}
		result.TotalEvents += dayStats.TotalEvents
	}

	for _, period := range order {
		result.Days = append(result.Days, periods[period])
	}
	return result, nil
}

// truncateTime truncates a time to the start of the period based on granularity
func truncateTime(t time.Time, granularity string) time.Time {
	t = t.UTC()
	switch granularity {
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case "week":
		// Get the start of the week (Monday)
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return time.Date(t.Year(), t.Month(), t.Day()-weekday+1, 0, 0, 0, 0, time.UTC)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}
