// Package scheduler runs the daily summary job at a fixed UTC time of day.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
	apperrors "github.com/kurihiro0119/github-social-relay/internal/errors"
	"github.com/kurihiro0119/github-social-relay/internal/metrics"
)

const (
	// CheckInterval is how often the loop compares the clock to the next run.
	CheckInterval = time.Minute
	// MissedDayLookback is how many days before today are swept for unposted buckets.
	MissedDayLookback = 7
)

// EventSource is the day-bucket store the job drains.
type EventSource interface {
	Load(date string) []domain.Event
	ArchivePosted(date string, n int) bool
	HasActive(date string) bool
}

// Summarizer turns a day of events into post text.
type Summarizer interface {
	DailySummary(ctx context.Context, events []domain.Event) string
}

// Poster delivers post text. A nil error means it went out.
type Poster interface {
	Publish(ctx context.Context, date, content string, events []domain.Event) error
}

// Scheduler owns the daily job and its timer loop.
type Scheduler struct {
	events    EventSource
	generator Summarizer
	poster    Poster
	metrics   *metrics.Collector
	logger    logrus.FieldLogger

	hour, minute int
	interval     time.Duration
	now          func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithCheckInterval overrides how often the loop wakes up.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithMetrics records job outcomes.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a scheduler firing daily at hour:minute UTC.
func New(events EventSource, generator Summarizer, poster Poster, hour, minute int, logger logrus.FieldLogger, opts ...Option) *Scheduler {
	s := &Scheduler{
		events:    events,
		generator: generator,
		poster:    poster,
		logger:    logger,
		hour:      hour,
		minute:    minute,
		interval:  CheckInterval,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextRun returns the first scheduled time strictly after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is cancelled, firing RunDaily once per day.
func (s *Scheduler) Run(ctx context.Context) {
	next := s.NextRun(s.now())
	s.logger.WithField("next_run", next.Format(time.RFC3339)).Info("Scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
		}

		now := s.now()
		if now.Before(next) {
			continue
		}
		s.safeRunDaily(ctx)
		next = s.NextRun(s.now())
		s.logger.WithField("next_run", next.Format(time.RFC3339)).Info("Next daily post scheduled")
	}
}

func (s *Scheduler) safeRunDaily(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.DailyRun("panic")
			s.logger.WithField("panic", r).Error("Daily post job panicked")
		}
	}()
	if err := s.RunDaily(ctx); err != nil {
		s.logger.WithError(err).Error("Daily post job failed")
	}
}

// RunDaily sweeps missed days and then posts today's summary. Today's bucket
// is archived only after a successful publish; otherwise it stays for the
// next run.
func (s *Scheduler) RunDaily(ctx context.Context) error {
	now := s.now()
	s.logger.WithField("time", now.Format(time.RFC3339)).Info("Running daily post job")

	s.SweepMissed(ctx, now)

	today := domain.DateKey(now)
	events := s.events.Load(today)
	if len(events) == 0 {
		s.logger.WithField("date", today).Info("No events today, skipping post")
		s.metrics.DailyRun("empty")
		return nil
	}

	if err := s.postDay(ctx, today, events); err != nil {
		s.metrics.DailyRun("failed")
		return fmt.Errorf("post %s: %w", today, err)
	}
	s.metrics.DailyRun("published")
	return nil
}

// SweepMissed posts every previous day that still has pending events. That
// covers days whose post failed and events that arrived while a day's post was
// being published. A failure on one day does not stop the others.
func (s *Scheduler) SweepMissed(ctx context.Context, now time.Time) (posted int) {
	for i := 1; i <= MissedDayLookback; i++ {
		if ctx.Err() != nil {
			return posted
		}
		date := domain.DateKey(now.AddDate(0, 0, -i))
		if !s.events.HasActive(date) {
			continue
		}

		log := s.logger.WithField("date", date)
		log.Info("Found missed post")
		events := s.events.Load(date)
		if len(events) == 0 {
			continue
		}
		if err := s.postDay(ctx, date, events); err != nil {
			log.WithError(err).Error("Error processing missed post")
			continue
		}
		posted++
	}
	return posted
}

func (s *Scheduler) postDay(ctx context.Context, date string, events []domain.Event) error {
	log := s.logger.WithFields(logrus.Fields{"date": date, "events": len(events)})

	content := s.generator.DailySummary(ctx, events)
	if err := s.poster.Publish(ctx, date, content, events); err != nil {
		if apperrors.IsConfig(err) {
			log.WithError(err).Error("Posting is misconfigured, check the posting credentials")
		} else {
			log.WithError(err).Warn("Daily post failed, events kept for retry")
		}
		return err
	}

	// Publish may wait on a review for up to an hour; anything saved meanwhile
	// was not part of this post and stays pending.
	if !s.events.ArchivePosted(date, len(events)) {
		log.Warn("Posted but could not archive events")
	}
	log.Info("Daily post completed")
	return nil
}
