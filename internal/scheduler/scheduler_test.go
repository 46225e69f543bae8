package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
	apperrors "github.com/kurihiro0119/github-social-relay/internal/errors"
	"github.com/kurihiro0119/github-social-relay/internal/eventstore"
	"github.com/kurihiro0119/github-social-relay/internal/logging"
)

var today = time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)

type stubGenerator struct {
	calls int
}

func (g *stubGenerator) DailySummary(_ context.Context, events []domain.Event) string {
	g.calls++
	return "summary of events"
}

type stubPoster struct {
	mu    sync.Mutex
	fail  map[string]bool
	dates []string
}

func (p *stubPoster) Publish(_ context.Context, date, _ string, _ []domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dates = append(p.dates, date)
	if p.fail[date] {
		return errors.New("publish failed")
	}
	return nil
}

func (p *stubPoster) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dates...)
}

func storeAt(t *testing.T, dir string, at time.Time) *eventstore.Store {
	t.Helper()
	return eventstore.New(dir, logging.Discard(), eventstore.WithClock(func() time.Time { return at }))
}

func seed(t *testing.T, store *eventstore.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.Save(domain.EventTypePush, []byte(`{"ref":"refs/heads/main","commits":[{}]}`), "")
		require.NoError(t, err)
	}
}

func newScheduler(store *eventstore.Store, gen Summarizer, poster Poster) *Scheduler {
	return New(store, gen, poster, 18, 0, logging.Discard(), WithClock(func() time.Time { return today }))
}

func TestRunDailyArchivesOnSuccess(t *testing.T) {
	store := storeAt(t, t.TempDir(), today)
	seed(t, store, 3)
	poster := &stubPoster{}

	require.NoError(t, newScheduler(store, &stubGenerator{}, poster).RunDaily(context.Background()))

	date := domain.DateKey(today)
	assert.Equal(t, []string{date}, poster.published())
	assert.NoFileExists(t, store.ActivePath(date))
	assert.FileExists(t, store.ArchivedPath(date))
	assert.Len(t, store.LoadArchived(date), 3)
	assert.False(t, store.HasActive(date))
}

func TestRunDailyKeepsBucketOnFailure(t *testing.T) {
	store := storeAt(t, t.TempDir(), today)
	seed(t, store, 3)
	date := domain.DateKey(today)
	poster := &stubPoster{fail: map[string]bool{date: true}}

	err := newScheduler(store, &stubGenerator{}, poster).RunDaily(context.Background())
	require.Error(t, err)

	assert.FileExists(t, store.ActivePath(date))
	assert.NoFileExists(t, store.ArchivedPath(date))
	assert.Len(t, store.Load(date), 3)
}

func TestRunDailySkipsEmptyDay(t *testing.T) {
	store := storeAt(t, t.TempDir(), today)
	gen := &stubGenerator{}
	poster := &stubPoster{}

	require.NoError(t, newScheduler(store, gen, poster).RunDaily(context.Background()))
	assert.Zero(t, gen.calls)
	assert.Empty(t, poster.published())
}

func TestSweepPostsMissedDay(t *testing.T) {
	dir := t.TempDir()
	threeDaysAgo := today.AddDate(0, 0, -3)
	seed(t, storeAt(t, dir, threeDaysAgo), 2)

	store := storeAt(t, dir, today)
	poster := &stubPoster{}
	require.NoError(t, newScheduler(store, &stubGenerator{}, poster).RunDaily(context.Background()))

	missed := domain.DateKey(threeDaysAgo)
	assert.Equal(t, []string{missed}, poster.published())
	assert.FileExists(t, store.ArchivedPath(missed))
	assert.NoFileExists(t, store.ActivePath(missed))
}

func TestSweepContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	twoDaysAgo := domain.DateKey(today.AddDate(0, 0, -2))
	fiveDaysAgo := domain.DateKey(today.AddDate(0, 0, -5))
	seed(t, storeAt(t, dir, today.AddDate(0, 0, -2)), 1)
	seed(t, storeAt(t, dir, today.AddDate(0, 0, -5)), 1)
	seed(t, storeAt(t, dir, today.AddDate(0, 0, -9)), 1)

	store := storeAt(t, dir, today)
	poster := &stubPoster{fail: map[string]bool{twoDaysAgo: true}}
	posted := newScheduler(store, &stubGenerator{}, poster).SweepMissed(context.Background(), today)

	assert.Equal(t, 1, posted)
	assert.Equal(t, []string{twoDaysAgo, fiveDaysAgo}, poster.published())
	assert.True(t, store.HasActive(twoDaysAgo))
	assert.True(t, store.HasArchived(fiveDaysAgo))
	// Outside the lookback window.
	assert.True(t, store.HasActive(domain.DateKey(today.AddDate(0, 0, -9))))
}

func TestSweepPostsLateEventsOfArchivedDay(t *testing.T) {
	dir := t.TempDir()
	yesterday := today.AddDate(0, 0, -1)
	old := storeAt(t, dir, yesterday)
	seed(t, old, 1)
	require.True(t, old.Archive(""))
	seed(t, old, 1)

	store := storeAt(t, dir, today)
	poster := &stubPoster{}
	posted := newScheduler(store, &stubGenerator{}, poster).SweepMissed(context.Background(), today)

	date := domain.DateKey(yesterday)
	assert.Equal(t, 1, posted)
	assert.Equal(t, []string{date}, poster.published())
	assert.False(t, store.HasActive(date))
	assert.Len(t, store.LoadArchived(date), 2)
}

// lateSavePoster saves another event while the post is "in review".
type lateSavePoster struct {
	store *eventstore.Store
	t     *testing.T
}

func (p *lateSavePoster) Publish(_ context.Context, _, _ string, _ []domain.Event) error {
	_, err := p.store.Save(domain.EventTypeRelease, []byte(`{}`), "late")
	assert.NoError(p.t, err)
	return nil
}

func TestRunDailyKeepsEventsSavedDuringPublish(t *testing.T) {
	store := storeAt(t, t.TempDir(), today)
	seed(t, store, 3)

	err := newScheduler(store, &stubGenerator{}, &lateSavePoster{store: store, t: t}).RunDaily(context.Background())
	require.NoError(t, err)

	date := domain.DateKey(today)
	assert.Len(t, store.LoadArchived(date), 3)
	pending := store.Load(date)
	require.Len(t, pending, 1)
	assert.Equal(t, "late", pending[0].DeliveryID)
}

type configErrorPoster struct{}

func (configErrorPoster) Publish(context.Context, string, string, []domain.Event) error {
	return apperrors.NewConfigError("token may lack required permissions", errors.New("403"))
}

func TestRunDailyFlagsMisconfiguredPoster(t *testing.T) {
	store := storeAt(t, t.TempDir(), today)
	seed(t, store, 1)
	logger, hook := logtest.NewNullLogger()
	s := New(store, &stubGenerator{}, configErrorPoster{}, 18, 0, logger, WithClock(func() time.Time { return today }))

	err := s.RunDaily(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConfig(err))

	var flagged bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && strings.Contains(entry.Message, "misconfigured") {
			flagged = true
		}
	}
	assert.True(t, flagged)
	assert.True(t, store.HasActive(domain.DateKey(today)))
}

func TestNextRun(t *testing.T) {
	s := New(nil, nil, nil, 18, 30, logging.Discard())

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"before", time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC), time.Date(2024, 5, 10, 18, 30, 0, 0, time.UTC)},
		{"exactly at", time.Date(2024, 5, 10, 18, 30, 0, 0, time.UTC), time.Date(2024, 5, 11, 18, 30, 0, 0, time.UTC)},
		{"after", time.Date(2024, 5, 10, 23, 0, 0, 0, time.UTC), time.Date(2024, 5, 11, 18, 30, 0, 0, time.UTC)},
		{"month end", time.Date(2024, 5, 31, 20, 0, 0, 0, time.UTC), time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.NextRun(tt.at))
		})
	}
}

type panicGenerator struct {
	calls atomic.Int32
}

func (g *panicGenerator) DailySummary(context.Context, []domain.Event) string {
	g.calls.Add(1)
	panic("model exploded")
}

func TestRunFiresAndSurvivesPanics(t *testing.T) {
	store := storeAt(t, t.TempDir(), today)
	seed(t, store, 1)

	// The first reading schedules the run, later readings are past it.
	var reads atomic.Int32
	now := func() time.Time {
		if reads.Add(1) == 1 {
			return today.Add(-time.Minute)
		}
		return today.Add(time.Second)
	}

	gen := &panicGenerator{}
	s := New(store, gen, &stubPoster{}, 18, 0, logging.Discard(),
		WithClock(now), WithCheckInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return gen.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), gen.calls.Load())
	assert.True(t, store.HasActive(domain.DateKey(today)))
}
