// Package eventstore buffers webhook events in one JSON file per calendar day.
package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
)

const (
	activePrefix   = "events_"
	archivedPrefix = "posted_events_"
)

// Store reads and writes day buckets under a directory.
type Store struct {
	dir    string
	now    func() time.Time
	logger logrus.FieldLogger

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to pick today's bucket.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store rooted at dir.
func New(dir string, logger logrus.FieldLogger, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current bucket key.
func (s *Store) Today() string {
	return domain.DateKey(s.now())
}

func (s *Store) resolve(date string) string {
	if date == "" {
		return s.Today()
	}
	return date
}

// ActivePath is the file holding the pending bucket for date.
func (s *Store) ActivePath(date string) string {
	return filepath.Join(s.dir, activePrefix+s.resolve(date)+".json")
}

// ArchivedPath is the file a bucket is renamed to once posted.
func (s *Store) ArchivedPath(date string) string {
	return filepath.Join(s.dir, archivedPrefix+s.resolve(date)+".json")
}

// Save appends one event to today's bucket. An unreadable or corrupt bucket is
// treated as empty; failing to write the bucket back is returned to the caller.
func (s *Store) Save(eventType domain.EventType, payload []byte, deliveryID string) (*domain.Event, error) {
	now := s.now()
	date := domain.DateKey(now)
	event := domain.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  now,
		Summary:    Summarize(eventType, payload),
		DeliveryID: deliveryID,
	}
	if json.Valid(payload) {
		event.Payload = json.RawMessage(payload)
	}

	log := s.logger.WithFields(logrus.Fields{"event_type": eventType, "date": date})
	log.WithField("summary", event.Summary).Info("Processing event")

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.ActivePath(date)
	events, err := readBucket(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("Existing events file unreadable, starting a new bucket")
		events = nil
	}
	events = append(events, event)

	if err := writeBucket(path, events); err != nil {
		log.WithError(err).Error("Failed to save event")
		return nil, fmt.Errorf("save event to %s: %w", path, err)
	}
	log.WithField("total_events", len(events)).Info("Saved event")
	return &event, nil
}

// Load returns the pending events for date ("" for today). Missing or corrupt
// buckets yield an empty result.
func (s *Store) Load(date string) []domain.Event {
	return s.load(s.ActivePath(date))
}

// LoadArchived returns the events of an already-posted bucket.
func (s *Store) LoadArchived(date string) []domain.Event {
	return s.load(s.ArchivedPath(date))
}

func (s *Store) load(path string) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := readBucket(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).WithField("path", path).Error("Error loading events")
		}
		return nil
	}
	return events
}

// HasActive reports whether a pending bucket exists for date.
func (s *Store) HasActive(date string) bool {
	return fileExists(s.ActivePath(date))
}

// HasArchived reports whether date has already been posted.
func (s *Store) HasArchived(date string) bool {
	return fileExists(s.ArchivedPath(date))
}

// Archive moves the pending bucket for date to its archived name. It returns
// false when there is no pending bucket or the move fails. Events that reached
// an already-archived day are merged into the archive rather than replacing it.
func (s *Store) Archive(date string) bool {
	date = s.resolve(date)
	log := s.logger.WithField("date", date)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.archiveLocked(date, log)
}

// ArchivePosted archives only the first n pending events of date, the ones a
// post was built from. Events saved after they were loaded stay pending for
// the next run.
func (s *Store) ArchivePosted(date string, n int) bool {
	date = s.resolve(date)
	log := s.logger.WithFields(logrus.Fields{"date": date, "posted": n})
	if n <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.ActivePath(date)
	pending, err := readBucket(src)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.WithError(err).Error("Error reading pending events")
		} else {
			log.Warn("No events file to archive")
		}
		return false
	}
	if n >= len(pending) {
		return s.archiveLocked(date, log)
	}

	dst := s.ArchivedPath(date)
	archived, err := readBucket(dst)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Error("Error reading archived events")
		return false
	}
	if err := writeBucket(dst, append(archived, pending[:n]...)); err != nil {
		log.WithError(err).Error("Error archiving posted events")
		return false
	}
	if err := writeBucket(src, pending[n:]); err != nil {
		log.WithError(err).Error("Error rewriting pending events")
		return false
	}
	log.WithField("remaining", len(pending)-n).Info("Archived posted events, later arrivals kept pending")
	return true
}

func (s *Store) archiveLocked(date string, log logrus.FieldLogger) bool {
	src := s.ActivePath(date)
	dst := s.ArchivedPath(date)
	if !fileExists(src) {
		log.Warn("No events file to archive")
		return false
	}

	if fileExists(dst) {
		archived, err := readBucket(dst)
		if err != nil {
			log.WithError(err).Error("Error reading archived events")
			return false
		}
		pending, err := readBucket(src)
		if err != nil {
			log.WithError(err).Error("Error reading pending events")
			return false
		}
		if err := writeBucket(dst, append(archived, pending...)); err != nil {
			log.WithError(err).Error("Error merging events into archive")
			return false
		}
		if err := os.Remove(src); err != nil {
			log.WithError(err).Error("Error removing merged events file")
			return false
		}
		log.WithField("path", dst).Info("Merged events into existing archive")
		return true
	}

	if err := os.Rename(src, dst); err != nil {
		log.WithError(err).Error("Error archiving events file")
		return false
	}
	log.WithField("path", dst).Info("Archived events file")
	return true
}

// Stats counts the pending events of date by type.
func (s *Store) Stats(date string) *domain.DayStats {
	date = s.resolve(date)
	return domain.NewDayStats(date, s.Load(date))
}

func readBucket(path string) ([]domain.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return events, nil
}

// writeBucket replaces path through a temp file in the same directory.
func writeBucket(path string, events []domain.Event) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
