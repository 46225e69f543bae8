package publisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
)

const (
	reviewDelimiter = "=================================================="
	approvePrefix   = "APPROVE="

	postedPrefix  = "posted_"
	expiredPrefix = "expired_"

	// DefaultReviewInterval and DefaultReviewAttempts bound the wait to about an hour.
	DefaultReviewInterval = 5 * time.Minute
	DefaultReviewAttempts = 12
)

var (
	// ErrReviewTimeout is returned when nobody approved the post in time.
	ErrReviewTimeout = errors.New("post not approved before review timeout")
	// ErrReviewMissing is returned when the review file disappears while waiting.
	ErrReviewMissing = errors.New("review file not found")
	// ErrReviewEmpty is returned when an approved review has no content left.
	ErrReviewEmpty = errors.New("approved review has no content")
)

// ReviewGate holds a post back until a human flips APPROVE=true in its review file.
type ReviewGate struct {
	dir         string
	interval    time.Duration
	maxAttempts int
	now         func() time.Time
	logger      logrus.FieldLogger
}

// NewReviewGate creates a gate writing review files to dir.
func NewReviewGate(dir string, interval time.Duration, maxAttempts int, logger logrus.FieldLogger) *ReviewGate {
	if interval <= 0 {
		interval = DefaultReviewInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultReviewAttempts
	}
	return &ReviewGate{
		dir:         dir,
		interval:    interval,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// Create writes a pending review file for content.
func (g *ReviewGate) Create(content, method string) (*domain.ReviewRecord, error) {
	now := g.now()
	stamp := now.Format("20060102_150405")

	var b strings.Builder
	b.WriteString("LinkedIn Post Review\n")
	fmt.Fprintf(&b, "Generated at: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "Content length: %d characters\n", len([]rune(content)))
	fmt.Fprintf(&b, "Posting method: %s\n", methodLabel(method))
	fmt.Fprintf(&b, "\n%s\n", reviewDelimiter)
	fmt.Fprintf(&b, "%s\n", content)
	fmt.Fprintf(&b, "%s\n", reviewDelimiter)
	b.WriteString("\nTo approve this post, edit this file and set the APPROVE line below to true\n")
	b.WriteString(approvePrefix + "false\n")

	name, path, err := g.writeNew(stamp, []byte(b.String()))
	if err != nil {
		return nil, fmt.Errorf("write review file: %w", err)
	}
	return &domain.ReviewRecord{
		Name:      name,
		Path:      path,
		Content:   content,
		Status:    domain.ReviewPending,
		CreatedAt: now,
	}, nil
}

// writeNew creates review_<stamp>.txt, adding a counter when reviews started
// within the same second collide.
func (g *ReviewGate) writeNew(stamp string, data []byte) (name, path string, err error) {
	for i := 1; ; i++ {
		name = fmt.Sprintf("review_%s.txt", stamp)
		if i > 1 {
			name = fmt.Sprintf("review_%s_%d.txt", stamp, i)
		}
		path = filepath.Join(g.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", "", err
		}
		return name, path, f.Close()
	}
}

// Await creates a review file and polls it until it is approved, the attempts
// run out, or ctx is cancelled. It returns the approved, possibly edited, text.
// Cancellation leaves the review file in place.
func (g *ReviewGate) Await(ctx context.Context, content, method string) (string, error) {
	record, err := g.Create(content, method)
	if err != nil {
		return "", err
	}
	log := g.logger.WithField("review_file", record.Path)
	log.WithField("interval", g.interval.String()).Warn("Post review required, set APPROVE=true to publish")

	timer := time.NewTimer(g.interval)
	defer timer.Stop()

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Warn("Review wait cancelled")
			return "", ctx.Err()
		case <-timer.C:
		}

		data, err := os.ReadFile(record.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Error("Review file not found")
				return "", ErrReviewMissing
			}
			return "", fmt.Errorf("read review file: %w", err)
		}

		approved, edited := ParseReview(string(data))
		if approved {
			log.Info("Post approved")
			record.Content = edited
			g.resolve(record, domain.ReviewApproved, log)
			if edited == "" {
				return "", ErrReviewEmpty
			}
			return edited, nil
		}

		log.WithFields(logrus.Fields{"attempt": attempt, "max_attempts": g.maxAttempts}).Info("Waiting for approval")
		timer.Reset(g.interval)
	}

	log.Warn("Review timeout reached, post not approved")
	g.resolve(record, domain.ReviewExpired, log)
	return "", ErrReviewTimeout
}

func methodLabel(method string) string {
	switch method {
	case "relay":
		return "Pipedream"
	case "linkedin":
		return "Direct LinkedIn"
	}
	return method
}

// resolve records the decision on record and renames its file with the
// matching prefix. A failed rename leaves Path pointing at the original file.
func (g *ReviewGate) resolve(record *domain.ReviewRecord, status domain.ReviewStatus, log logrus.FieldLogger) {
	record.Status = status

	prefix := expiredPrefix
	if status == domain.ReviewApproved {
		prefix = postedPrefix
	}
	dst := filepath.Join(g.dir, prefix+record.Name)
	if err := os.Rename(record.Path, dst); err != nil {
		log.WithError(err).Error("Error archiving review file")
		return
	}
	record.Path = dst
	log.WithFields(logrus.Fields{"archived_as": dst, "status": status}).Info("Review file archived")
}

// ParseReview reports whether the review text carries an APPROVE=true line and
// returns the text between the first two delimiter lines, without APPROVE lines.
// Only the exact delimiter written by Create counts, so "===" headings survive.
func ParseReview(text string) (approved bool, content string) {
	var lines []string
	inContent := false
	done := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, approvePrefix) {
			if strings.EqualFold(strings.TrimPrefix(trimmed, approvePrefix), "true") {
				approved = true
			}
			continue
		}
		if done {
			continue
		}
		if trimmed == reviewDelimiter {
			if inContent {
				done = true
			} else {
				inContent = true
			}
			continue
		}
		if inContent {
			lines = append(lines, line)
		}
	}
	return approved, strings.TrimSpace(strings.Join(lines, "\n"))
}
