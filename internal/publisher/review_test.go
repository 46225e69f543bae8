package publisher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
	"github.com/kurihiro0119/github-social-relay/internal/logging"
)

func newTestGate(t *testing.T, interval time.Duration, attempts int) (*ReviewGate, string) {
	t.Helper()
	dir := t.TempDir()
	gate := NewReviewGate(dir, interval, attempts, logging.Discard())
	gate.now = func() time.Time { return time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC) }
	return gate, dir
}

const reviewName = "review_20240501_180000.txt"

// approveWhenReady flips the approval flag once the review file is complete.
func approveWhenReady(t *testing.T, path string, edit func(string) string) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			data, err := os.ReadFile(path)
			if err == nil && strings.Contains(string(data), "APPROVE=false") {
				text := strings.Replace(string(data), "APPROVE=false", "APPROVE=true", 1)
				if edit != nil {
					text = edit(text)
				}
				_ = os.WriteFile(path, []byte(text), 0o644)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
}

func TestReviewCreateFormat(t *testing.T) {
	gate, dir := newTestGate(t, time.Minute, 1)

	record, err := gate.Create("Shipped v1.2 today", "relay")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, reviewName), record.Path)

	data, err := os.ReadFile(record.Path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "LinkedIn Post Review\n"))
	assert.Contains(t, text, "Posting method: Pipedream")
	assert.Contains(t, text, "Content length: 18 characters")
	assert.Contains(t, text, reviewDelimiter+"\nShipped v1.2 today\n"+reviewDelimiter)
	assert.True(t, strings.HasSuffix(text, "APPROVE=false\n"))

	approved, content := ParseReview(text)
	assert.False(t, approved)
	assert.Equal(t, "Shipped v1.2 today", content)
}

func TestParseReview(t *testing.T) {
	d := reviewDelimiter
	tests := []struct {
		name     string
		text     string
		approved bool
		content  string
	}{
		{
			name:     "approved",
			text:     "header\n" + d + "\nhello\nworld\n" + d + "\nset APPROVE to true\nAPPROVE=true\n",
			approved: true,
			content:  "hello\nworld",
		},
		{
			name:     "case insensitive value",
			text:     d + "\nhi\n" + d + "\nAPPROVE=TRUE",
			approved: true,
			content:  "hi",
		},
		{
			name:    "instruction line alone does not approve",
			text:    d + "\nhi\n" + d + "\nset the APPROVE line to APPROVE=true to publish\nAPPROVE=false",
			content: "hi",
		},
		{
			name:     "approve line inside content is dropped",
			text:     d + "\nhi\nAPPROVE=true\n" + d + "\n",
			approved: true,
			content:  "hi",
		},
		{
			name:    "content line starting with equals",
			text:    d + "\n==> shipped\n" + d + "\nAPPROVE=false",
			content: "==> shipped",
		},
		{
			name:     "underlined heading inside content",
			text:     d + "\nWeekly wins\n===\nShipped v2.1.0\n" + d + "\nAPPROVE=true",
			approved: true,
			content:  "Weekly wins\n===\nShipped v2.1.0",
		},
		{
			name: "no delimiters",
			text: "APPROVE=false",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approved, content := ParseReview(tt.text)
			assert.Equal(t, tt.approved, approved)
			assert.Equal(t, tt.content, content)
		})
	}
}

func TestApprovedReviewKeepsHeadingLines(t *testing.T) {
	gate, _ := newTestGate(t, time.Minute, 1)
	post := "Weekly wins\n===\nShipped v2.1.0"

	record, err := gate.Create(post, "linkedin")
	require.NoError(t, err)
	data, err := os.ReadFile(record.Path)
	require.NoError(t, err)

	approved, content := ParseReview(strings.Replace(string(data), "APPROVE=false", "APPROVE=true", 1))
	assert.True(t, approved)
	assert.Equal(t, post, content)
}

func TestAwaitApproved(t *testing.T) {
	gate, dir := newTestGate(t, 20*time.Millisecond, 200)
	path := filepath.Join(dir, reviewName)
	approveWhenReady(t, path, func(text string) string {
		return strings.Replace(text, "draft text", "edited text", 1)
	})

	content, err := gate.Await(context.Background(), "draft text", "linkedin")
	require.NoError(t, err)
	assert.Equal(t, "edited text", content)

	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(dir, "posted_"+reviewName))
}

func TestAwaitTimeout(t *testing.T) {
	gate, dir := newTestGate(t, time.Millisecond, 3)

	_, err := gate.Await(context.Background(), "draft", "linkedin")
	assert.ErrorIs(t, err, ErrReviewTimeout)
	assert.FileExists(t, filepath.Join(dir, "expired_"+reviewName))
	assert.NoFileExists(t, filepath.Join(dir, reviewName))
}

func TestAwaitCancelledLeavesFile(t *testing.T) {
	gate, dir := newTestGate(t, time.Hour, 12)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gate.Await(ctx, "draft", "linkedin")
	assert.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, filepath.Join(dir, reviewName))
}

func TestAwaitMissingFile(t *testing.T) {
	gate, dir := newTestGate(t, 20*time.Millisecond, 200)
	path := filepath.Join(dir, reviewName)
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if err := os.Remove(path); err == nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	_, err := gate.Await(context.Background(), "draft", "linkedin")
	assert.ErrorIs(t, err, ErrReviewMissing)
}

func TestCreateAvoidsNameCollision(t *testing.T) {
	gate, dir := newTestGate(t, time.Minute, 1)

	first, err := gate.Create("one", "linkedin")
	require.NoError(t, err)
	second, err := gate.Create("two", "linkedin")
	require.NoError(t, err)

	assert.Equal(t, reviewName, first.Name)
	assert.Equal(t, "review_20240501_180000_2.txt", second.Name)
	assert.FileExists(t, filepath.Join(dir, second.Name))
}

func TestResolveRecordsDecision(t *testing.T) {
	tests := []struct {
		status domain.ReviewStatus
		prefix string
	}{
		{domain.ReviewApproved, "posted_"},
		{domain.ReviewExpired, "expired_"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			gate, dir := newTestGate(t, time.Minute, 1)
			record, err := gate.Create("draft", "linkedin")
			require.NoError(t, err)
			assert.Equal(t, domain.ReviewPending, record.Status)

			gate.resolve(record, tt.status, logging.Discard())

			assert.Equal(t, tt.status, record.Status)
			assert.Equal(t, filepath.Join(dir, tt.prefix+reviewName), record.Path)
			assert.FileExists(t, record.Path)
			assert.NoFileExists(t, filepath.Join(dir, reviewName))
		})
	}
}
