package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
	"github.com/kurihiro0119/github-social-relay/internal/logging"
)

type fakeCompleter struct {
	replies []string
	err     error
	calls   []Request
}

func (f *fakeCompleter) Complete(_ context.Context, req Request) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no reply queued")
	}
	out := f.replies[0]
	f.replies = f.replies[1:]
	return out, nil
}

func sampleEvents() []domain.Event {
	return []domain.Event{
		{Type: domain.EventTypePush, Summary: "Pushed 2 commits to main in octo/app"},
		{Type: domain.EventTypeRelease, Summary: "Released version v1.2 in octo/app"},
		{Type: domain.EventTypePush, Summary: "Pushed 1 commits to dev in octo/app"},
	}
}

func TestHumanize(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"Shipped it!"}}
	gen := NewGenerator(fake, logging.Discard())

	assert.Equal(t, "Shipped it!", gen.Humanize(context.Background(), "released v1"))
	require.Len(t, fake.calls, 1)
	assert.Contains(t, fake.calls[0].Messages[0].Content, "released v1")
	assert.Equal(t, 300, fake.calls[0].MaxTokens)
}

func TestHumanizeReturnsInputOnFailure(t *testing.T) {
	gen := NewGenerator(&fakeCompleter{err: errors.New("down")}, logging.Discard())
	assert.Equal(t, "original text", gen.Humanize(context.Background(), "original text"))
}

func TestDailySummaryPrompt(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"3 commits: misc. v1.2: release."}}
	gen := NewGenerator(fake, logging.Discard())

	out := gen.DailySummary(context.Background(), sampleEvents())
	assert.Equal(t, "3 commits: misc. v1.2: release.", out)

	require.Len(t, fake.calls, 1)
	prompt := fake.calls[0].Messages[0].Content
	assert.Contains(t, prompt, "- Push: Pushed 2 commits to main in octo/app")
	assert.Contains(t, prompt, "- Release: Released version v1.2 in octo/app")
	assert.Contains(t, prompt, "Under 250 characters")
	assert.Contains(t, prompt, "No hashtags")
	assert.InDelta(t, 0.8, fake.calls[0].Temperature, 0.0001)
}

func TestDailySummaryFallback(t *testing.T) {
	gen := NewGenerator(&fakeCompleter{err: errors.New("quota")}, logging.Discard())
	out := gen.DailySummary(context.Background(), sampleEvents())
	assert.Equal(t, "Today we had 3 GitHub activities including push, release. Great progress on our projects!", out)
}

func TestEventPost(t *testing.T) {
	fake := &fakeCompleter{replies: []string{"draft", "polished"}}
	gen := NewGenerator(fake, logging.Discard())

	out := gen.EventPost(context.Background(), domain.Event{Type: domain.EventTypeRelease, Summary: "Released version v2 in octo/app"})
	assert.Equal(t, "polished", out)
	require.Len(t, fake.calls, 2)
	assert.Contains(t, fake.calls[0].Messages[0].Content, "Released version v2 in octo/app")
	assert.True(t, strings.Contains(fake.calls[1].Messages[0].Content, "draft"))
}

func TestEventPostFallsBackToSummary(t *testing.T) {
	gen := NewGenerator(&fakeCompleter{err: errors.New("down")}, logging.Discard())
	out := gen.EventPost(context.Background(), domain.Event{Type: domain.EventTypePush, Summary: "Pushed 1 commits to main in x"})
	assert.Equal(t, "Pushed 1 commits to main in x", out)
}
