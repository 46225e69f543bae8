package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
)

const humanizePrompt = `Rewrite the following text to sound more natural and human-like,
as if written by a professional sharing on LinkedIn. Make it engaging and conversational:

%s

Humanized version:`

const dailySummaryPrompt = `Generate a factual summary of GitHub events with commit details.

Input:
%s

Output format:
- List specific actions performed with details
- Include actual commit messages and changes
- Use format: "X commits: [commit details]. PR #N: [PR title]. vX.X: [release notes]. Issue #N: [issue title]."
- No hashtags
- No conversational language
- Technical details only
- Under 250 characters

Example: "5 commits: updated AI models, fixed API calls, added error handling. PR #42: user authentication feature. v2.1.0: new performance improvements. Issue #15: resolved memory leak."

Summary:`

const eventPostPrompt = `Write a short LinkedIn post (under 600 characters) about this GitHub %s event.
Stick to the facts below and do not invent details.

%s`

// Generator turns buffered events into post text.
type Generator struct {
	llm    Completer
	logger logrus.FieldLogger
}

// NewGenerator creates a content generator backed by c.
func NewGenerator(c Completer, logger logrus.FieldLogger) *Generator {
	return &Generator{llm: c, logger: logger}
}

// Humanize rewrites text conversationally. Any failure returns text unchanged.
func (g *Generator) Humanize(ctx context.Context, text string) string {
	out, err := g.llm.Complete(ctx, Request{
		Messages:    []Message{{Role: "user", Content: fmt.Sprintf(humanizePrompt, text)}},
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		g.logger.WithError(err).Error("Error humanizing content")
		return text
	}
	return out
}

// DailySummary produces a short factual digest of events. On failure it falls
// back to a templated sentence built from the events themselves.
func (g *Generator) DailySummary(ctx context.Context, events []domain.Event) string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, fmt.Sprintf("- %s: %s", title(string(e.Type)), e.Summary))
	}

	out, err := g.llm.Complete(ctx, Request{
		Messages:    []Message{{Role: "user", Content: fmt.Sprintf(dailySummaryPrompt, strings.Join(lines, "\n"))}},
		MaxTokens:   400,
		Temperature: 0.8,
	})
	if err != nil {
		g.logger.WithError(err).WithField("events", len(events)).Error("Error generating daily summary")
		return FallbackSummary(events)
	}
	return out
}

// EventPost drafts a post about a single event and runs it through Humanize.
// The event summary line is used when the draft cannot be generated.
func (g *Generator) EventPost(ctx context.Context, event domain.Event) string {
	draft, err := g.llm.Complete(ctx, Request{
		Messages:    []Message{{Role: "user", Content: fmt.Sprintf(eventPostPrompt, event.Type, event.Summary)}},
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		g.logger.WithError(err).WithField("event_type", event.Type).Error("Error drafting event post")
		draft = event.Summary
	}
	return g.Humanize(ctx, draft)
}

// FallbackSummary is the templated digest used when the model is unavailable.
func FallbackSummary(events []domain.Event) string {
	return fmt.Sprintf("Today we had %d GitHub activities including %s. Great progress on our projects!",
		len(events), strings.Join(domain.DistinctTypes(events), ", "))
}

func title(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
