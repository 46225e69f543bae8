// Package hooks registers the relay's webhook on a GitHub repository.
package hooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v55/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
)

// Hook is a repository webhook as seen by the relay
type Hook struct {
	ID      int64    `json:"id"`
	URL     string   `json:"url"`
	Events  []string `json:"events"`
	Active  bool     `json:"active"`
	Created bool     `json:"created"`
}

// Registrar defines the interface for managing the relay webhook
type Registrar interface {
	// EnsureHook returns the hook delivering to url, creating it when missing
	EnsureHook(ctx context.Context, owner, repo, url string) (*Hook, error)
}

// githubRegistrar implements Registrar using GitHub API
type githubRegistrar struct {
	client *github.Client
	secret string
	logger logrus.FieldLogger
}

// NewGitHubRegistrar creates a registrar authenticated with token. New hooks
// are signed with secret.
func NewGitHubRegistrar(token, secret string, logger logrus.FieldLogger) Registrar {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return newWithClient(github.NewClient(tc), secret, logger)
}

func newWithClient(client *github.Client, secret string, logger logrus.FieldLogger) *githubRegistrar {
	return &githubRegistrar{
		client: client,
		secret: secret,
		logger: logger,
	}
}

// EnsureHook looks for an existing hook with the same delivery URL before
// creating a new active JSON hook for the supported events.
func (r *githubRegistrar) EnsureHook(ctx context.Context, owner, repo, url string) (*Hook, error) {
	if owner == "" || repo == "" || url == "" {
		return nil, fmt.Errorf("owner, repo and url are required")
	}
	log := r.logger.WithFields(logrus.Fields{"repo": owner + "/" + repo, "url": url})

	existing, err := r.findHook(ctx, owner, repo, url)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.WithField("hook_id", existing.ID).Info("Webhook already registered")
		return existing, nil
	}

	events := make([]string, 0, len(domain.SupportedEventTypes()))
	for _, t := range domain.SupportedEventTypes() {
		events = append(events, string(t))
	}

	hook, _, err := r.client.Repositories.CreateHook(ctx, owner, repo, &github.Hook{
		Name:   github.String("web"),
		Active: github.Bool(true),
		Events: events,
		Config: map[string]interface{}{
			"url":          url,
			"content_type": "json",
			"secret":       r.secret,
			"insecure_ssl": "0",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create hook for %s/%s: %w", owner, repo, err)
	}

	result := toHook(hook)
	result.Created = true
	log.WithField("hook_id", result.ID).Info("Webhook created")
	return result, nil
}

func (r *githubRegistrar) findHook(ctx context.Context, owner, repo, url string) (*Hook, error) {
	opts := &github.ListOptions{PerPage: 100}

	for {
		hooks, resp, err := r.client.Repositories.ListHooks(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list hooks for %s/%s: %w", owner, repo, err)
		}

		for _, h := range hooks {
			if sameURL(configURL(h), url) {
				return toHook(h), nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil, nil
}

func configURL(h *github.Hook) string {
	if h.Config == nil {
		return ""
	}
	u, _ := h.Config["url"].(string)
	return u
}

func sameURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}

func toHook(h *github.Hook) *Hook {
	return &Hook{
		ID:     h.GetID(),
		URL:    configURL(h),
		Events: h.Events,
		Active: h.GetActive(),
	}
}
