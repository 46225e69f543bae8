package eventstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-github/v55/github"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
)

const (
	unknownRepo   = "unknown-repo"
	unknownTag    = "unknown"
	defaultAction = "updated"
)

// Summarize builds the one-line description stored with an event. It never
// fails: missing or malformed fields fall back to placeholder values.
func Summarize(eventType domain.EventType, payload []byte) string {
	parsed, err := github.ParseWebHook(string(eventType), payload)
	if err != nil {
		return fmt.Sprintf("%s event occurred in %s", eventType, looseRepoName(payload))
	}

	switch e := parsed.(type) {
	case *github.PushEvent:
		branch := strings.TrimPrefix(e.GetRef(), "refs/heads/")
		return fmt.Sprintf("Pushed %d commits to %s in %s", len(e.Commits), branch,
			orUnknownRepo(e.GetRepo().GetFullName(), e.GetRepo().GetName()))
	case *github.ReleaseEvent:
		tag := e.GetRelease().GetTagName()
		if tag == "" {
			tag = unknownTag
		}
		return fmt.Sprintf("Released version %s in %s", tag,
			orUnknownRepo(e.GetRepo().GetFullName(), e.GetRepo().GetName()))
	case *github.RepositoryEvent:
		return fmt.Sprintf("Repository %s: %s", orDefaultAction(e.GetAction()),
			orUnknownRepo(e.GetRepo().GetFullName(), e.GetRepo().GetName()))
	case *github.OrganizationEvent:
		return fmt.Sprintf("Organization %s", orDefaultAction(e.GetAction()))
	default:
		return fmt.Sprintf("%s event occurred in %s", eventType, looseRepoName(payload))
	}
}

func orUnknownRepo(fullName, name string) string {
	if fullName != "" {
		return fullName
	}
	if name != "" {
		return name
	}
	return unknownRepo
}

func orDefaultAction(action string) string {
	if action == "" {
		return defaultAction
	}
	return action
}

// looseRepoName digs the repository name out of payloads go-github cannot type.
func looseRepoName(payload []byte) string {
	var body struct {
		Repository struct {
			FullName string `json:"full_name"`
			Name     string `json:"name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return unknownRepo
	}
	return orUnknownRepo(body.Repository.FullName, body.Repository.Name)
}
