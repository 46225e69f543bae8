package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
	apperrors "github.com/kurihiro0119/github-social-relay/internal/errors"
)

const (
	identityTimeout = 10 * time.Second
	postTimeout     = 15 * time.Second
)

// ErrIdentityUnavailable means neither identity endpoint returned a person id.
var ErrIdentityUnavailable = errors.New("unable to get LinkedIn person URN")

// LinkedIn posts shares on behalf of the token owner.
type LinkedIn struct {
	baseURL string
	client  *http.Client
	logger  logrus.FieldLogger

	mu        sync.Mutex
	personURN string
}

var _ Sender = (*LinkedIn)(nil)

// NewLinkedIn creates a client whose requests carry the access token as a bearer credential.
func NewLinkedIn(baseURL, accessToken string, logger logrus.FieldLogger) *LinkedIn {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	client := oauth2.NewClient(context.Background(), ts)
	client.Timeout = postTimeout

	return &LinkedIn{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// Name identifies the delivery method.
func (l *LinkedIn) Name() string { return "linkedin" }

// PersonURN resolves and caches the author URN, trying the v3 identity API
// before the older v2 one.
func (l *LinkedIn) PersonURN(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.personURN != "" {
		return l.personURN, nil
	}

	id, err := l.fetchPersonID(ctx, "/v3/people/me", map[string]string{"X-Restli-Protocol-Version": "2.0.0"})
	if err == nil {
		l.personURN = "urn:li:person:" + id
		l.logger.Info("Retrieved LinkedIn person URN using v3 API")
		return l.personURN, nil
	}
	l.logger.WithError(err).Warn("v3 identity API failed, trying v2")

	id, err = l.fetchPersonID(ctx, "/v2/people/~", nil)
	if err != nil {
		l.logger.WithError(err).Error("Error retrieving LinkedIn person URN from both APIs")
		return "", apperrors.NewConfigError("token may lack required permissions", fmt.Errorf("%w: %v", ErrIdentityUnavailable, err))
	}
	l.personURN = "urn:li:person:" + id
	l.logger.Info("Retrieved LinkedIn person URN using v2 API")
	return l.personURN, nil
}

func (l *LinkedIn) fetchPersonID(ctx context.Context, path string, headers map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, identityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("identity lookup %s: unexpected status %s", path, resp.Status)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("identity lookup %s: %w", path, err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("identity lookup %s: person id not found in response", path)
	}
	return body.ID, nil
}

// Send publishes content as a public text share. Only 201 Created counts as success.
func (l *LinkedIn) Send(ctx context.Context, content string, _ []domain.Event) error {
	log := l.logger.WithField("length", len(content))
	log.WithField("preview", preview(content, 100)).Info("Preparing to post to LinkedIn")

	author, err := l.PersonURN(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(newShare(author, content))
	if err != nil {
		return fmt.Errorf("marshal share: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v2/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create share request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		log.WithError(err).Error("Network error posting to LinkedIn")
		return fmt.Errorf("post share: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.WithFields(logrus.Fields{"status": resp.StatusCode, "body": strings.TrimSpace(string(body))}).Error("LinkedIn API error")
		return fmt.Errorf("linkedin: unexpected status %s", resp.Status)
	}

	postID := resp.Header.Get("X-Restli-Id")
	if postID == "" {
		postID = "unknown"
	}
	log.WithField("post_id", postID).Info("Successfully posted to LinkedIn")
	return nil
}

type share struct {
	Author          string          `json:"author"`
	LifecycleState  string          `json:"lifecycleState"`
	SpecificContent specificContent `json:"specificContent"`
	Visibility      visibility      `json:"visibility"`
}

type specificContent struct {
	ShareContent shareContent `json:"com.linkedin.ugc.ShareContent"`
}

type shareContent struct {
	ShareCommentary    shareCommentary `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
}

type shareCommentary struct {
	Text string `json:"text"`
}

type visibility struct {
	MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
}

func newShare(author, text string) share {
	return share{
		Author:         author,
		LifecycleState: "PUBLISHED",
		SpecificContent: specificContent{
			ShareContent: shareContent{
				ShareCommentary:    shareCommentary{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: visibility{MemberNetworkVisibility: "PUBLIC"},
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
