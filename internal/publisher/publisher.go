// Package publisher delivers generated posts to LinkedIn or a relay webhook,
// optionally behind a file-based human review.
package publisher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
	"github.com/kurihiro0119/github-social-relay/internal/metrics"
	"github.com/kurihiro0119/github-social-relay/internal/storage"
)

// Sender is one delivery channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, content string, events []domain.Event) error
}

// Publisher runs a post through the optional review gate and then a Sender.
type Publisher struct {
	sender  Sender
	review  *ReviewGate
	history storage.Storage
	metrics *metrics.Collector
	logger  logrus.FieldLogger
	now     func() time.Time
}

// Deps lists the collaborators of a Publisher. Review, History and Metrics are optional.
type Deps struct {
	Sender  Sender
	Review  *ReviewGate
	History storage.Storage
	Metrics *metrics.Collector
	Logger  logrus.FieldLogger
}

// New creates a publisher.
func New(deps Deps) *Publisher {
	return &Publisher{
		sender:  deps.Sender,
		review:  deps.Review,
		history: deps.History,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Method names the configured delivery channel.
func (p *Publisher) Method() string {
	return p.sender.Name()
}

// Publish delivers content summarizing events of day bucket date ("" for
// ad-hoc posts). A nil error means the post went out.
func (p *Publisher) Publish(ctx context.Context, date, content string, events []domain.Event) error {
	log := p.logger.WithFields(logrus.Fields{"method": p.sender.Name(), "date": date})

	if p.review != nil {
		approved, err := p.review.Await(ctx, content, p.sender.Name())
		if err != nil {
			log.WithError(err).Warn("Post was not approved")
			p.record(ctx, date, content, events, err)
			return err
		}
		content = approved
	} else {
		log.Info("Post review disabled, posting directly")
	}

	err := p.sender.Send(ctx, content, events)
	if err != nil {
		log.WithError(err).Error("Publish failed")
	}
	p.record(ctx, date, content, events, err)
	return err
}

func (p *Publisher) record(ctx context.Context, date, content string, events []domain.Event, sendErr error) {
	p.metrics.Post(p.sender.Name(), sendErr == nil)
	if p.history == nil {
		return
	}

	rec := &domain.PostRecord{
		ID:         uuid.New().String(),
		Date:       date,
		Method:     p.sender.Name(),
		Content:    content,
		EventCount: len(events),
		Success:    sendErr == nil,
		CreatedAt:  p.now(),
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	if err := p.history.SavePost(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.WithError(err).Warn("Failed to record post history")
	}
}
