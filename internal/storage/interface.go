package storage

import (
	"context"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
)

// Storage is the abstract interface for the post-history store
type Storage interface {
	// SavePost records one publish attempt
	SavePost(ctx context.Context, post *domain.PostRecord) error

	// ListPosts returns the most recent attempts, newest first
	ListPosts(ctx context.Context, limit int) ([]*domain.PostRecord, error)

	// LastSuccessfulPost returns the newest successful post for a day bucket
	LastSuccessfulPost(ctx context.Context, date string) (*domain.PostRecord, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
