package postgres

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
	apperrors "github.com/kurihiro0119/github-social-relay/internal/errors"
	"github.com/kurihiro0119/github-social-relay/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return newWithDB(db)
}

func newWithDB(db *sql.DB) (storage.Storage, error) {
	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL,
		content TEXT NOT NULL,
		event_count INTEGER NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_posts_date ON posts(date);
	CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SavePost records one publish attempt
func (s *postgresStorage) SavePost(ctx context.Context, post *domain.PostRecord) error {
	query := `
		INSERT INTO posts (id, date, method, content, event_count, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			success = EXCLUDED.success,
			error = EXCLUDED.error
	`
	_, err := s.db.ExecContext(ctx, query,
		post.ID,
		post.Date,
		post.Method,
		post.Content,
		post.EventCount,
		post.Success,
		post.Error,
		post.CreatedAt,
	)
	return err
}

// ListPosts returns the most recent attempts, newest first
func (s *postgresStorage) ListPosts(ctx context.Context, limit int) ([]*domain.PostRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, date, method, content, event_count, success, error, created_at
		FROM posts
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*domain.PostRecord
	for rows.Next() {
		var p domain.PostRecord
		if err := rows.Scan(&p.ID, &p.Date, &p.Method, &p.Content, &p.EventCount, &p.Success, &p.Error, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, &p)
	}

	return posts, rows.Err()
}

// LastSuccessfulPost returns the newest successful post for a day bucket
func (s *postgresStorage) LastSuccessfulPost(ctx context.Context, date string) (*domain.PostRecord, error) {
	query := `
		SELECT id, date, method, content, event_count, success, error, created_at
		FROM posts
		WHERE date = $1 AND success = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`
	var p domain.PostRecord
	err := s.db.QueryRowContext(ctx, query, date).
		Scan(&p.ID, &p.Date, &p.Method, &p.Content, &p.EventCount, &p.Success, &p.Error, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("post for " + date)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
