package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
	apperrors "github.com/kurihiro0119/github-social-relay/internal/errors"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS posts").WillReturnResult(sqlmock.NewResult(0, 0))
	return db, mock
}

func TestPostgresSavePost(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store, err := newWithDB(db)
	require.NoError(t, err)

	created := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO posts").
		WithArgs("id-1", "2024-05-01", "linkedin", "hello", 3, true, "", created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.SavePost(context.Background(), &domain.PostRecord{
		ID: "id-1", Date: "2024-05-01", Method: "linkedin", Content: "hello",
		EventCount: 3, Success: true, CreatedAt: created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListPosts(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store, err := newWithDB(db)
	require.NoError(t, err)

	created := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "date", "method", "content", "event_count", "success", "error", "created_at"}).
		AddRow("id-2", "2024-05-01", "relay", "later", 1, false, "status 502", created.Add(time.Hour)).
		AddRow("id-1", "2024-05-01", "relay", "earlier", 1, true, "", created)
	mock.ExpectQuery("SELECT id, date, method").WithArgs(20).WillReturnRows(rows)

	posts, err := store.ListPosts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "id-2", posts[0].ID)
	assert.Equal(t, "status 502", posts[0].Error)
	assert.True(t, posts[1].Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLastSuccessfulPostNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store, err := newWithDB(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, date, method").WithArgs("2024-05-02").WillReturnError(sql.ErrNoRows)

	_, err = store.LastSuccessfulPost(context.Background(), "2024-05-02")
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
