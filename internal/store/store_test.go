package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalog-frontend/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStoreTest(t *testing.T) (*Store, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewStoreFromDB(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestRecordFailure(t *testing.T) {
	s, mock := setupStoreTest(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	expectedSQL := `INSERT INTO mutation_failures \(kind,product_id,status_code,detail,payload,occurred_at\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6\) RETURNING id`

	t.Run("stores the failure and sets its id", func(t *testing.T) {
		mock.ExpectQuery(expectedSQL).
			WithArgs(models.MutationUpdateProduct, "42", 500, "boom", `{"id":"42"}`, at).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

		f := &models.MutationFailure{
			Kind:       models.MutationUpdateProduct,
			ProductID:  "42",
			StatusCode: 500,
			Detail:     "boom",
			Payload:    `{"id":"42"}`,
			OccurredAt: at,
		}
		require.NoError(t, s.RecordFailure(context.Background(), f))
		assert.Equal(t, int64(7), f.ID)
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery(expectedSQL).
			WillReturnError(errors.New("database error"))

		err := s.RecordFailure(context.Background(), &models.MutationFailure{Kind: models.MutationDeleteProduct, OccurredAt: at})
		assert.ErrorContains(t, err, "database error")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentFailures(t *testing.T) {
	s, mock := setupStoreTest(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	expectedSQL := `SELECT id, kind, product_id, status_code, detail, payload, occurred_at FROM mutation_failures ORDER BY occurred_at DESC LIMIT 10`

	t.Run("newest first", func(t *testing.T) {
		mock.ExpectQuery(expectedSQL).
			WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "product_id", "status_code", "detail", "payload", "occurred_at"}).
				AddRow(int64(2), models.MutationCreateReview, "9", 0, "timeout", "", at.Add(time.Minute)).
				AddRow(int64(1), models.MutationCreateProduct, "", 400, "bad", "{}", at))

		failures, err := s.RecentFailures(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, failures, 2)
		assert.Equal(t, int64(2), failures[0].ID)
		assert.Equal(t, 400, failures[1].StatusCode)
	})

	t.Run("empty journal", func(t *testing.T) {
		mock.ExpectQuery(expectedSQL).
			WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "product_id", "status_code", "detail", "payload", "occurred_at"}))

		failures, err := s.RecentFailures(context.Background(), 10)
		require.NoError(t, err)
		assert.NotNil(t, failures)
		assert.Empty(t, failures)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentFailuresDefaultLimit(t *testing.T) {
	s, mock := setupStoreTest(t)

	mock.ExpectQuery(`FROM mutation_failures ORDER BY occurred_at DESC LIMIT 50`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.RecentFailures(context.Background(), 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
