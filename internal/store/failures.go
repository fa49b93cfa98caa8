package store

import (
	"context"
	"fmt"

	"catalog-frontend/internal/models"
)

const defaultFailureLimit = 50

var failureColumns = []string{"id", "kind", "product_id", "status_code", "detail", "payload", "occurred_at"}

// RecordFailure appends a failure to the journal and sets its ID
func (s *Store) RecordFailure(ctx context.Context, failure *models.MutationFailure) error {
	query := s.sq.
		Insert("mutation_failures").
		Columns("kind", "product_id", "status_code", "detail", "payload", "occurred_at").
		Values(failure.Kind, failure.ProductID, failure.StatusCode, failure.Detail, failure.Payload, failure.OccurredAt).
		Suffix("RETURNING id")

	qsql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if err := s.db.QueryRowxContext(ctx, qsql, args...).Scan(&failure.ID); err != nil {
		return fmt.Errorf("failed to record mutation failure: %w", err)
	}
	return nil
}

// RecentFailures returns the latest journal entries, newest first
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]models.MutationFailure, error) {
	if limit <= 0 {
		limit = defaultFailureLimit
	}

	query := s.sq.
		Select(failureColumns...).
		From("mutation_failures").
		OrderBy("occurred_at DESC").
		Limit(uint64(limit))

	qsql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	failures := []models.MutationFailure{}
	if err := s.db.SelectContext(ctx, &failures, qsql, args...); err != nil {
		return nil, fmt.Errorf("failed to list mutation failures: %w", err)
	}
	return failures, nil
}
