package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (Job, error) {
	var item Job
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, state, filename, log, created_at, updated_at
		FROM jobs WHERE id=$1
	`, jobID).Scan(&item.ID, &item.UserID, &item.State, &item.Filename, &item.Log, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Job{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, userID string) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, state, filename, log, created_at, updated_at
		FROM jobs
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	items := make([]Job, 0)
	for rows.Next() {
		var item Job
		if err := rows.Scan(&item.ID, &item.UserID, &item.State, &item.Filename, &item.Log, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertJob(ctx context.Context, item Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, state, filename)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.UserID, item.State, item.Filename)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, jobID string, state JobState, logText string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state=$2, log=$3, updated_at=NOW() WHERE id=$1
	`, jobID, state, logText)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}
