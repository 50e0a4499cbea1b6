// ABOUTME: SQLite store methods for SearchJob persistence
// ABOUTME: Jobs are upserted on every transition so status queries survive restarts

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SaveJob inserts or replaces a job row. The job tracker owns transition
// legality; the store just persists whatever state it is handed.
func (s *SQLiteStore) SaveJob(ctx context.Context, job *SearchJob) error {
	var resultsJSON *string
	if len(job.Results) > 0 {
		data, err := json.Marshal(job.Results)
		if err != nil {
			return fmt.Errorf("marshaling job results: %w", err)
		}
		str := string(data)
		resultsJSON = &str
	}

	query := `
		INSERT INTO search_jobs (id, user_id, criteria, status, results_json, error_detail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			results_json = excluded.results_json,
			error_detail = excluded.error_detail,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.Criteria,
		job.Status,
		resultsJSON,
		job.ErrorDetail,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving job: %w", err)
	}
	return nil
}

const jobSelect = `
	SELECT id, user_id, criteria, status, results_json, error_detail, created_at, updated_at
	FROM search_jobs
`

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*SearchJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetLatestJob retrieves the most recently created job for a user.
func (s *SQLiteStore) GetLatestJob(ctx context.Context, userID string) (*SearchJob, error) {
	row := s.db.QueryRowContext(ctx,
		jobSelect+` WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListActiveJobs returns the user's jobs in non-terminal states.
func (s *SQLiteStore) ListActiveJobs(ctx context.Context, userID string) ([]*SearchJob, error) {
	query := jobSelect + `
		WHERE user_id = ?
		  AND status NOT IN ('completed', 'completed_with_warnings', 'failed', 'cancelled')
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying active jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*SearchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, nil
}

// scanJob scans a row into a SearchJob.
func scanJob(scanner interface{ Scan(dest ...any) error }) (*SearchJob, error) {
	var job SearchJob
	var statusStr string
	var resultsJSON *string

	if err := scanner.Scan(
		&job.ID,
		&job.UserID,
		&job.Criteria,
		&statusStr,
		&resultsJSON,
		&job.ErrorDetail,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.Status = JobStatus(statusStr)
	if resultsJSON != nil {
		if err := json.Unmarshal([]byte(*resultsJSON), &job.Results); err != nil {
			return nil, fmt.Errorf("unmarshaling job results: %w", err)
		}
	}
	return &job, nil
}
