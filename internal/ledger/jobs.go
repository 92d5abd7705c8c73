package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Job is one processed segment in the history table.
type Job struct {
	ID         string
	RunID      string
	Key        string
	Outcome    string
	PlanSource string
	FPS        string
	Multiplier float64
	Delivered  bool
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Duration returns how long the job took.
func (j Job) Duration() time.Duration {
	if j.FinishedAt.Before(j.StartedAt) {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// RecordJob appends a job to the history table.
func (s *Store) RecordJob(ctx context.Context, job Job) error {
	if job.ID == "" {
		return errors.New("record job: empty id")
	}
	delivered := 0
	if job.Delivered {
		delivered = 1
	}
	if _, err := s.exec(ctx, `INSERT INTO jobs
		(id, run_id, key, outcome, plan_source, fps, multiplier, delivered, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.RunID, job.Key, job.Outcome, job.PlanSource, job.FPS, job.Multiplier, delivered,
		job.StartedAt.UTC().Format(timeLayout), job.FinishedAt.UTC().Format(timeLayout), job.Error,
	); err != nil {
		return fmt.Errorf("record job %s: %w", job.ID, err)
	}
	return nil
}

// Recent returns up to limit jobs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT
		id, run_id, key, outcome, plan_source, fps, multiplier, delivered, started_at, finished_at, error
		FROM jobs ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// OutcomeCounts returns the number of recorded jobs per outcome.
func (s *Store) OutcomeCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT outcome, COUNT(1) FROM jobs GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func scanJob(rows *sql.Rows) (Job, error) {
	var (
		job               Job
		delivered         int
		started, finished string
	)
	if err := rows.Scan(&job.ID, &job.RunID, &job.Key, &job.Outcome, &job.PlanSource, &job.FPS,
		&job.Multiplier, &delivered, &started, &finished, &job.Error); err != nil {
		return Job{}, fmt.Errorf("scan job: %w", err)
	}
	job.Delivered = delivered != 0
	job.StartedAt = parseTime(started)
	job.FinishedAt = parseTime(finished)
	return job, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
