package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job states stored in the ledger. Terminal states mirror the sandbox
// handle states.
const (
	JobRunning = "running"
	JobExited  = "exited"
	JobKilled  = "killed"
	JobIOError = "io_error"
	JobFailed  = "failed"
)

// JobSpec describes a transcode job at creation time.
type JobSpec struct {
	Image           string
	Args            []string
	SegmentTime     float64
	AllowNetworking bool
}

// JobResult is how a job ended.
type JobResult struct {
	State    string
	ExitCode int
	Signal   string
	Location string
}

// Job is a ledger row.
type Job struct {
	ID              string     `json:"id"`
	Image           string     `json:"image"`
	Args            []string   `json:"args"`
	SegmentTime     float64    `json:"segmentTime"`
	AllowNetworking bool       `json:"allowNetworking"`
	State           string     `json:"state"`
	ExitCode        *int       `json:"exitCode,omitempty"`
	Signal          string     `json:"signal,omitempty"`
	Location        string     `json:"location,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// CreateJob records a new running job and returns it with a fresh ID.
func (d *Database) CreateJob(ctx context.Context, spec JobSpec) (*Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_job", start, err) }()

	args := spec.Args
	if args == nil {
		args = []string{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job args: %w", err)
	}

	job := &Job{
		ID:              uuid.NewString(),
		Image:           spec.Image,
		Args:            args,
		SegmentTime:     spec.SegmentTime,
		AllowNetworking: spec.AllowNetworking,
		State:           JobRunning,
		StartedAt:       time.Now().UTC().Truncate(time.Second),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO jobs (id, image, args, segment_time, allow_networking, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Image, string(encoded), job.SegmentTime, job.AllowNetworking, job.State, job.StartedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// FinishJob stores the outcome of a job. Finishing a job twice is an error.
func (d *Database) FinishJob(ctx context.Context, id string, result JobResult) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("finish_job", start, err) }()

	if result.State == "" || result.State == JobRunning {
		err = fmt.Errorf("invalid terminal state %q", result.State)
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, exit_code = ?, exit_signal = ?, location = ?, finished_at = strftime('%s', 'now')
		WHERE id = ? AND state = ?
	`, result.State, result.ExitCode, result.Signal, result.Location, id, JobRunning)
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("job %s: %w or already finished", id, ErrNotFound)
		return err
	}
	return nil
}

// GetJob returns a job by ID.
func (d *Database) GetJob(ctx context.Context, id string) (*Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_job", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT id, image, args, segment_time, allow_networking, state, exit_code, exit_signal, location, started_at, finished_at
		FROM jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("job %s: %w", id, ErrNotFound)
		return nil, err
	}
	return job, err
}

// ListJobs returns the most recent jobs first.
func (d *Database) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_jobs", start, err) }()

	if limit <= 0 {
		limit = 100
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, image, args, segment_time, allow_networking, state, exit_code, exit_signal, location, started_at, finished_at
		FROM jobs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		var job *Job
		job, err = scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	err = rows.Err()
	return jobs, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		job       Job
		args      string
		exitCode  sql.NullInt64
		startedAt int64
		finished  sql.NullInt64
	)
	if err := s.Scan(&job.ID, &job.Image, &args, &job.SegmentTime, &job.AllowNetworking,
		&job.State, &exitCode, &job.Signal, &job.Location, &startedAt, &finished); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(args), &job.Args); err != nil {
		return nil, fmt.Errorf("job %s: corrupt args: %w", job.ID, err)
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		job.ExitCode = &code
	}
	job.StartedAt = time.Unix(startedAt, 0).UTC()
	if finished.Valid {
		t := time.Unix(finished.Int64, 0).UTC()
		job.FinishedAt = &t
	}
	return &job, nil
}
