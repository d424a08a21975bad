package database

import (
	"context"
	"fmt"
	"time"

	"streambox/internal/logging"
	"streambox/internal/metrics"
	"streambox/internal/segment"
)

// AddSegment records a stored segment. It satisfies segment.Ledger.
func (d *Database) AddSegment(ctx context.Context, seg segment.Segment) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("add_segment", start, err) }()

	created := seg.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO segments (job_id, sequence, endpoint, name, path, size, hash, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, seg.JobID, seg.Sequence, seg.Endpoint, seg.Name, seg.Path, seg.Size, seg.Hash, seg.Duration, created.Unix())
	if err != nil {
		return fmt.Errorf("failed to add segment %d of job %s: %w", seg.Sequence, seg.JobID, err)
	}
	return nil
}

// ListSegments returns a job's segments in sequence order. An unknown job
// yields ErrNotFound; a known job with no segments yields an empty slice.
func (d *Database) ListSegments(ctx context.Context, jobID string) ([]segment.Segment, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_segments", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) > 0 FROM jobs WHERE id = ?`, jobID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT job_id, sequence, endpoint, name, path, size, hash, duration, created_at
		FROM segments WHERE job_id = ? ORDER BY sequence
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []segment.Segment{}
	for rows.Next() {
		var (
			seg     segment.Segment
			created int64
		)
		if err = rows.Scan(&seg.JobID, &seg.Sequence, &seg.Endpoint, &seg.Name, &seg.Path,
			&seg.Size, &seg.Hash, &seg.Duration, &created); err != nil {
			return nil, err
		}
		seg.CreatedAt = time.Unix(created, 0).UTC()
		segments = append(segments, seg)
	}
	err = rows.Err()
	return segments, err
}

// GetStats returns ledger totals. It satisfies metrics.StatsProvider, so
// errors are logged and yield zero values.
func (d *Database) GetStats() metrics.Stats {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var stats metrics.Stats
	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM jobs),
			(SELECT COUNT(*) FROM jobs WHERE state = ?),
			(SELECT COUNT(*) FROM segments),
			(SELECT COALESCE(SUM(size), 0) FROM segments)
	`, JobRunning).Scan(&stats.TotalJobs, &stats.RunningJobs, &stats.TotalSegments, &stats.TotalBytes)
	if err != nil {
		logging.Error("failed to collect ledger stats: %v", err)
		return metrics.Stats{}
	}
	return stats
}
