package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"streambox/internal/segment"
)

func setupTestDB(t testing.TB) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createTestJob(t *testing.T, db *Database) *Job {
	t.Helper()

	job, err := db.CreateJob(context.Background(), JobSpec{
		Image:       "docker.io/linuxserver/ffmpeg@sha256:" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		Args:        []string{"-i", "input.mp4", "-c", "copy"},
		SegmentTime: 4,
	})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	return job
}

func TestNewDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q", db.Path())
	}
}

func TestNewDatabaseReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	job, err := db.CreateJob(ctx, JobSpec{Image: "img", SegmentTime: 2})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	db.Close()

	db, err = New(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	if _, err := db.GetJob(ctx, job.ID); err != nil {
		t.Errorf("GetJob() after reopen error = %v", err)
	}
}

func TestNewDatabaseMissingDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "ledger.db")
	if _, err := New(context.Background(), dbPath); err == nil {
		t.Error("New() should fail when the directory does not exist")
	}
}

func TestCreateAndGetJob(t *testing.T) {
	db := setupTestDB(t)
	job := createTestJob(t, db)

	if job.ID == "" || job.State != JobRunning {
		t.Fatalf("CreateJob() = %+v", job)
	}

	got, err := db.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Image != job.Image || got.SegmentTime != 4 || got.AllowNetworking {
		t.Errorf("GetJob() = %+v", got)
	}
	if len(got.Args) != 4 || got.Args[1] != "input.mp4" {
		t.Errorf("Args = %v", got.Args)
	}
	if got.ExitCode != nil || got.FinishedAt != nil {
		t.Error("running job should have no exit code or finish time")
	}
	if !got.StartedAt.Equal(job.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, job.StartedAt)
	}
}

func TestGetJobNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetJob(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob() error = %v, want ErrNotFound", err)
	}
}

func TestFinishJob(t *testing.T) {
	db := setupTestDB(t)
	job := createTestJob(t, db)
	ctx := context.Background()

	err := db.FinishJob(ctx, job.ID, JobResult{State: JobKilled, ExitCode: -1, Signal: "terminated", Location: "/video"})
	if err != nil {
		t.Fatalf("FinishJob() error = %v", err)
	}

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.State != JobKilled || got.Signal != "terminated" || got.Location != "/video" {
		t.Errorf("finished job = %+v", got)
	}
	if got.ExitCode == nil || *got.ExitCode != -1 {
		t.Errorf("ExitCode = %v", got.ExitCode)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}

	if err := db.FinishJob(ctx, job.ID, JobResult{State: JobExited}); !errors.Is(err, ErrNotFound) {
		t.Errorf("second FinishJob() error = %v, want ErrNotFound", err)
	}
}

func TestFinishJobRejectsRunningState(t *testing.T) {
	db := setupTestDB(t)
	job := createTestJob(t, db)

	for _, state := range []string{"", JobRunning} {
		if err := db.FinishJob(context.Background(), job.ID, JobResult{State: state}); err == nil {
			t.Errorf("FinishJob(state=%q) should fail", state)
		}
	}
}

func TestListJobs(t *testing.T) {
	db := setupTestDB(t)
	first := createTestJob(t, db)
	second := createTestJob(t, db)

	jobs, err := db.ListJobs(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("ListJobs() returned %d jobs", len(jobs))
	}
	if jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Error("ListJobs() should return the newest job first")
	}

	jobs, err = db.ListJobs(context.Background(), 1)
	if err != nil || len(jobs) != 1 {
		t.Errorf("ListJobs(1) = %d jobs, err %v", len(jobs), err)
	}
}

func TestSegments(t *testing.T) {
	db := setupTestDB(t)
	job := createTestJob(t, db)
	ctx := context.Background()

	for i := int64(2); i >= 0; i-- {
		seg := segment.Segment{
			JobID:     job.ID,
			Sequence:  i,
			Name:      segment.FileName(i),
			Path:      "/video/" + segment.FileName(i),
			Size:      1000 + i,
			Hash:      segment.Hash([]byte{byte(i)}),
			Duration:  4,
			CreatedAt: time.Now(),
		}
		if err := db.AddSegment(ctx, seg); err != nil {
			t.Fatalf("AddSegment(%d) error = %v", i, err)
		}
	}

	segs, err := db.ListSegments(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListSegments() error = %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("ListSegments() returned %d segments", len(segs))
	}
	for i, seg := range segs {
		if seg.Sequence != int64(i) {
			t.Errorf("segs[%d].Sequence = %d", i, seg.Sequence)
		}
		if seg.Hash != segment.Hash([]byte{byte(i)}) {
			t.Errorf("segs[%d].Hash = %s", i, seg.Hash)
		}
	}

	dup := segs[0]
	if err := db.AddSegment(ctx, dup); err == nil {
		t.Error("duplicate (job, sequence) should be rejected")
	}
}

func TestAddSegmentUnknownJob(t *testing.T) {
	db := setupTestDB(t)

	err := db.AddSegment(context.Background(), segment.Segment{JobID: "ghost", Name: "0.ts", Hash: "blake3:00"})
	if err == nil {
		t.Error("AddSegment() should fail for an unknown job")
	}
}

func TestListSegmentsEmptyAndMissing(t *testing.T) {
	db := setupTestDB(t)
	job := createTestJob(t, db)
	ctx := context.Background()

	segs, err := db.ListSegments(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListSegments() error = %v", err)
	}
	if segs == nil || len(segs) != 0 {
		t.Errorf("ListSegments() = %v, want empty slice", segs)
	}

	if _, err := db.ListSegments(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListSegments(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestGetStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	running := createTestJob(t, db)
	done := createTestJob(t, db)
	if err := db.FinishJob(ctx, done.ID, JobResult{State: JobExited}); err != nil {
		t.Fatal(err)
	}
	for i := int64(0); i < 2; i++ {
		if err := db.AddSegment(ctx, segment.Segment{
			JobID: running.ID, Sequence: i, Name: segment.FileName(i), Size: 100, Hash: "blake3:00", Duration: 4,
		}); err != nil {
			t.Fatal(err)
		}
	}

	stats := db.GetStats()
	if stats.TotalJobs != 2 || stats.RunningJobs != 1 {
		t.Errorf("job stats = %+v", stats)
	}
	if stats.TotalSegments != 2 || stats.TotalBytes != 200 {
		t.Errorf("segment stats = %+v", stats)
	}
}
