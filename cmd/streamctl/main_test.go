package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"streambox/internal/database"
	"streambox/internal/segment"
)

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close database: %v", err)
		}
	})
	return db
}

// seedJob records a job and receives one segment per payload through a
// directory sink under root, returning the job ID and its directory.
func seedJob(t *testing.T, db *database.Database, root string, payloads ...string) (string, string) {
	t.Helper()
	ctx := context.Background()

	job, err := db.CreateJob(ctx, database.JobSpec{
		Image:       "example.com/ffmpeg@sha256:" + strings.Repeat("a", 64),
		Args:        []string{"-i", "in.mp4"},
		SegmentTime: 4,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	sink, err := segment.NewDirectorySink(job.ID, segment.DirectoryConfig{Dir: root, Ledger: db})
	if err != nil {
		t.Fatalf("NewDirectorySink: %v", err)
	}
	rcv := segment.NewReceiver(job.ID, segment.Bounds{}, 4, sink)
	for _, p := range payloads {
		if err := rcv.Receive(ctx, 0, strings.NewReader(p)); err != nil {
			t.Fatalf("Receive: %v", err)
		}
	}
	return job.ID, sink.Dir()
}

func decodeLines[T any](t *testing.T, out string) []T {
	t.Helper()
	var items []T
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var v T
		if err := dec.Decode(&v); err != nil {
			t.Fatalf("decode %q: %v", out, err)
		}
		items = append(items, v)
	}
	return items
}

func TestSanitizeCommand(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"jobs", "jobs"},
		{"verify-all_2", "verify-all_2"},
		{"rm -rf /", "rm_-rf__"},
		{"\x1b[31mred", "__31mred"},
	}
	for _, tt := range tests {
		if got := sanitizeCommand(tt.in); got != tt.want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListJobsJSON(t *testing.T) {
	db := setupTestDB(t)
	id, _ := seedJob(t, db, t.TempDir())

	var buf bytes.Buffer
	if err := listJobs(context.Background(), db, printer{out: &buf}); err != nil {
		t.Fatalf("listJobs: %v", err)
	}

	jobs := decodeLines[database.Job](t, buf.String())
	if len(jobs) != 1 || jobs[0].ID != id {
		t.Fatalf("got %+v, want one job %s", jobs, id)
	}
	if jobs[0].State != database.JobRunning {
		t.Errorf("State = %q, want %q", jobs[0].State, database.JobRunning)
	}
}

func TestListJobsTable(t *testing.T) {
	db := setupTestDB(t)
	id, _ := seedJob(t, db, t.TempDir())
	if err := db.FinishJob(context.Background(), id, database.JobResult{State: database.JobKilled, ExitCode: -1, Signal: "terminated"}); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}

	var buf bytes.Buffer
	if err := listJobs(context.Background(), db, printer{out: &buf, table: true}); err != nil {
		t.Fatalf("listJobs: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ID", "STATE", id, "killed", "terminated"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestListSegments(t *testing.T) {
	db := setupTestDB(t)
	id, _ := seedJob(t, db, t.TempDir(), "first", "second")

	var buf bytes.Buffer
	if err := listSegments(context.Background(), db, printer{out: &buf}, id); err != nil {
		t.Fatalf("listSegments: %v", err)
	}

	segs := decodeLines[segment.Segment](t, buf.String())
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	for i, s := range segs {
		if s.Sequence != int64(i) || s.Name != segment.FileName(int64(i)) {
			t.Errorf("segment %d = %+v", i, s)
		}
	}
}

func TestVerifyJob(t *testing.T) {
	db := setupTestDB(t)
	id, dir := seedJob(t, db, t.TempDir(), "zero", "one", "two")

	var buf bytes.Buffer
	bad, err := verifyJob(context.Background(), db, printer{out: &buf}, id)
	if err != nil {
		t.Fatalf("verifyJob: %v", err)
	}
	if bad != 0 {
		t.Fatalf("bad = %d on untouched files:\n%s", bad, buf.String())
	}

	if err := os.WriteFile(filepath.Join(dir, segment.FileName(1)), []byte("ONE"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, segment.FileName(2))); err != nil {
		t.Fatal(err)
	}

	buf.Reset()
	bad, err = verifyJob(context.Background(), db, printer{out: &buf}, id)
	if err != nil {
		t.Fatalf("verifyJob: %v", err)
	}
	if bad != 2 {
		t.Fatalf("bad = %d, want 2", bad)
	}

	results := decodeLines[verifyResult](t, buf.String())
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].OK {
		t.Errorf("segment 0 failed: %s", results[0].Problem)
	}
	if results[1].OK || results[1].Problem != "hash mismatch" {
		t.Errorf("segment 1 = %+v, want hash mismatch", results[1])
	}
	if results[2].OK || results[2].Problem == "" {
		t.Errorf("segment 2 = %+v, want a missing-file problem", results[2])
	}
}

func TestVerifyJobAfterLaterJob(t *testing.T) {
	db := setupTestDB(t)
	root := t.TempDir()
	first, _ := seedJob(t, db, root, "first job segment")
	seedJob(t, db, root, "second job segment")

	var buf bytes.Buffer
	bad, err := verifyJob(context.Background(), db, printer{out: &buf}, first)
	if err != nil {
		t.Fatalf("verifyJob: %v", err)
	}
	if bad != 0 {
		t.Errorf("first job has %d bad segments after a second job ran:\n%s", bad, buf.String())
	}
}

func TestVerifySegmentSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.ts")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := verifySegment(segment.Segment{Path: path, Size: 4, Hash: segment.Hash([]byte("abc"))})
	if res.OK || !strings.Contains(res.Problem, "size 3") {
		t.Errorf("got %+v, want size mismatch", res)
	}
}

func TestRunCommand(t *testing.T) {
	db := setupTestDB(t)
	id, _ := seedJob(t, db, t.TempDir(), "payload")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"jobs", []string{"jobs"}, 0},
		{"segments", []string{"segments", id}, 0},
		{"verify", []string{"verify", id}, 0},
		{"segments without job", []string{"segments"}, 1},
		{"unknown job", []string{"verify", "no-such-job"}, 1},
		{"unknown command", []string{"reset"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := runCommand(context.Background(), db, printer{out: &buf}, tt.args); got != tt.want {
				t.Errorf("runCommand(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestPrintUsage(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("printUsage panicked: %v", r)
		}
	}()

	printUsage()
}
