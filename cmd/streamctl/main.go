package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"streambox/internal/database"
	"streambox/internal/segment"
	"streambox/internal/workers"
)

const (
	defaultTimeout = 30 * time.Second
	defaultDataDir = "/var/lib/streambox"
	jobsLimit      = 50
	maxWorkers     = 8
)

// printer writes rows either as an aligned table or as JSON lines.
type printer struct {
	out   io.Writer
	table bool
}

func newPrinter(f *os.File) printer {
	return printer{out: f, table: term.IsTerminal(int(f.Fd()))}
}

func (p printer) rows(header []string, items []any, cells func(any) []string) error {
	if !p.table {
		enc := json.NewEncoder(p.out)
		for _, it := range items {
			if err := enc.Encode(it); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, it := range items {
		fmt.Fprintln(tw, strings.Join(cells(it), "\t"))
	}
	return tw.Flush()
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	db, err := database.New(ctx, filepath.Join(dataDir, "streambox.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open ledger: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATA_DIR is set correctly (current: %s)\n", dataDir)
		os.Exit(1)
	}

	code := runCommand(ctx, db, newPrinter(os.Stdout), os.Args[1:])
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close ledger: %v\n", err)
	}
	os.Exit(code)
}

func runCommand(ctx context.Context, db *database.Database, p printer, args []string) int {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var err error
	switch args[0] {
	case "jobs":
		err = listJobs(ctx, db, p)
	case "segments", "verify":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Error: %s needs a job ID\n", args[0])
			return 1
		}
		if args[0] == "segments" {
			err = listSegments(ctx, db, p, args[1])
			break
		}
		var bad int
		bad, err = verifyJob(ctx, db, p, args[1])
		if err == nil && bad > 0 {
			fmt.Fprintf(os.Stderr, "%d segment(s) failed verification\n", bad)
			return 1
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(args[0])) //nolint:gosec // only [a-zA-Z0-9_-] pass sanitizeCommand
		printUsage()
		return 1
	}

	if errors.Is(err, database.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error: no such job: %s\n", sanitizeCommand(args[1]))
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// sanitizeCommand replaces every character outside [a-zA-Z0-9_-] with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage() {
	fmt.Println("streambox ledger tool")
	fmt.Println("")
	fmt.Println("Usage: streamctl <command> [job]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  jobs            - List recent jobs")
	fmt.Println("  segments <job>  - List a job's segments")
	fmt.Println("  verify <job>    - Check segment files against the ledger")
	fmt.Println("")
	fmt.Println("Environment:")
	fmt.Printf("  DATA_DIR - Directory holding streambox.db (default: %s)\n", defaultDataDir)
}

func listJobs(ctx context.Context, db *database.Database, p printer) error {
	jobs, err := db.ListJobs(ctx, jobsLimit)
	if err != nil {
		return err
	}
	items := make([]any, len(jobs))
	for i := range jobs {
		items[i] = jobs[i]
	}
	return p.rows([]string{"ID", "STATE", "EXIT", "STARTED", "IMAGE"}, items, func(it any) []string {
		j := it.(database.Job)
		exit := "-"
		switch {
		case j.Signal != "":
			exit = j.Signal
		case j.ExitCode != nil:
			exit = fmt.Sprint(*j.ExitCode)
		}
		return []string{j.ID, j.State, exit, j.StartedAt.Local().Format(time.DateTime), j.Image}
	})
}

func listSegments(ctx context.Context, db *database.Database, p printer, jobID string) error {
	segs, err := db.ListSegments(ctx, jobID)
	if err != nil {
		return err
	}
	items := make([]any, len(segs))
	for i := range segs {
		items[i] = segs[i]
	}
	return p.rows([]string{"SEQ", "NAME", "SIZE", "HASH"}, items, func(it any) []string {
		s := it.(segment.Segment)
		return []string{fmt.Sprint(s.Sequence), s.Name, fmt.Sprint(s.Size), s.Hash}
	})
}

// verifyResult is the outcome of checking one segment file.
type verifyResult struct {
	Sequence int64  `json:"sequence"`
	Path     string `json:"path"`
	OK       bool   `json:"ok"`
	Problem  string `json:"problem,omitempty"`
}

func verifySegment(seg segment.Segment) verifyResult {
	res := verifyResult{Sequence: seg.Sequence, Path: seg.Path}
	data, err := os.ReadFile(seg.Path)
	switch {
	case err != nil:
		res.Problem = err.Error()
	case int64(len(data)) != seg.Size:
		res.Problem = fmt.Sprintf("size %d, ledger has %d", len(data), seg.Size)
	case segment.Hash(data) != seg.Hash:
		res.Problem = "hash mismatch"
	default:
		res.OK = true
	}
	return res
}

// verifyJob checks every segment of jobID and returns how many failed.
func verifyJob(ctx context.Context, db *database.Database, p printer, jobID string) (int, error) {
	segs, err := db.ListSegments(ctx, jobID)
	if err != nil {
		return 0, err
	}

	results := make([]verifyResult, len(segs))
	next := make(chan int)
	var wg sync.WaitGroup
	for range workers.ForIO(maxWorkers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				results[i] = verifySegment(segs[i])
			}
		}()
	}
feed:
	for i := range segs {
		select {
		case next <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(next)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	bad := 0
	items := make([]any, len(results))
	for i, r := range results {
		if !r.OK {
			bad++
		}
		items[i] = r
	}
	err = p.rows([]string{"SEQ", "RESULT", "PATH"}, items, func(it any) []string {
		r := it.(verifyResult)
		status := "ok"
		if !r.OK {
			status = r.Problem
		}
		return []string{fmt.Sprint(r.Sequence), status, r.Path}
	})
	return bad, err
}
