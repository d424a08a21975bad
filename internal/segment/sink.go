package segment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"streambox/internal/metrics"
	"streambox/internal/playlist"
)

// Ledger records stored segments.
type Ledger interface {
	AddSegment(ctx context.Context, seg Segment) error
}

// Publisher pushes an HLS directory somewhere players can reach it and
// returns the resulting locator (a URL or content address).
type Publisher interface {
	Publish(ctx context.Context, dir string) (string, error)
}

// DirectoryConfig configures a DirectorySink.
type DirectoryConfig struct {
	// Dir is the root output directory and must exist. Each sink writes
	// into its own subdirectory named after the job.
	Dir              string
	PlaylistFilename string
	// PublishInterval is the minimum time between publishes. Zero
	// disables the periodic loop; Finish still publishes once.
	PublishInterval time.Duration
	Ledger          Ledger
	Publisher       Publisher
}

// DirectorySink writes segments into an HLS directory, records them in a
// ledger and keeps the playlist current.
type DirectorySink struct {
	cfg      DirectoryConfig
	dir      string
	playlist *playlist.Writer

	mu       sync.Mutex
	dirty    bool
	location string
}

// NewDirectorySink creates cfg.Dir/name and returns a sink writing into it.
// The job directory must not exist yet, so segment files of different jobs
// never share a directory.
func NewDirectorySink(name string, cfg DirectoryConfig) (*DirectorySink, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid job directory name %q", name)
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat segment directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("segment directory %s is not a directory", cfg.Dir)
	}
	if cfg.PlaylistFilename == "" {
		cfg.PlaylistFilename = playlist.DefaultFilename
	}

	dir := filepath.Join(cfg.Dir, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}
	return &DirectorySink{
		cfg:      cfg,
		dir:      dir,
		playlist: playlist.NewWriter(name),
	}, nil
}

// Dir returns the job directory the sink writes into.
func (s *DirectorySink) Dir() string {
	return s.dir
}

// Playlist returns the sink's playlist writer.
func (s *DirectorySink) Playlist() *playlist.Writer {
	return s.playlist
}

// Location returns the locator from the last successful publish.
func (s *DirectorySink) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

// Store implements Sink.
func (s *DirectorySink) Store(ctx context.Context, seg Segment, data []byte) error {
	seg.Path = filepath.Join(s.dir, seg.Name)
	if err := writeAtomic(s.dir, seg.Name, data); err != nil {
		return err
	}

	if s.cfg.Ledger != nil {
		if err := s.cfg.Ledger.AddSegment(ctx, seg); err != nil {
			return fmt.Errorf("failed to record segment: %w", err)
		}
	}

	if err := s.playlist.Add(playlist.Entry{
		URI:      seg.Name,
		Duration: seg.Duration,
		Sequence: seg.Sequence,
	}); err != nil {
		return err
	}
	if err := s.playlist.WriteFile(s.dir, s.cfg.PlaylistFilename); err != nil {
		return err
	}

	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// Run publishes the directory every PublishInterval while new segments
// arrive, until ctx is done.
func (s *DirectorySink) Run(ctx context.Context) {
	if s.cfg.Publisher == nil || s.cfg.PublishInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.publishIfDirty(ctx); err != nil {
				log.Warn("publish failed: %v", err)
			}
		}
	}
}

// Finish closes the playlist, rewrites it with an end tag and publishes
// the final directory.
func (s *DirectorySink) Finish(ctx context.Context) (string, error) {
	s.playlist.Finish()
	if err := s.playlist.WriteFile(s.dir, s.cfg.PlaylistFilename); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()

	return s.publishIfDirty(ctx)
}

func (s *DirectorySink) publishIfDirty(ctx context.Context) (string, error) {
	if s.cfg.Publisher == nil {
		return "", nil
	}

	s.mu.Lock()
	if !s.dirty {
		loc := s.location
		s.mu.Unlock()
		return loc, nil
	}
	s.dirty = false
	s.mu.Unlock()

	loc, err := s.cfg.Publisher.Publish(ctx, s.dir)
	if err != nil {
		metrics.PublishesTotal.WithLabelValues("error").Inc()
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return "", fmt.Errorf("failed to publish %s: %w", s.dir, err)
	}
	metrics.PublishesTotal.WithLabelValues("success").Inc()

	s.mu.Lock()
	s.location = loc
	s.mu.Unlock()

	log.Info("published %s as %s", s.dir, loc)
	return loc, nil
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary segment: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write segment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close segment: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set segment permissions: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to store segment %s: %w", name, err)
	}
	return nil
}

// URLPublisher publishes a directory that is already served over HTTP: it
// checks the playlist exists and returns its URL. It stands in for a
// content-addressed publisher when none is configured.
type URLPublisher struct {
	// BaseURL is where the parent of each job directory is served,
	// e.g. "http://host:8080/video".
	BaseURL          string
	PlaylistFilename string
}

// Publish implements Publisher.
func (p URLPublisher) Publish(_ context.Context, dir string) (string, error) {
	name := p.PlaylistFilename
	if name == "" {
		name = playlist.DefaultFilename
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("playlist not ready: %w", err)
	}
	return strings.TrimSuffix(p.BaseURL, "/") + "/" + filepath.Base(dir) + "/" + name, nil
}
