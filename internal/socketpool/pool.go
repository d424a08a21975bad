package socketpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"streambox/internal/logging"
	"streambox/internal/metrics"
)

var log = logging.Component("socketpool")

// DefaultMountPath is where endpoints appear inside the sandbox.
const DefaultMountPath = "/out"

// EndpointExt is the file extension of every endpoint; the transcoder names
// its outputs "<index>.ts".
const EndpointExt = ".ts"

var (
	// ErrOverlap is returned when a new pool's host directory overlaps an
	// active pool.
	ErrOverlap = errors.New("socket pool overlaps an active pool")
	// ErrClosed is returned when using a closed pool.
	ErrClosed = errors.New("socket pool closed")
)

// registry tracks host directories of open pools.
var registry = struct {
	sync.Mutex
	dirs map[string]bool
}{dirs: make(map[string]bool)}

func register(dir string) error {
	registry.Lock()
	defer registry.Unlock()

	for active := range registry.dirs {
		if overlaps(active, dir) {
			return fmt.Errorf("%w: %s and %s", ErrOverlap, dir, active)
		}
	}
	registry.dirs[dir] = true
	return nil
}

func unregister(dir string) {
	registry.Lock()
	delete(registry.dirs, dir)
	registry.Unlock()
}

// overlaps reports whether a and b are the same directory or one contains
// the other.
func overlaps(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+string(filepath.Separator)) ||
		strings.HasPrefix(b, a+string(filepath.Separator))
}

// Handler consumes one segment stream from the endpoint with the given index.
type Handler func(endpoint int, r io.Reader) error

// Pool is a fixed set of listening sockets in a private host directory.
type Pool struct {
	dir       string
	mountPath string
	listeners []*net.UnixListener

	mu     sync.Mutex
	closed bool
}

// New creates a pool of size endpoints in a fresh directory under baseDir
// (os.TempDir if empty), to be mounted at mountPath inside the sandbox.
func New(baseDir, mountPath string, size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("socket pool size must be at least 1, got %d", size)
	}
	if mountPath == "" {
		mountPath = DefaultMountPath
	}
	if !filepath.IsAbs(mountPath) {
		return nil, fmt.Errorf("mount path %q must be absolute", mountPath)
	}
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	base, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve socket base directory: %w", err)
	}
	dir, err := os.MkdirTemp(base, "streambox-")
	if err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	if err := register(dir); err != nil {
		removeDir(dir)
		return nil, err
	}

	p := &Pool{
		dir:       dir,
		mountPath: filepath.Clean(mountPath),
	}

	for i := 0; i < size; i++ {
		addr := &net.UnixAddr{Name: filepath.Join(dir, endpointName(i)), Net: "unix"}
		l, err := net.ListenUnix("unix", addr)
		if err != nil {
			p.release()
			return nil, fmt.Errorf("failed to listen on %s: %w", addr.Name, err)
		}
		// Close removes the directory itself
		l.SetUnlinkOnClose(false)
		p.listeners = append(p.listeners, l)
	}

	metrics.SocketPoolsActive.Inc()
	log.Debug("created pool %s with %d endpoints mounted at %s", dir, size, p.mountPath)
	return p, nil
}

func endpointName(i int) string {
	return strconv.Itoa(i) + EndpointExt
}

// Dir returns the host directory holding the endpoints.
func (p *Pool) Dir() string {
	return p.dir
}

// MountPath returns the sandbox-visible directory of the endpoints.
func (p *Pool) MountPath() string {
	return p.mountPath
}

// Size returns the number of endpoints.
func (p *Pool) Size() int {
	return len(p.listeners)
}

// Endpoints returns the host paths of every endpoint.
func (p *Pool) Endpoints() []string {
	out := make([]string, len(p.listeners))
	for i := range p.listeners {
		out[i] = filepath.Join(p.dir, endpointName(i))
	}
	return out
}

// MountArgs returns the runtime flags binding the endpoints into the sandbox.
func (p *Pool) MountArgs() []string {
	return []string{"--volume=" + p.dir + ":" + p.mountPath + ":rw"}
}

// OutputURL returns the transcoder output template addressing the
// endpoints from inside the sandbox, e.g. "unix:///out/%d.ts".
func (p *Pool) OutputURL() string {
	return "unix://" + p.mountPath + "/%d" + EndpointExt
}

// Accept serves connections on every endpoint until ctx is done or the pool
// is closed. Connections on one endpoint are handled one at a time, in
// arrival order. A handler error is logged and does not stop the pool.
func (p *Pool) Accept(ctx context.Context, handle Handler) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	for _, l := range p.listeners {
		_ = l.SetDeadline(time.Time{})
	}
	p.mu.Unlock()

	// Wake blocked Accept calls without closing the listeners
	stop := context.AfterFunc(ctx, func() {
		for _, l := range p.listeners {
			_ = l.SetDeadline(time.Now())
		}
	})
	defer stop()

	var wg sync.WaitGroup
	errs := make(chan error, len(p.listeners))
	for i, l := range p.listeners {
		wg.Add(1)
		go func(i int, l *net.UnixListener) {
			defer wg.Done()
			if err := p.serve(ctx, i, l, handle); err != nil {
				errs <- err
			}
		}(i, l)
	}
	wg.Wait()
	close(errs)

	return <-errs
}

func (p *Pool) serve(ctx context.Context, index int, l *net.UnixListener, handle Handler) error {
	for {
		conn, err := l.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return fmt.Errorf("endpoint %d: %w", index, err)
		}

		herr := handle(index, conn)
		if cerr := conn.Close(); cerr != nil {
			log.Debug("failed to close connection on endpoint %d: %v", index, cerr)
		}
		if herr != nil {
			metrics.SocketConnectionsTotal.WithLabelValues("error").Inc()
			log.Warn("endpoint %d: %v", index, herr)
			continue
		}
		metrics.SocketConnectionsTotal.WithLabelValues("ok").Inc()
	}
}

// Close closes every endpoint and removes the host directory. It is safe to
// call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.release()
	metrics.SocketPoolsActive.Dec()
	log.Debug("closed pool %s", p.dir)
	return err
}

func (p *Pool) release() error {
	var errs []error
	for _, l := range p.listeners {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(p.dir); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove socket directory: %w", err))
	}
	unregister(p.dir)
	return errors.Join(errs...)
}

func removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Warn("failed to remove %s: %v", dir, err)
	}
}
