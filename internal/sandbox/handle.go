package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"streambox/internal/metrics"
)

// State is the lifecycle state of a sandboxed process.
type State int

const (
	// Running until the process is reaped.
	Running State = iota
	// Exited on its own, with any exit code.
	Exited
	// Killed after Kill or Close was called.
	Killed
	// IOError means waiting on the process failed.
	IOError
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Killed:
		return "killed"
	case IOError:
		return "io_error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ExitStatus describes how a sandboxed process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 if the process was terminated by a signal.
	Code int
	// Signal names the terminating signal, if any.
	Signal string
}

// Success reports a zero exit code.
func (e ExitStatus) Success() bool {
	return e.Code == 0 && e.Signal == ""
}

func (e ExitStatus) String() string {
	if e.Signal != "" {
		return "signal: " + e.Signal
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

// removeTimeout bounds a forced container removal.
const removeTimeout = 30 * time.Second

// Handle owns one spawned sandbox process.
//
// The process is the runtime client. The container itself and its network
// helper run outside the client's process group, so escalation removes the
// container through the runtime before the group is killed.
type Handle struct {
	cmd        *exec.Cmd
	invocation string
	container  string
	grace      time.Duration
	started    time.Time
	done       chan struct{}
	remove     func(context.Context) error
	signal     func(pid int, sig unix.Signal) error

	mu      sync.Mutex
	state   State
	status  ExitStatus
	waitErr error
	killed  bool
	swept   bool
}

func newHandle(cmd *exec.Cmd, invocation, container string, grace time.Duration, remove func(context.Context) error) *Handle {
	h := &Handle{
		cmd:        cmd,
		invocation: invocation,
		container:  container,
		grace:      grace,
		started:    time.Now(),
		done:       make(chan struct{}),
		remove:     remove,
		signal:     unix.Kill,
		state:      Running,
	}
	metrics.SandboxRunning.Inc()
	go h.reap()
	return h
}

// reap is the only caller of cmd.Wait.
func (h *Handle) reap() {
	err := h.cmd.Wait()

	h.mu.Lock()
	var exitErr *exec.ExitError
	switch {
	case err == nil || errors.As(err, &exitErr):
		h.status = statusOf(h.cmd.ProcessState)
		if h.killed {
			h.state = Killed
		} else {
			h.state = Exited
		}
	default:
		h.state = IOError
		h.waitErr = err
	}
	state, status := h.state, h.status
	h.mu.Unlock()

	metrics.SandboxRunning.Dec()
	metrics.SandboxExitsTotal.WithLabelValues(state.String()).Inc()
	metrics.SandboxDuration.Observe(time.Since(h.started).Seconds())
	log.Info("pid %d %s (%s)", h.Pid(), state, status)

	close(h.done)
}

func statusOf(ps *os.ProcessState) ExitStatus {
	status := ExitStatus{Code: ps.ExitCode()}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal().String()
	}
	return status
}

// Pid returns the runtime client's process ID, which is also its process
// group ID.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Container returns the name of the sandbox container.
func (h *Handle) Container() string {
	return h.container
}

// Invocation returns the rendered command line that was spawned.
func (h *Handle) Invocation() string {
	return h.invocation
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process has been reaped. The error is non-nil only
// in the IOError state; a non-zero exit is reported through ExitStatus.
func (h *Handle) Wait() (ExitStatus, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.waitErr
}

// Kill terminates the sandbox: SIGTERM to the client's process group,
// which the client forwards to the container. If the client is still alive
// after the grace period the container is force-removed and the group gets
// SIGKILL. Kill returns once SIGTERM has been sent; use Wait to observe the
// exit. It does nothing once the process has been reaped.
func (h *Handle) Kill() error {
	h.mu.Lock()
	if h.state != Running {
		h.mu.Unlock()
		return nil
	}
	h.killed = true
	h.mu.Unlock()

	pgid := -h.Pid()
	if err := h.signal(pgid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return h.escalate(pgid)
	}

	go func() {
		timer := time.NewTimer(h.grace)
		defer timer.Stop()
		select {
		case <-h.done:
		case <-timer.C:
			log.Warn("pid %d ignored SIGTERM for %v, removing container %s", h.Pid(), h.grace, h.container)
			_ = h.escalate(pgid)
		}
	}()
	return nil
}

// escalate removes the container, then SIGKILLs the client group.
func (h *Handle) escalate(pgid int) error {
	rerr := h.removeContainer()
	if err := h.forceKill(pgid); err != nil {
		return err
	}
	return rerr
}

func (h *Handle) removeContainer() error {
	if h.remove == nil || h.container == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := h.remove(ctx); err != nil {
		log.Warn("failed to remove container %s: %v", h.container, err)
		return fmt.Errorf("failed to remove container %s: %w", h.container, err)
	}
	return nil
}

func (h *Handle) forceKill(pgid int) error {
	if err := h.signal(pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to kill process group %d: %w", -pgid, err)
	}
	return nil
}

// Close kills the process if it is still running and waits for it to be
// reaped. When it had to kill, it then removes the container and sweeps
// group members that outlived the leader. A process that already exited on
// its own is left alone: its group ID may since have been reused. Close is
// safe to call on every exit path, including after Wait.
func (h *Handle) Close() error {
	err := h.Kill()
	<-h.done

	h.mu.Lock()
	sweep := h.killed && !h.swept
	h.swept = true
	h.mu.Unlock()
	if !sweep {
		return err
	}

	if rerr := h.removeContainer(); err == nil {
		err = rerr
	}
	if serr := h.forceKill(-h.Pid()); err == nil {
		err = serr
	}
	return err
}
