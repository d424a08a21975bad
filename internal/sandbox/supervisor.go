package sandbox

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"streambox/internal/container"
	"streambox/internal/image"
	"streambox/internal/logging"
	"streambox/internal/metrics"
)

var log = logging.Component("sandbox")

// Segment container written by the transcoder.
const segmentFormat = "mpegts"

// DefaultKillGrace is how long Kill waits after SIGTERM before SIGKILL.
const DefaultKillGrace = 10 * time.Second

// Mounts is the part of a socket pool the supervisor needs: the runtime
// flags exposing the endpoints and the transcoder output template that
// addresses them from inside the sandbox.
type Mounts interface {
	MountArgs() []string
	OutputURL() string
}

// Supervisor builds and launches sandboxed transcoder invocations.
type Supervisor struct {
	runtime   container.Runtime
	bounds    Bounds
	spawn     func(*exec.Cmd) error
	stdout    io.Writer
	stderr    io.Writer
	env       []string
	killGrace time.Duration
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSpawner replaces exec.Cmd.Start as the process-creation step.
func WithSpawner(spawn func(*exec.Cmd) error) Option {
	return func(s *Supervisor) { s.spawn = spawn }
}

// WithOutput sets the writers the runtime's stdout and stderr go to.
// By default they are inherited from this process.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithKillGrace sets the SIGTERM to SIGKILL delay used by Handle.Kill.
func WithKillGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.killGrace = d }
}

// WithEnv sets the complete environment of the runtime client process.
func WithEnv(env []string) Option {
	return func(s *Supervisor) { s.env = env }
}

// New returns a Supervisor driving rt, enforcing bounds on segment duration.
func New(rt container.Runtime, bounds Bounds, opts ...Option) *Supervisor {
	s := &Supervisor{
		runtime:   rt,
		bounds:    bounds,
		spawn:     (*exec.Cmd).Start,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		env:       clientEnv(),
		killGrace: DefaultKillGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clientEnv is the environment handed to the runtime client itself. The
// sandboxed process never sees it (--env-host=false), but the client's
// /proc/<pid>/environ would otherwise carry every host secret.
func clientEnv() []string {
	env := []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
	for _, key := range []string{"HOME", "XDG_RUNTIME_DIR", "CONTAINERS_CONF", "CONTAINERS_STORAGE_CONF"} {
		if v := os.Getenv(key); v != "" {
			env = append(env, key+"="+v)
		}
	}
	return env
}

// EnsureImage makes img present in the local store, pulling only if it is
// missing. Errors are the runtime's own and are safe for callers to retry.
func (s *Supervisor) EnsureImage(ctx context.Context, img image.Digest) error {
	present, err := s.runtime.ImageExists(ctx, img)
	if err != nil {
		return err
	}
	if present {
		log.Debug("image %s already present", img.Reference())
		return nil
	}
	return s.runtime.Pull(ctx, img)
}

// BuildCommand constructs the full runtime invocation for cfg writing into
// pool. It has no side effects.
func (s *Supervisor) BuildCommand(cfg TranscodeConfig, pool Mounts) *container.Command {
	cmd := s.runtime.Command()

	// Fixed hardening, independent of the job
	cmd.Arg(
		"run",
		"--rm",
		"--attach=stdout",
		"--attach=stderr",
		"--env-host=false",
		"--read-only",
		"--restart=no",
		"--detach=false",
		"--sig-proxy=true",
		"--privileged=false",
		"--security-opt=no-new-privileges",
		"--cap-drop=all",
	)
	if cfg.Name != "" {
		cmd.Arg("--name=" + cfg.Name)
	}

	if cfg.AllowNetworking {
		// Usermode TCP/IP; remote hosts reachable, host loopback is not
		cmd.Arg(
			"--net=slirp4netns:allow_host_loopback=false",
			"--dns-search=.",
		)
	} else {
		cmd.Arg("--net=none")
	}

	cmd.Arg(pool.MountArgs()...)
	cmd.Arg(cfg.Image.Reference())
	cmd.Arg(cfg.Args...)

	cmd.Arg(
		"-nostats",
		"-nostdin",
		"-loglevel", "error",
		"-f", "stream_segment",
		"-segment_format", segmentFormat,
		"-segment_wrap", "1",
		"-segment_time", FormatSegmentTime(cfg.SegmentTime),
		pool.OutputURL(),
	)

	return cmd
}

// FormatSegmentTime renders seconds the way the transcoder expects,
// without trailing zeros ("4", "2.5").
func FormatSegmentTime(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

// Start ensures the image, builds the invocation and spawns it. An unnamed
// config gets a generated container name. The pool is only read; it is never
// modified or closed, so a failed Start can be retried with the same pool.
func (s *Supervisor) Start(ctx context.Context, cfg TranscodeConfig, pool Mounts) (*Handle, error) {
	if err := cfg.Validate(s.bounds); err != nil {
		return nil, s.fail(&EngineError{Kind: InvalidConfig, Err: err})
	}
	if cfg.Name == "" {
		cfg.Name = "streambox-" + uuid.NewString()
	}

	// Built before any side effect so failures can be logged with it
	cmd := s.BuildCommand(cfg, pool)
	invocation := cmd.String()

	if err := s.EnsureImage(ctx, cfg.Image); err != nil {
		return nil, s.fail(&EngineError{Kind: ImageUnavailable, Invocation: invocation, Err: err})
	}

	proc := cmd.Cmd()
	proc.Stdin = nil
	proc.Stdout = s.stdout
	proc.Stderr = s.stderr
	proc.Env = s.env
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := s.spawn(proc); err != nil {
		return nil, s.fail(&EngineError{Kind: SpawnFailed, Invocation: invocation, Err: err})
	}
	if proc.Process == nil {
		return nil, s.fail(&EngineError{Kind: SpawnFailed, Invocation: invocation, Err: errors.New("spawner returned no process")})
	}

	metrics.SandboxStartsTotal.WithLabelValues("success").Inc()
	log.Info("started pid %d: %s", proc.Process.Pid, invocation)

	name := cfg.Name
	remove := func(ctx context.Context) error {
		return s.runtime.Remove(ctx, name)
	}
	return newHandle(proc, invocation, name, s.killGrace, remove), nil
}

func (s *Supervisor) fail(err *EngineError) error {
	metrics.SandboxStartsTotal.WithLabelValues(err.Kind.metricLabel()).Inc()
	if err.Invocation != "" {
		log.Error("%v; invocation: %s", err, err.Invocation)
	} else {
		log.Error("%v", err)
	}
	return err
}
