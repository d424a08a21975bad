package container

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"streambox/internal/image"
	"streambox/internal/logging"
	"streambox/internal/metrics"
)

var log = logging.Component("container")

// Runtime is the seam between streambox and the external container runtime.
type Runtime interface {
	// ImageExists reports whether an image matching both name and content
	// hash is present in the local store.
	ImageExists(ctx context.Context, img image.Digest) (bool, error)
	// Pull fetches img into the local store. Pulling an image that is
	// already present is a successful no-op.
	Pull(ctx context.Context, img image.Digest) error
	// Command returns a fresh, unconfigured invocation of the runtime binary.
	Command() *Command
	// Remove force-removes the named container, stopping it immediately if
	// it is still running. Removing a container that does not exist is a
	// successful no-op.
	Remove(ctx context.Context, name string) error
}

// Executor runs a runtime subcommand to completion and returns its output.
type Executor interface {
	Run(ctx context.Context, binary string, args ...string) (stdout, stderr []byte, err error)
}

// execExecutor runs commands with os/exec.
type execExecutor struct{}

func (execExecutor) Run(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// DefaultBinary is the runtime used when none is configured.
const DefaultBinary = "podman"

// imagesFormat lists one "repository digest" pair per line.
const imagesFormat = "{{.Repository}} {{.Digest}}"

// noneValue is what podman prints for an absent repository or digest.
const noneValue = "<none>"

// Podman drives the podman CLI.
type Podman struct {
	binary string
	exec   Executor
}

// NewPodman returns an adapter for the podman binary at binary (looked up
// in PATH if not absolute).
func NewPodman(binary string) *Podman {
	return NewPodmanWithExecutor(binary, execExecutor{})
}

// NewPodmanWithExecutor returns an adapter that runs commands through e.
func NewPodmanWithExecutor(binary string, e Executor) *Podman {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Podman{binary: binary, exec: e}
}

// Binary returns the runtime binary this adapter invokes.
func (p *Podman) Binary() string {
	return p.binary
}

// Command returns a fresh invocation of the podman binary.
func (p *Podman) Command() *Command {
	return NewCommand(p.binary)
}

// ImageExists lists the local store and looks for an exact name+digest match.
func (p *Podman) ImageExists(ctx context.Context, img image.Digest) (bool, error) {
	stdout, err := p.run(ctx, "images", img.Reference(), "images", "--digests", "--no-trunc", "--format", imagesFormat)
	if err != nil {
		return false, err
	}

	found, err := scanImages(stdout, img)
	if err != nil {
		return false, &Error{Kind: UnexpectedOutput, Op: "images", Target: img.Reference(), Err: err}
	}

	log.Debug("image %s present=%v", img.Reference(), found)
	return found, nil
}

// Pull fetches img by content reference and verifies the store afterwards.
func (p *Podman) Pull(ctx context.Context, img image.Digest) error {
	present, err := p.ImageExists(ctx, img)
	if err != nil {
		metrics.ImagePullsTotal.WithLabelValues("error").Inc()
		return err
	}
	if present {
		metrics.ImagePullsTotal.WithLabelValues("present").Inc()
		return nil
	}

	log.Info("pulling %s", img.Reference())
	if _, err := p.run(ctx, "pull", img.Reference(), "pull", "--quiet", img.Reference()); err != nil {
		metrics.ImagePullsTotal.WithLabelValues("error").Inc()
		return err
	}

	present, err = p.ImageExists(ctx, img)
	if err != nil {
		metrics.ImagePullsTotal.WithLabelValues("error").Inc()
		return err
	}
	if !present {
		metrics.ImagePullsTotal.WithLabelValues("error").Inc()
		return &Error{
			Kind:   UnexpectedOutput,
			Op:     "pull",
			Target: img.Reference(),
			Err:   errors.New("pulled image not found in local store with expected digest"),
		}
	}

	metrics.ImagePullsTotal.WithLabelValues("pulled").Inc()
	log.Info("pulled %s", img.Reference())
	return nil
}

// Remove stops and deletes the named container without a stop timeout.
func (p *Podman) Remove(ctx context.Context, name string) error {
	if _, err := p.run(ctx, "rm", name, "rm", "--force", "--ignore", "--time=0", name); err != nil {
		return err
	}
	log.Debug("removed container %s", name)
	return nil
}

func (p *Podman) run(ctx context.Context, op, target string, args ...string) ([]byte, error) {
	start := time.Now()
	stdout, stderr, err := p.exec.Run(ctx, p.binary, args...)
	metrics.RuntimeCommandDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RuntimeCommandsTotal.WithLabelValues(op, "error").Inc()
		return nil, &Error{
			Kind:   CommandFailed,
			Op:     op,
			Target: target,
			Stderr: strings.TrimSpace(string(stderr)),
			Err:    err,
		}
	}

	metrics.RuntimeCommandsTotal.WithLabelValues(op, "success").Inc()
	return stdout, nil
}

// scanImages parses "repository digest" lines and reports whether any
// line matches img.
func scanImages(out []byte, img image.Digest) (bool, error) {
	found := false
	scanner := bufio.NewScanner(bytes.NewReader(out))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 2 {
			return false, fmt.Errorf("line %d: expected 2 fields, got %d: %q", line, len(fields), text)
		}
		repository, dgst := fields[0], fields[1]
		if repository == noneValue || dgst == noneValue {
			continue
		}
		if _, err := digest.Parse(dgst); err != nil {
			return false, fmt.Errorf("line %d: malformed digest %q: %w", line, dgst, err)
		}

		if img.Matches(repository, dgst) {
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return found, nil
}
