package sandbox

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"streambox/internal/image"
)

// ErrInvalidConfig is wrapped by every TranscodeConfig validation failure.
var ErrInvalidConfig = errors.New("invalid transcode config")

// containerName is the runtime's container name grammar.
var containerName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Bounds are the permitted segment durations, in seconds.
type Bounds struct {
	MinSegmentTime float64
	MaxSegmentTime float64
}

// TranscodeConfig describes one sandboxed transcode job.
type TranscodeConfig struct {
	Image image.Digest
	// Args are transcoder arguments, typically the input, e.g. ["-i", url].
	Args            []string
	AllowNetworking bool
	// SegmentTime is the target segment duration in seconds.
	SegmentTime float64
	// Name is the container name. Start generates one when empty; the
	// handle uses it to remove the container on kill.
	Name string
}

// engineFlags are transcoder flags the supervisor appends itself.
var engineFlags = map[string]bool{
	"-nostats":  true,
	"-stats":    true,
	"-nostdin":  true,
	"-stdin":    true,
	"-loglevel": true,
	"-v":        true,
	"-progress": true,
	"-y":        true,
	"-n":        true,
}

// Validate checks the segment duration against b and rejects arguments that
// would conflict with the engine-owned output and segmenting flags.
func (c TranscodeConfig) Validate(b Bounds) error {
	if c.Image.IsZero() {
		return fmt.Errorf("%w: no image", ErrInvalidConfig)
	}
	if c.Name != "" && !containerName.MatchString(c.Name) {
		return fmt.Errorf("%w: invalid container name %q", ErrInvalidConfig, c.Name)
	}
	if math.IsNaN(c.SegmentTime) || c.SegmentTime <= 0 {
		return fmt.Errorf("%w: segment time must be positive, got %v", ErrInvalidConfig, c.SegmentTime)
	}
	if c.SegmentTime < b.MinSegmentTime || c.SegmentTime > b.MaxSegmentTime {
		return fmt.Errorf("%w: segment time %vs outside [%v, %v]",
			ErrInvalidConfig, c.SegmentTime, b.MinSegmentTime, b.MaxSegmentTime)
	}
	return checkArgs(c.Args)
}

func checkArgs(args []string) error {
	for i, arg := range args {
		switch {
		case engineFlags[arg]:
			return fmt.Errorf("%w: argument %q is set by the engine", ErrInvalidConfig, arg)
		case strings.HasPrefix(arg, "-segment_"):
			return fmt.Errorf("%w: segmenting argument %q is set by the engine", ErrInvalidConfig, arg)
		case strings.HasPrefix(arg, "unix:"):
			return fmt.Errorf("%w: output target %q is set by the engine", ErrInvalidConfig, arg)
		case arg == "-f" && !hasInputAfter(args[i+1:]):
			// -f before -i selects an input format; after the last -i it
			// would override the output muxer
			return fmt.Errorf("%w: output format is set by the engine", ErrInvalidConfig)
		}
	}
	return nil
}

func hasInputAfter(args []string) bool {
	for _, a := range args {
		if a == "-i" {
			return true
		}
	}
	return false
}
