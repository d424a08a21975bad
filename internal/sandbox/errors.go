package sandbox

import "fmt"

// ErrorKind classifies Start failures.
type ErrorKind int

const (
	// InvalidConfig means the TranscodeConfig failed validation.
	InvalidConfig ErrorKind = iota + 1
	// ImageUnavailable wraps a runtime error from the image check or pull.
	ImageUnavailable
	// SpawnFailed means the runtime process could not be created.
	SpawnFailed
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidConfig:
		return "invalid config"
	case ImageUnavailable:
		return "image unavailable"
	case SpawnFailed:
		return "spawn failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// metricLabel is the status label used for streambox_sandbox_starts_total.
func (k ErrorKind) metricLabel() string {
	switch k {
	case InvalidConfig:
		return "invalid_config"
	case ImageUnavailable:
		return "image_unavailable"
	case SpawnFailed:
		return "spawn_failed"
	default:
		return "unknown"
	}
}

// EngineError is returned by Supervisor.Start.
type EngineError struct {
	Kind ErrorKind
	// Invocation is the rendered runtime command line, when one was built.
	Invocation string
	Err        error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
