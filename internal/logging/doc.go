// Package logging provides the leveled logger shared by every streambox
// component.
//
// Levels, lowest first:
//   - DEBUG: constructed invocations, per-segment details
//   - INFO: job lifecycle, image pulls, configuration
//   - WARN: out-of-range segments, cleanup failures
//   - ERROR: spawn and image failures
//   - FATAL: startup errors that terminate the process
//
// The level comes from LOG_LEVEL, or DEBUG=true which forces debug output.
// Component loggers prefix messages with the emitting package name.
package logging
