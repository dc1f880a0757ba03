// Package rcerr defines the sentinel error kinds shared across the control
// plane: transport, protocol, timeout, liveness, and fatal-init failures.
package rcerr

import "errors"

// Transport errors: short read/write, send failure, bad magic.
var (
	ErrShortRead    = errors.New("rc: short read on control channel")
	ErrShortWrite   = errors.New("rc: short write on control channel")
	ErrBadMagic     = errors.New("rc: handshake magic mismatch")
	ErrConnClosed   = errors.New("rc: control connection closed")
)

// Protocol errors: unknown command, oversize payload, malformed frame.
var (
	ErrUnknownCommand = errors.New("rc: unknown command code")
	ErrPayloadTooLarge = errors.New("rc: inline payload exceeds 2048 bytes")
	ErrHostTooLong    = errors.New("rc: host string exceeds 255 bytes")
)

// Timeout is returned by blocking sync waits that expired rather than woke.
var ErrTimeout = errors.New("rc: sync wait timed out")

// Liveness errors: a node has gone silent past the failure threshold.
var ErrNodeSilent = errors.New("rc: node exceeded liveness timeout")

// Fatal-init errors: data-socket readiness or storage bring-up failed.
var (
	ErrDataSocketTimeout = errors.New("rc: data socket readiness timed out")
	ErrStorageInit       = errors.New("rc: storage initialization failed")
)

// RestartInProgress is returned when a second caller observes the restart
// lock already set.
var ErrRestartInProgress = errors.New("rc: cluster restart already in progress")
