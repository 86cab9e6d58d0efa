package sandbox

import "errors"

// ErrNativeStartUnavailable reports that the atomic sandbox+spawn path is
// not usable on this platform. Non-fatal: the executor falls back to child
// self-activation.
var ErrNativeStartUnavailable = errors.New("native sandbox start unavailable on this platform")

// ErrNoChildHandle reports that the primitive could start a sandboxed
// process but cannot hand back a handle the caller can supervise. The
// executor treats this the same as a start failure and must not leave a
// primitive-owned process behind.
var ErrNoChildHandle = errors.New("sandbox primitive does not return a supervisable child handle")

// ActivationReason classifies why child-side activation failed.
type ActivationReason int

const (
	// ReasonMissingProjectPath: SANDBOX_ACTIVE was set but the project
	// path was absent. A sandbox without a known root cannot safely
	// authorize any file access.
	ReasonMissingProjectPath ActivationReason = iota
	// ReasonPrimitiveFailed: the OS primitive rejected the activation
	// call. The process must abort rather than run unsandboxed.
	ReasonPrimitiveFailed
)

func (r ActivationReason) String() string {
	switch r {
	case ReasonMissingProjectPath:
		return "missing project path"
	case ReasonPrimitiveFailed:
		return "primitive activation failed"
	default:
		return "unknown"
	}
}

// ActivationError is the fatal error type of the child activation
// entrypoint. Once activation has been requested, any ActivationError means
// the process may not continue.
type ActivationError struct {
	Reason ActivationReason
	Err    error
}

func (e *ActivationError) Error() string {
	if e.Err != nil {
		return "sandbox activation: " + e.Reason.String() + ": " + e.Err.Error()
	}
	return "sandbox activation: " + e.Reason.String()
}

func (e *ActivationError) Unwrap() error { return e.Err }
