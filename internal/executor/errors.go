package executor

import "fmt"

// The per-host error variants share one taxonomy so callers can
// distinguish terminal failures (connection, run) from recorded but
// non-invalidating ones (close) with type assertions instead of string
// matching.

// ConnectionError means the host could not be reached or authenticated.
// Terminal for that host: no commands were attempted.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ssh connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RunError means a single command's execution failed (transport fault,
// decode failure, or missing exit status). Terminal for the host's
// remaining commands but not for sibling hosts.
type RunError struct {
	Index int
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("ssh run error: %v", e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// CloseError means the disconnect after a run failed. Recorded, but
// already-collected command outcomes remain valid.
type CloseError struct {
	Err error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("ssh close error: %v", e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// GeneralError means a scheduling unit itself faulted (a recovered
// panic, not a remote-side failure). It fails the whole invocation:
// the orchestration layer can no longer be trusted, unlike a failing
// target host.
type GeneralError struct {
	Host  string
	Panic any
}

func (e *GeneralError) Error() string {
	return fmt.Sprintf("an error occurred: host unit %s: %v", e.Host, e.Panic)
}
