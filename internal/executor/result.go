package executor

import "github.com/trentearl/mssh/internal/hostspec"

// NoIndex marks an outcome that is not tied to a specific command in
// the sequence (connection and close errors).
const NoIndex = -1

// CommandResult holds the output of one successfully executed command.
// Non-zero exit codes are still results, not errors: an error means the
// command could not be run or its outcome could not be determined.
type CommandResult struct {
	Stdout         string
	Stderr         string
	ExitCode       uint32
	DurationMillis uint64
}

// Outcome is one entry in a host's result sequence: either a command
// result or an error, tagged with the command's position in the
// original command list. The index travels with the outcome because a
// failure truncates the sequence, so position in the slice alone does
// not identify the command.
type Outcome struct {
	Index  int
	Result *CommandResult
	Err    error
}

// Ok reports whether the outcome is a successful command result.
func (o Outcome) Ok() bool {
	return o.Err == nil
}

// HostOutcome is the complete result record for one requested host.
// Every requested host produces exactly one, even when its connection
// fails (a single connection-error outcome in that case).
type HostOutcome struct {
	Host     hostspec.RemoteHost
	Outcomes []Outcome
}

// Failed reports whether any outcome for this host is an error.
func (h HostOutcome) Failed() bool {
	for _, o := range h.Outcomes {
		if o.Err != nil {
			return true
		}
	}
	return false
}
