// Package executor fans a command sequence out to many hosts with
// bounded concurrency and collects per-host, per-command outcomes.
package executor

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/trentearl/mssh/internal/hostspec"
)

// Session is one authenticated connection to a single host, owned
// exclusively by its host unit for the duration of one invocation.
// Implemented by the ssh package.
type Session interface {
	// Execute runs one command, escalating to sudoUser when non-empty
	// (piping sudoPassword to the prompt when supplied).
	Execute(ctx context.Context, command, sudoUser, sudoPassword string) (*CommandResult, error)

	// Close disconnects. Called exactly once per connected session.
	Close() error
}

// Dialer opens sessions. Implementations must be safe for concurrent
// use: one session is dialed per host unit.
type Dialer interface {
	Dial(ctx context.Context, host hostspec.RemoteHost) (Session, error)
}

// Executor runs a command sequence on many hosts, at most concurrency
// hosts at a time. Commands within a host run strictly sequentially;
// later commands may depend on state left by earlier ones.
type Executor struct {
	dialer       Dialer
	concurrency  int
	sudoPassword string
	logger       *log.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency sets the maximum number of hosts processed
// simultaneously.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithSudoPassword supplies the password piped to the remote sudo
// prompt for hosts that request escalation.
func WithSudoPassword(pw string) Option {
	return func(e *Executor) {
		e.sudoPassword = pw
	}
}

// WithLogger sets the logger used for per-host progress traces.
func WithLogger(l *log.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Executor. The default concurrency cap is 10.
func New(dialer Dialer, opts ...Option) *Executor {
	e := &Executor{
		dialer:      dialer,
		concurrency: 10,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// completion carries one finished host unit back to the collector.
type completion struct {
	outcome HostOutcome
	fault   *GeneralError
}

// Run executes the command sequence on every host. Outcomes arrive in
// completion order; call Aggregate for the deterministic final
// ordering. A recovered panic in any host unit fails the whole
// invocation, since it means the orchestrator itself misbehaved;
// remote-side failures never do, they are packaged into that host's
// outcome instead.
func (e *Executor) Run(ctx context.Context, hosts []hostspec.RemoteHost, commands []string) ([]HostOutcome, error) {
	e.logger.Debug("connecting", "hosts", len(hosts))

	done := make(chan completion, len(hosts))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for _, host := range hosts {
		wg.Add(1)
		go func(h hostspec.RemoteHost) {
			defer wg.Done()

			defer func() {
				if r := recover(); r != nil {
					done <- completion{fault: &GeneralError{Host: h.Host, Panic: r}}
				}
			}()

			sem <- struct{}{}
			defer func() { <-sem }()

			done <- completion{outcome: e.runHost(ctx, h, commands)}
		}(host)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	outcomes := make([]HostOutcome, 0, len(hosts))
	for c := range done {
		if c.fault != nil {
			return nil, c.fault
		}
		outcomes = append(outcomes, c.outcome)
	}
	return outcomes, nil
}

// runHost drives one host's full command sequence: connect, run
// commands in order stopping at the first failure, then always close.
// Outcomes are appended in index order, so the returned sequence is
// already sorted.
func (e *Executor) runHost(ctx context.Context, host hostspec.RemoteHost, commands []string) HostOutcome {
	out := HostOutcome{Host: host}
	logger := e.logger.With("host", host.Host)

	logger.Debug("ssh connect")
	sess, err := e.dialer.Dial(ctx, host)
	if err != nil {
		// Never connected, so there is nothing to close.
		out.Outcomes = append(out.Outcomes, Outcome{
			Index: NoIndex,
			Err:   &ConnectionError{Err: err},
		})
		return out
	}
	logger.Debug("ssh connected")

	for i, command := range commands {
		logger.Debug("run command", "index", i, "command", command)
		result, err := sess.Execute(ctx, command, host.SudoUser, e.sudoPassword)
		if err != nil {
			out.Outcomes = append(out.Outcomes, Outcome{
				Index: i,
				Err:   &RunError{Index: i, Err: err},
			})
			break
		}
		out.Outcomes = append(out.Outcomes, Outcome{Index: i, Result: result})
	}

	// Close regardless of how the run ended. A close failure is
	// recorded as a trailing outcome with no command index.
	if err := sess.Close(); err != nil {
		out.Outcomes = append(out.Outcomes, Outcome{
			Index: NoIndex,
			Err:   &CloseError{Err: err},
		})
	}
	return out
}
