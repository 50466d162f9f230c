package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trentearl/mssh/internal/hostspec"
)

// mockSession is a configurable in-memory Session.
type mockSession struct {
	execute func(ctx context.Context, command, sudoUser, sudoPassword string) (*CommandResult, error)
	close   func() error

	closeCalls atomic.Int32
}

func (m *mockSession) Execute(ctx context.Context, command, sudoUser, sudoPassword string) (*CommandResult, error) {
	return m.execute(ctx, command, sudoUser, sudoPassword)
}

func (m *mockSession) Close() error {
	m.closeCalls.Add(1)
	if m.close != nil {
		return m.close()
	}
	return nil
}

// mockDialer is a configurable in-memory Dialer.
type mockDialer struct {
	dial func(ctx context.Context, host hostspec.RemoteHost) (Session, error)
}

func (m *mockDialer) Dial(ctx context.Context, host hostspec.RemoteHost) (Session, error) {
	return m.dial(ctx, host)
}

func echoSession() *mockSession {
	return &mockSession{
		execute: func(_ context.Context, command, _, _ string) (*CommandResult, error) {
			return &CommandResult{Stdout: command, DurationMillis: 1}, nil
		},
	}
}

func hosts(names ...string) []hostspec.RemoteHost {
	hs := make([]hostspec.RemoteHost, len(names))
	for i, n := range names {
		hs[i] = hostspec.RemoteHost{Host: n, Port: 22, Username: "tester"}
	}
	return hs
}

func TestRun_AllHostsSucceed(t *testing.T) {
	dialer := &mockDialer{
		dial: func(_ context.Context, _ hostspec.RemoteHost) (Session, error) {
			return echoSession(), nil
		},
	}

	e := New(dialer)
	outcomes, err := e.Run(context.Background(), hosts("a", "b", "c"), []string{"uptime", "whoami"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 host outcomes, got %d", len(outcomes))
	}

	for _, ho := range outcomes {
		if len(ho.Outcomes) != 2 {
			t.Fatalf("%s: expected 2 outcomes, got %d", ho.Host.Host, len(ho.Outcomes))
		}
		for i, o := range ho.Outcomes {
			if !o.Ok() {
				t.Errorf("%s[%d]: unexpected error: %v", ho.Host.Host, i, o.Err)
			}
			if o.Index != i {
				t.Errorf("%s[%d]: index = %d", ho.Host.Host, i, o.Index)
			}
		}
		if ho.Outcomes[0].Result.Stdout != "uptime" {
			t.Errorf("%s[0]: stdout = %q", ho.Host.Host, ho.Outcomes[0].Result.Stdout)
		}
	}
}

func TestRun_ConcurrencyCap(t *testing.T) {
	var running, peak atomic.Int32

	dialer := &mockDialer{
		dial: func(_ context.Context, _ hostspec.RemoteHost) (Session, error) {
			cur := running.Add(1)
			for {
				prev := peak.Load()
				if cur <= prev || peak.CompareAndSwap(prev, cur) {
					break
				}
			}
			return &mockSession{
				execute: func(_ context.Context, command, _, _ string) (*CommandResult, error) {
					time.Sleep(20 * time.Millisecond)
					return &CommandResult{Stdout: command}, nil
				},
				close: func() error {
					running.Add(-1)
					return nil
				},
			}, nil
		},
	}

	e := New(dialer, WithConcurrency(3))
	outcomes, err := e.Run(context.Background(), hosts("a", "b", "c", "d", "e", "f", "g", "h"), []string{"x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 8 {
		t.Fatalf("expected 8 host outcomes, got %d", len(outcomes))
	}

	if p := peak.Load(); p > 3 {
		t.Errorf("expected at most 3 concurrent sessions, saw %d", p)
	} else if p < 3 {
		t.Errorf("expected concurrency to reach 3, peaked at %d", p)
	}
}

func TestRun_ConnectionFailure(t *testing.T) {
	dialer := &mockDialer{
		dial: func(_ context.Context, _ hostspec.RemoteHost) (Session, error) {
			return nil, errors.New("connection refused")
		},
	}

	e := New(dialer)
	outcomes, err := e.Run(context.Background(), hosts("a", "b"), []string{"uptime"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Every requested host still appears exactly once.
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 host outcomes, got %d", len(outcomes))
	}
	for _, ho := range outcomes {
		if len(ho.Outcomes) != 1 {
			t.Fatalf("%s: expected 1 outcome, got %d", ho.Host.Host, len(ho.Outcomes))
		}
		o := ho.Outcomes[0]
		if o.Index != NoIndex {
			t.Errorf("%s: connection error should carry no index, got %d", ho.Host.Host, o.Index)
		}
		var connErr *ConnectionError
		if !errors.As(o.Err, &connErr) {
			t.Errorf("%s: expected *ConnectionError, got %T", ho.Host.Host, o.Err)
		}
	}
}

func TestRun_StopsAtFirstCommandFailure(t *testing.T) {
	sess := &mockSession{
		execute: func(_ context.Context, command, _, _ string) (*CommandResult, error) {
			if command == "cmd-2" {
				return nil, errors.New("channel torn down")
			}
			return &CommandResult{Stdout: command}, nil
		},
	}
	dialer := &mockDialer{
		dial: func(_ context.Context, _ hostspec.RemoteHost) (Session, error) {
			return sess, nil
		},
	}

	e := New(dialer)
	outcomes, err := e.Run(context.Background(), hosts("a"), []string{"cmd-0", "cmd-1", "cmd-2", "cmd-3", "cmd-4"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := outcomes[0].Outcomes
	// Outcomes exist for indices 0..2 only: two results plus the failure.
	if len(got) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(got))
	}
	if !got[0].Ok() || !got[1].Ok() {
		t.Errorf("commands before the failure should have succeeded")
	}
	var runErr *RunError
	if !errors.As(got[2].Err, &runErr) {
		t.Fatalf("expected *RunError, got %T", got[2].Err)
	}
	if runErr.Index != 2 || got[2].Index != 2 {
		t.Errorf("run error index = %d (outcome %d), want 2", runErr.Index, got[2].Index)
	}

	// The session is still closed after a mid-sequence failure.
	if n := sess.closeCalls.Load(); n != 1 {
		t.Errorf("expected exactly 1 close call, got %d", n)
	}
}

func TestRun_CloseFailureAppended(t *testing.T) {
	dialer := &mockDialer{
		dial: func(_ context.Context, _ hostspec.RemoteHost) (Session, error) {
			s := echoSession()
			s.close = func() error { return errors.New("disconnect timed out") }
			return s, nil
		},
	}

	e := New(dialer)
	outcomes, err := e.Run(context.Background(), hosts("a"), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := outcomes[0].Outcomes
	// 3 command outcomes plus the trailing close error.
	if len(got) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(got))
	}
	last := got[3]
	if last.Index != NoIndex {
		t.Errorf("close error should carry no index, got %d", last.Index)
	}
	var closeErr *CloseError
	if !errors.As(last.Err, &closeErr) {
		t.Errorf("expected *CloseError, got %T", last.Err)
	}
}

func TestRun_PanicBecomesGeneralError(t *testing.T) {
	dialer := &mockDialer{
		dial: func(_ context.Context, host hostspec.RemoteHost) (Session, error) {
			if host.Host == "bad" {
				panic("unit fault")
			}
			return echoSession(), nil
		},
	}

	e := New(dialer)
	_, err := e.Run(context.Background(), hosts("a", "bad", "c"), []string{"uptime"})
	if err == nil {
		t.Fatal("expected GeneralError, got nil")
	}
	var genErr *GeneralError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GeneralError, got %T: %v", err, err)
	}
	if genErr.Host != "bad" {
		t.Errorf("fault host = %q, want %q", genErr.Host, "bad")
	}
}

func TestRun_SudoParametersForwarded(t *testing.T) {
	var gotSudoUser, gotSudoPassword string
	dialer := &mockDialer{
		dial: func(_ context.Context, _ hostspec.RemoteHost) (Session, error) {
			return &mockSession{
				execute: func(_ context.Context, command, sudoUser, sudoPassword string) (*CommandResult, error) {
					gotSudoUser = sudoUser
					gotSudoPassword = sudoPassword
					return &CommandResult{Stdout: command}, nil
				},
			}, nil
		},
	}

	e := New(dialer, WithSudoPassword("hunter2"))
	host := hostspec.RemoteHost{Host: "a", Port: 22, Username: "alice", SudoUser: "root"}
	if _, err := e.Run(context.Background(), []hostspec.RemoteHost{host}, []string{"id"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if gotSudoUser != "root" {
		t.Errorf("sudo user = %q, want %q", gotSudoUser, "root")
	}
	if gotSudoPassword != "hunter2" {
		t.Errorf("sudo password = %q, want %q", gotSudoPassword, "hunter2")
	}
}

func TestRun_ZeroHosts(t *testing.T) {
	dialer := &mockDialer{
		dial: func(_ context.Context, _ hostspec.RemoteHost) (Session, error) {
			t.Fatal("dial should not be called with zero hosts")
			return nil, nil
		},
	}

	e := New(dialer)
	outcomes, err := e.Run(context.Background(), nil, []string{"x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("expected 0 outcomes, got %d", len(outcomes))
	}
}

func TestNew_Defaults(t *testing.T) {
	e := New(&mockDialer{})
	if e.concurrency != 10 {
		t.Errorf("expected default concurrency 10, got %d", e.concurrency)
	}
}

func TestWithConcurrency_IgnoresInvalid(t *testing.T) {
	e := New(&mockDialer{}, WithConcurrency(0), WithConcurrency(-3))
	if e.concurrency != 10 {
		t.Errorf("expected default concurrency 10, got %d", e.concurrency)
	}
}

func TestRun_ManyFailingHosts(t *testing.T) {
	// More hosts than the cap, all failing to connect: nothing is dropped.
	dialer := &mockDialer{
		dial: func(_ context.Context, host hostspec.RemoteHost) (Session, error) {
			return nil, fmt.Errorf("no route to %s", host.Host)
		},
	}

	names := make([]string, 25)
	for i := range names {
		names[i] = fmt.Sprintf("host-%02d", i)
	}

	e := New(dialer, WithConcurrency(4))
	outcomes, err := e.Run(context.Background(), hosts(names...), []string{"x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 25 {
		t.Fatalf("expected 25 host outcomes, got %d", len(outcomes))
	}
}
