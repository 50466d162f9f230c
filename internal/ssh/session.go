// Package ssh provides one-shot SSH sessions: connect, run a command
// sequence, disconnect. No connection reuse across invocations.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/trentearl/mssh/internal/executor"
	"github.com/trentearl/mssh/internal/hostspec"
)

// DefaultConnectTimeout bounds the TCP dial, SSH handshake, and
// authentication together.
const DefaultConnectTimeout = 5 * time.Second

// Options holds connection settings shared by all hosts.
type Options struct {
	// ConnectTimeout covers dial, handshake, and auth. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// InsecureHostKey skips known_hosts verification.
	InsecureHostKey bool

	// HostKeyCallback overrides host key verification entirely.
	// If nil, known_hosts is used (subject to InsecureHostKey).
	HostKeyCallback ssh.HostKeyCallback
}

// Dialer opens Sessions with a shared credential set. Safe for
// concurrent use; each Dial produces an independently owned Session.
type Dialer struct {
	Creds Credentials
	Opts  Options
}

// Dial connects and authenticates to one host. Commands are not hard
// wall-clock bounded once connected; only the connect phase carries a
// timeout.
func (d *Dialer) Dial(ctx context.Context, host hostspec.RemoteHost) (executor.Session, error) {
	sess, err := d.DialSession(ctx, host)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// DialSession is Dial with a concrete return type, for callers that
// need the underlying connection (the sftp transfer layer).
func (d *Dialer) DialSession(ctx context.Context, host hostspec.RemoteHost) (*Session, error) {
	timeout := d.Opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hostKeyCallback, err := resolveHostKeyCallback(d.Opts)
	if err != nil {
		return nil, wrapConnectError(host.Host, err)
	}

	conf := &ssh.ClientConfig{
		User:            host.Username,
		Auth:            d.Creds.authMethods(host.Host),
		HostKeyCallback: hostKeyCallback,
	}

	addr := net.JoinHostPort(host.Host, strconv.Itoa(int(host.Port)))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, wrapConnectError(host.Host, err)
	}

	sshConn, chans, reqs, err := newClientConn(ctx, conn, addr, conf)
	if err != nil {
		conn.Close()
		return nil, wrapConnectError(host.Host, err)
	}

	return &Session{
		host:   host,
		client: ssh.NewClient(sshConn, chans, reqs),
	}, nil
}

// newClientConn performs the SSH handshake and auth, honoring context
// cancellation (the handshake itself has no deadline hook).
func newClientConn(ctx context.Context, conn net.Conn, addr string, config *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	type result struct {
		conn  ssh.Conn
		chans <-chan ssh.NewChannel
		reqs  <-chan *ssh.Request
		err   error
	}

	done := make(chan result, 1)
	go func() {
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		done <- result{c, chans, reqs, err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, nil, errConnectTimeout
		}
		return nil, nil, nil, ctx.Err()
	case r := <-done:
		return r.conn, r.chans, r.reqs, r.err
	}
}

// Session is a live, authenticated connection to a single host. Owned
// exclusively by one host unit; never shared or reused.
type Session struct {
	host   hostspec.RemoteHost
	client *ssh.Client
}

// Client exposes the underlying connection for channel consumers like
// the sftp transfer layer.
func (s *Session) Client() *ssh.Client {
	return s.client
}

// Host returns the host this session is connected to.
func (s *Session) Host() hostspec.RemoteHost {
	return s.host
}

// Execute runs one command over a fresh exec channel. When sudoUser is
// set the command is rewritten to escalate, piping sudoPassword to the
// prompt when supplied. A non-zero exit code is a successful result;
// errors mean the command's outcome could not be determined.
func (s *Session) Execute(ctx context.Context, command, sudoUser, sudoPassword string) (*executor.CommandResult, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer sess.Close()

	switch {
	case sudoUser != "" && sudoPassword != "":
		command = fmt.Sprintf("echo %s | sudo -u %s -S  %s", sudoPassword, sudoUser, command)
	case sudoUser != "":
		command = fmt.Sprintf("sudo -u %s %s", sudoUser, command)
	}

	var outBuf, errBuf trimBuffer
	sess.Stdout = &outBuf
	sess.Stderr = &errBuf

	start := time.Now()

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(command)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		sess.Close()
		return nil, ctx.Err()
	case runErr = <-done:
	}

	var exitCode uint32
	if runErr != nil {
		var exitErr *ssh.ExitError
		var missingErr *ssh.ExitMissingError
		switch {
		case errors.As(runErr, &exitErr):
			exitCode = uint32(exitErr.ExitStatus())
		case errors.As(runErr, &missingErr):
			return nil, errors.New("no exit code")
		default:
			return nil, runErr
		}
	}

	if outBuf.Invalid() || errBuf.Invalid() {
		return nil, errors.New("command output is not valid utf-8")
	}

	// Duration is recorded on success only.
	elapsed := time.Since(start)

	return &executor.CommandResult{
		Stdout:         outBuf.String(),
		Stderr:         errBuf.String(),
		ExitCode:       exitCode,
		DurationMillis: uint64(elapsed.Milliseconds()),
	}, nil
}

// Close disconnects. Called exactly once per connected session, even
// when a prior Execute failed.
func (s *Session) Close() error {
	return s.client.Close()
}
