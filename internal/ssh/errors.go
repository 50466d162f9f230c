package ssh

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ConnectError wraps an SSH connection error with a user-friendly hint.
type ConnectError struct {
	Host string
	Err  error
	Hint string
}

func (e *ConnectError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %v\n  hint: %s", e.Host, e.Err, e.Hint)
	}
	return fmt.Sprintf("%s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// wrapConnectError attaches a friendly hint to common connection
// failure patterns. Errors with no known pattern still get wrapped so
// callers always see the host name.
func wrapConnectError(host string, err error) error {
	if err == nil {
		return nil
	}

	wrapped := &ConnectError{Host: host, Err: err}
	msg := err.Error()

	switch {
	case strings.Contains(msg, "i/o timeout") || errors.Is(err, errConnectTimeout):
		wrapped.Hint = "host unreachable within the connect timeout"

	case strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "handshake failed"):
		wrapped.Hint = fmt.Sprintf("verify your SSH key or agent. Try: ssh -v %s", host)

	case strings.Contains(msg, "connection refused"):
		wrapped.Hint = "verify SSH daemon is running on the target host"

	case isDNSError(err) || strings.Contains(msg, "no such host"):
		wrapped.Hint = "verify hostname is correct"

	case strings.Contains(msg, "no known_hosts") || strings.Contains(msg, "knownhosts"):
		wrapped.Hint = fmt.Sprintf("use --insecure or connect once with: ssh %s", host)

	case isKnownHostsKeyError(err):
		wrapped.Hint = fmt.Sprintf("remove old key with: ssh-keygen -R %s", host)

	case isServerAuthError(err):
		wrapped.Hint = fmt.Sprintf("verify your SSH key or agent. Try: ssh -v %s", host)
	}

	return wrapped
}

var errConnectTimeout = errors.New("connect timed out")

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isKnownHostsKeyError(err error) bool {
	var keyErr *knownhosts.KeyError
	return errors.As(err, &keyErr)
}

func isServerAuthError(err error) bool {
	var authErr *ssh.ServerAuthError
	return errors.As(err, &authErr)
}
