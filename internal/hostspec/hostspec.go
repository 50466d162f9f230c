// Package hostspec parses command-line host specifications of the form
// [user[@sudoUser]]@host[:port] into connection targets.
package hostspec

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
)

// RemoteHost identifies a connection target and the effective execution
// identity. Immutable once parsed.
type RemoteHost struct {
	Host     string
	Port     uint16
	Username string

	// SudoUser, when non-empty, is the identity commands are escalated
	// to on the remote side via sudo.
	SudoUser string
}

// String returns the display form user@host. When escalation is
// requested the sudo user is shown instead of the login user, since
// that is the identity commands effectively run as.
func (r RemoteHost) String() string {
	u := r.Username
	if r.SudoUser != "" {
		u = r.SudoUser
	}
	return u + "@" + r.Host
}

// MarshalJSON serializes the host as its display string.
func (r RemoteHost) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Parse parses a host spec. The segment after the final "@" is the
// host (with optional ":port"); segments before it are the login user
// and optionally the sudo user. With no user segment the invoking
// user's identity is used.
func Parse(spec string) (RemoteHost, error) {
	parts := strings.Split(spec, "@")
	hostPart := parts[len(parts)-1]
	users := parts[:len(parts)-1]

	var username, sudoUser string
	switch len(users) {
	case 0:
		u, err := currentUsername()
		if err != nil {
			return RemoteHost{}, err
		}
		username = u
	case 1:
		username = users[0]
	case 2:
		username = users[0]
		sudoUser = users[1]
	default:
		return RemoteHost{}, fmt.Errorf("invalid host spec %q: too many user segments", spec)
	}
	if username == "" {
		return RemoteHost{}, fmt.Errorf("invalid host spec %q: empty username", spec)
	}

	host, port, err := splitHostPort(hostPart)
	if err != nil {
		return RemoteHost{}, fmt.Errorf("invalid host spec %q: %w", spec, err)
	}

	return RemoteHost{
		Host:     host,
		Port:     port,
		Username: username,
		SudoUser: sudoUser,
	}, nil
}

// ParseAll parses a list of host specs, failing on the first invalid one.
func ParseAll(specs []string) ([]RemoteHost, error) {
	hosts := make([]RemoteHost, 0, len(specs))
	for _, spec := range specs {
		h, err := Parse(spec)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// splitHostPort splits "host[:port]", defaulting the port to 22.
func splitHostPort(s string) (string, uint16, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return "", 0, fmt.Errorf("empty host")
		}
		return parts[0], 22, nil
	case 2:
		if parts[0] == "" {
			return "", 0, fmt.Errorf("empty host")
		}
		port, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return "", 0, fmt.Errorf("invalid port %q", parts[1])
		}
		return parts[0], uint16(port), nil
	default:
		return "", 0, fmt.Errorf("invalid host %q", s)
	}
}

// currentUsername resolves the invoking user's identity, preferring
// $USER over the passwd database so tests and sudo wrappers behave
// predictably.
func currentUsername() (string, error) {
	if u := os.Getenv("USER"); u != "" {
		return u, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("no username in spec and current user unknown: %w", err)
	}
	return u.Username, nil
}
