package ssh

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapConnectError_HintIsUserVisible(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantHint string
	}{
		{
			name:     "connect timeout",
			err:      errConnectTimeout,
			wantHint: "host unreachable within the connect timeout",
		},
		{
			name:     "auth failure",
			err:      errors.New("ssh: unable to authenticate, attempted methods [publickey]"),
			wantHint: "verify your SSH key or agent",
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp 10.0.0.5:22: connect: connection refused"),
			wantHint: "verify SSH daemon is running",
		},
		{
			name:     "missing known_hosts",
			err:      errors.New("no known_hosts file found at /home/u/.ssh/known_hosts"),
			wantHint: "use --insecure",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := wrapConnectError("db-01", tc.err)

			var connErr *ConnectError
			if !errors.As(err, &connErr) {
				t.Fatalf("expected *ConnectError, got %T", err)
			}
			if connErr.Hint == "" {
				t.Fatal("expected a hint to be attached")
			}
			// The hint must reach the user through Error(), not just
			// sit on the struct.
			if !strings.Contains(err.Error(), tc.wantHint) {
				t.Errorf("Error() = %q, want it to contain %q", err.Error(), tc.wantHint)
			}
			if !strings.Contains(err.Error(), "db-01") {
				t.Errorf("Error() = %q, want it to name the host", err.Error())
			}
		})
	}
}

func TestWrapConnectError_NoHintForUnknownPattern(t *testing.T) {
	err := wrapConnectError("db-01", errors.New("something odd"))

	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectError, got %T", err)
	}
	if connErr.Hint != "" {
		t.Errorf("unexpected hint %q", connErr.Hint)
	}
	if got := err.Error(); strings.Contains(got, "hint:") {
		t.Errorf("Error() = %q, want no hint line", got)
	}
}

func TestWrapConnectError_Nil(t *testing.T) {
	if err := wrapConnectError("db-01", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
