package ssh

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// trimBuffer captures one output stream of a remote command. Each
// arriving chunk is decoded as UTF-8, trimmed of incidental
// whitespace, and concatenated in arrival order. Safe for concurrent
// writes since the transport delivers stdout and stderr from its own
// read loop.
type trimBuffer struct {
	mu      sync.Mutex
	b       strings.Builder
	invalid bool
}

func (t *trimBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !utf8.Valid(p) {
		t.invalid = true
	}
	t.b.WriteString(strings.TrimSpace(string(p)))
	return len(p), nil
}

func (t *trimBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.b.String()
}

// Invalid reports whether any chunk failed UTF-8 decoding.
func (t *trimBuffer) Invalid() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invalid
}
