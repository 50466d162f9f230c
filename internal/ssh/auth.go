package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	sshconfig "github.com/kevinburke/ssh_config"
)

// Credentials holds the key material for one invocation. Loaded once
// and shared read-only across all hosts; signers are safe for
// concurrent use.
type Credentials struct {
	signers []ssh.Signer
}

// LoadCredentials loads the private key at keyPath. With an empty
// path, the default key locations under ~/.ssh are tried instead and
// at least one must parse.
func LoadCredentials(keyPath string) (Credentials, error) {
	if keyPath != "" {
		signer, err := loadKeySigner(expandHome(keyPath))
		if err != nil {
			return Credentials{}, fmt.Errorf("load private key %s: %w", keyPath, err)
		}
		return Credentials{signers: []ssh.Signer{signer}}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Credentials{}, fmt.Errorf("locate home dir: %w", err)
	}

	var signers []ssh.Signer
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		signer, err := loadKeySigner(path)
		if err != nil {
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) == 0 {
		return Credentials{}, fmt.Errorf("no usable private key under %s", filepath.Join(home, ".ssh"))
	}
	return Credentials{signers: signers}, nil
}

// expandHome expands a leading ~/ in key paths from flags, config and
// ssh_config IdentityFile lines. Paths like ~otheruser/... are returned
// unchanged since other users' home directories cannot be resolved
// reliably.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") && path != "~" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// loadKeySigner reads and parses a private key file.
func loadKeySigner(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(data)
}

// authMethods builds the ordered auth chain for a host: ssh-agent,
// the invocation's shared key material, then any per-host IdentityFile
// from ~/.ssh/config.
func (c Credentials) authMethods(host string) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if agentAuth := agentAuthMethod(); agentAuth != nil {
		methods = append(methods, agentAuth)
	}

	signers := c.signers
	if identity := sshconfig.Get(host, "IdentityFile"); identity != "" {
		expanded := expandHome(identity)
		if signer, err := loadKeySigner(expanded); err == nil {
			signers = append(append([]ssh.Signer{}, signers...), signer)
		}
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	return methods
}

// sharedAgent holds a lazily-initialized, process-wide SSH agent
// connection. Uses a mutex instead of sync.Once so a failed dial can
// be retried.
var sharedAgent struct {
	mu     sync.Mutex
	conn   net.Conn
	client agent.ExtendedAgent
}

// CloseAgent closes the shared SSH agent connection, if any.
func CloseAgent() {
	sharedAgent.mu.Lock()
	defer sharedAgent.mu.Unlock()
	if sharedAgent.conn != nil {
		sharedAgent.conn.Close()
		sharedAgent.client = nil
		sharedAgent.conn = nil
	}
}

// agentAuthMethod returns an auth method using the SSH agent, or nil
// if the agent is unavailable or has no keys.
func agentAuthMethod() ssh.AuthMethod {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}

	sharedAgent.mu.Lock()
	defer sharedAgent.mu.Unlock()

	if sharedAgent.client != nil {
		if keys, err := sharedAgent.client.List(); err == nil {
			if len(keys) > 0 {
				return ssh.PublicKeysCallback(sharedAgent.client.Signers)
			}
			return nil
		}
		// Stale connection, close and retry.
		sharedAgent.conn.Close()
		sharedAgent.client = nil
		sharedAgent.conn = nil
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil
	}
	sharedAgent.conn = conn
	sharedAgent.client = agent.NewClient(conn)

	keys, err := sharedAgent.client.List()
	if err != nil || len(keys) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(sharedAgent.client.Signers)
}

// resolveHostKeyCallback builds the host key verification callback.
func resolveHostKeyCallback(opts Options) (ssh.HostKeyCallback, error) {
	if opts.HostKeyCallback != nil {
		return opts.HostKeyCallback, nil
	}

	if opts.InsecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	knownHostsPath := filepath.Join(home, ".ssh", "known_hosts")
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no known_hosts file found at %s; use --insecure to skip host key verification", knownHostsPath)
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}
