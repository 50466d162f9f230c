// Package transfer pushes a local file to many hosts over SFTP with
// the same bounded-concurrency, independent-failure model as command
// execution.
package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/sync/errgroup"

	"github.com/trentearl/mssh/internal/hostspec"
	"github.com/trentearl/mssh/internal/ssh"
)

// Result holds the outcome of a file push for a single host. A failed
// host never aborts its siblings.
type Result struct {
	Host           hostspec.RemoteHost
	BytesSent      int64
	Checksum       string
	DurationMillis uint64
	Err            error
}

// Executor runs pushes in parallel across hosts.
type Executor struct {
	dialer      *ssh.Dialer
	concurrency int
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency sets the maximum number of parallel pushes.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates a transfer Executor.
func New(dialer *ssh.Dialer, opts ...Option) *Executor {
	e := &Executor{
		dialer:      dialer,
		concurrency: 10,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Push uploads a local file to the same remote path on every host.
// Results are returned in input host order.
func (e *Executor) Push(ctx context.Context, hosts []hostspec.RemoteHost, localPath, remotePath string) []*Result {
	results := make([]*Result, len(hosts))

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)

	for i, host := range hosts {
		g.Go(func() error {
			start := time.Now()
			r := &Result{Host: host}
			r.Checksum, r.BytesSent, r.Err = e.pushOne(ctx, host, localPath, remotePath)
			r.DurationMillis = uint64(time.Since(start).Milliseconds())
			results[i] = r
			return nil
		})
	}

	g.Wait()
	return results
}

// pushOne uploads the file to one host over a fresh one-shot session
// and verifies the remote SHA-256 against the bytes sent.
func (e *Executor) pushOne(ctx context.Context, host hostspec.RemoteHost, localPath, remotePath string) (checksum string, written int64, err error) {
	localFile, err := os.Open(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("open local file: %w", err)
	}
	defer localFile.Close()

	sess, err := e.dialer.DialSession(ctx, host)
	if err != nil {
		return "", 0, fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	sftpClient, err := sftp.NewClient(sess.Client())
	if err != nil {
		return "", 0, fmt.Errorf("sftp client: %w", err)
	}
	defer sftpClient.Close()

	// Use path (not filepath): remotePath is always a Unix path.
	remoteDir := path.Dir(remotePath)
	if remoteDir != "." && remoteDir != "/" {
		if err := sftpClient.MkdirAll(remoteDir); err != nil {
			return "", 0, fmt.Errorf("create remote dir %s: %w", remoteDir, err)
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return "", 0, fmt.Errorf("create remote file: %w", err)
	}

	hasher := sha256.New()
	written, err = copyWithContext(ctx, io.MultiWriter(remoteFile, hasher), localFile)
	// Close the remote file to flush writes before verification.
	remoteFile.Close()
	if err != nil {
		return "", written, fmt.Errorf("copy: %w", err)
	}

	localChecksum := hex.EncodeToString(hasher.Sum(nil))

	remoteChecksum, err := remoteSHA256(sftpClient, remotePath)
	if err != nil {
		return localChecksum, written, fmt.Errorf("remote checksum verification failed: %w", err)
	}
	if remoteChecksum != localChecksum {
		return localChecksum, written, fmt.Errorf("checksum mismatch: local=%s remote=%s", localChecksum, remoteChecksum)
	}

	return localChecksum, written, nil
}

// remoteSHA256 reads the remote file back over the same SFTP session.
// This avoids shell injection risks and doesn't require sha256sum on
// the remote host.
func remoteSHA256(sftpClient *sftp.Client, remotePath string) (string, error) {
	f, err := sftpClient.Open(remotePath)
	if err != nil {
		return "", fmt.Errorf("open remote file for checksum: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("read remote file for checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// copyWithContext copies from src to dst, checking for context
// cancellation between chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
