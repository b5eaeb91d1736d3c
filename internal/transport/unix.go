// Package transport owns the Unix domain socket the daemon listens on and
// clients dial. It creates the runtime directory with owner-only
// permissions, recovers from stale socket files left by a crashed daemon,
// and refuses to listen when a live daemon already holds the socket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrSocketActive means the socket file exists and a daemon answered on
// it, so a second listener must not steal the path.
var ErrSocketActive = errors.New("socket is active, another daemon is running")

// liveProbeTimeout bounds the dial used to distinguish a live socket from
// a stale file.
const liveProbeTimeout = 100 * time.Millisecond

// Unix is a Unix-domain-socket transport bound to one socket path.
type Unix struct {
	socketPath string

	mu       sync.Mutex
	listener net.Listener
}

// NewUnix creates a transport for the given socket path.
func NewUnix(socketPath string) *Unix {
	return &Unix{socketPath: socketPath}
}

// SocketPath returns the socket file path.
func (t *Unix) SocketPath() string {
	return t.socketPath
}

// Listen binds the socket. The parent directory is created 0700 and the
// socket file is restricted to 0600. A stale socket file from a crashed
// daemon is removed; a responsive one returns ErrSocketActive.
func (t *Unix) Listen() (net.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dir := filepath.Dir(t.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	if err := t.removeStaleSocket(); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", t.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", t.socketPath, err)
	}

	if err := os.Chmod(t.socketPath, 0o600); err != nil {
		ln.Close()
		os.Remove(t.socketPath)
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	t.listener = ln
	return ln, nil
}

// removeStaleSocket deletes a leftover socket file, but only after a probe
// dial confirms nothing is answering on it.
func (t *Unix) removeStaleSocket() error {
	if _, err := os.Stat(t.socketPath); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat socket: %w", err)
	}

	conn, err := net.DialTimeout("unix", t.socketPath, liveProbeTimeout)
	if err == nil {
		conn.Close()
		return ErrSocketActive
	}

	if err := os.Remove(t.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

// Dial connects to the socket within the timeout.
func (t *Unix) Dial(timeout time.Duration) (net.Conn, error) {
	if _, err := os.Stat(t.socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("socket not found: %s", t.socketPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", t.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", t.socketPath, err)
	}
	return conn, nil
}

// Close shuts the listener down and removes the socket file.
func (t *Unix) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var first error
	if t.listener != nil {
		if err := t.listener.Close(); err != nil {
			first = err
		}
		t.listener = nil
	}
	if err := os.Remove(t.socketPath); err != nil && !os.IsNotExist(err) && first == nil {
		first = err
	}
	return first
}
