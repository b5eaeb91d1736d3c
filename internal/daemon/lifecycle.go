package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"shellsense/internal/config"
)

// ReloadFunc is called on SIGHUP to reload configuration from disk.
type ReloadFunc func() error

// Run starts the daemon and blocks until shutdown. Signals:
//   - SIGTERM/SIGINT: graceful shutdown
//   - SIGHUP: reload configuration
//   - SIGPIPE: ignored
//
// A live daemon already holding the lock returns ErrAlreadyRunning.
func Run(ctx context.Context, cfg *ServerConfig) error {
	if err := CheckNotRoot(); err != nil {
		return err
	}

	paths := cfg.Paths
	if paths == nil {
		paths = config.DefaultPaths()
	}
	if err := EnsureSecureDirectory(paths.RuntimeDir); err != nil {
		return fmt.Errorf("secure runtime directory: %w", err)
	}

	lockFile := NewLockFile(paths.LockFile())
	if err := lockFile.Acquire(); err != nil {
		return err
	}
	defer lockFile.Release()

	server, err := NewServer(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signal.Ignore(syscall.SIGPIPE)

	sigChan := make(chan os.Signal, 4)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	go func() {
		for {
			select {
			case sig := <-sigChan:
				switch sig {
				case syscall.SIGTERM, syscall.SIGINT:
					server.logger.Info("received shutdown signal", "signal", sig)
					server.Shutdown()
					cancel()
					return

				case syscall.SIGHUP:
					server.logger.Info("received SIGHUP, reloading configuration")
					if cfg.ReloadFn == nil {
						server.logger.Debug("no reload function configured, ignoring SIGHUP")
						continue
					}
					if err := cfg.ReloadFn(); err != nil {
						server.logger.Error("configuration reload failed", "error", err)
					} else {
						server.logger.Info("configuration reloaded")
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return server.Start(ctx)
}

// IsRunning reports whether a daemon is alive for the given paths. The PID
// file is checked first; when it is stale or missing the held lock PID is
// the fallback, covering daemons that lost their PID file to a failed
// spawn attempt.
func IsRunning(paths *config.Paths) bool {
	if paths == nil {
		paths = config.DefaultPaths()
	}

	if pid, err := ReadPID(paths.PIDFile()); err == nil && pid > 0 {
		if isProcessAlive(pid) {
			return true
		}
	}

	lockPID, held, err := ReadHeldPID(paths.LockFile())
	if err != nil || !held || lockPID <= 0 {
		return false
	}
	return isProcessAlive(lockPID)
}

// ReadPID reads the PID file.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID: %w", err)
	}
	return pid, nil
}

// Stop sends SIGTERM to the running daemon and waits for it to exit,
// escalating to SIGKILL after ten seconds.
func Stop(paths *config.Paths) error {
	if paths == nil {
		paths = config.DefaultPaths()
	}

	pid, err := ReadPID(paths.PIDFile())
	if err != nil || pid <= 0 || !isProcessAlive(pid) {
		pid = 0
	}
	if pid == 0 {
		lockPID, held, lerr := ReadHeldPID(paths.LockFile())
		if lerr != nil {
			return fmt.Errorf("read lock PID: %w", lerr)
		}
		if !held || lockPID <= 0 {
			return fmt.Errorf("daemon not running")
		}
		pid = lockPID
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}

	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			process.Kill()
			return nil
		case <-ticker.C:
			if process.Signal(syscall.Signal(0)) != nil {
				return nil
			}
		}
	}
}

// CleanupStale removes leftover socket and PID files. Refuses to touch
// anything while a daemon is alive.
func CleanupStale(paths *config.Paths) error {
	if paths == nil {
		paths = config.DefaultPaths()
	}
	if IsRunning(paths) {
		return fmt.Errorf("daemon is still running")
	}

	if err := os.Remove(paths.SocketFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	if err := os.Remove(paths.PIDFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// WaitForSocket polls until the daemon socket appears or the timeout
// expires. Used after spawning the daemon in the background.
func WaitForSocket(ctx context.Context, paths *config.Paths, timeout time.Duration) error {
	if paths == nil {
		paths = config.DefaultPaths()
	}
	socketPath := paths.SocketFile()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(socketPath); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("socket not available after %v", timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
