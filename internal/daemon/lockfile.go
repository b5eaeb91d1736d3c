package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning means another live daemon holds the lock file. The
// daemon binary maps it to a distinct exit code so shell integrations can
// tell "already running" from real failures.
var ErrAlreadyRunning = errors.New("daemon already running")

// ExitCodeAlreadyRunning is the process exit code for ErrAlreadyRunning.
const ExitCodeAlreadyRunning = 4

// LockFile guards against double-started daemons with flock(2),
// LOCK_EX|LOCK_NB. The holder's PID is written into the file so a stale
// lock from a crashed daemon can be detected and reclaimed.
type LockFile struct {
	file *os.File
	path string
}

// NewLockFile creates a LockFile at the given path. The lock is not
// acquired until Acquire is called.
func NewLockFile(path string) *LockFile {
	return &LockFile{path: path}
}

// Path returns the lock file path.
func (l *LockFile) Path() string {
	return l.path
}

// Acquire takes the exclusive lock, reclaiming it if the recorded holder
// PID no longer refers to a live process. A live holder yields
// ErrAlreadyRunning.
func (l *LockFile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	f, err := l.tryLock()
	if err == nil {
		l.file = f
		return nil
	}
	if !errors.Is(err, ErrAlreadyRunning) {
		return err
	}

	// Lock is held. If the holder died without cleanup, reclaim once.
	pid, held, perr := ReadHeldPID(l.path)
	if perr == nil && held && pid > 0 && !isProcessAlive(pid) {
		os.Remove(l.path)
		f, err = l.tryLock()
		if err == nil {
			l.file = f
			return nil
		}
		return err
	}

	if pid > 0 {
		return fmt.Errorf("%w (pid %d, lock %s)", ErrAlreadyRunning, pid, l.path)
	}
	return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, l.path)
}

// tryLock opens the lock file and attempts a non-blocking exclusive lock,
// writing the current PID on success.
func (l *LockFile) tryLock() (*os.File, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("flock %s: %w", l.path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pid to lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync lock file: %w", err)
	}
	return f, nil
}

// Release drops the lock and removes the file.
func (l *LockFile) Release() error {
	if l.file == nil {
		return nil
	}

	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}
	l.file = nil

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// ReadHeldPID returns the PID recorded in the lock file, but only when the
// lock is actually held by another process. It is the recovery path for a
// stale or missing PID file while the daemon itself is alive.
func ReadHeldPID(lockPath string) (pid int, held bool, err error) {
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close()

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return 0, false, nil
	}
	if !errors.Is(err, syscall.EWOULDBLOCK) && !errors.Is(err, syscall.EAGAIN) {
		return 0, false, fmt.Errorf("flock: %w", err)
	}

	buf := make([]byte, 32)
	n, rerr := f.Read(buf)
	if rerr != nil || n == 0 {
		return 0, true, nil
	}
	pid, _ = strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	return pid, true, nil
}

// isProcessAlive probes a PID with signal 0.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
