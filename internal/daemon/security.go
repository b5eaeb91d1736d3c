package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// ErrRunningAsRoot is returned when the daemon starts with effective UID 0.
// The daemon reads shell history for one user; root would widen every file
// it creates to an attack surface.
var ErrRunningAsRoot = errors.New("refusing to run as root (UID 0)")

// ErrPeerDenied is returned when a connecting peer is not the same user as
// the daemon.
var ErrPeerDenied = errors.New("peer uid mismatch")

// CheckNotRoot verifies the daemon is not running with effective root
// privileges.
func CheckNotRoot() error {
	if os.Geteuid() == 0 {
		return ErrRunningAsRoot
	}
	return nil
}

// EnsureSecureDirectory creates dirPath with mode 0700, or tightens the
// mode if the directory already exists with wider permissions.
func EnsureSecureDirectory(dirPath string) error {
	info, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		return os.MkdirAll(dirPath, 0o700)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", dirPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", dirPath)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		if err := os.Chmod(dirPath, 0o700); err != nil {
			return fmt.Errorf("fix permissions on %s: %w", dirPath, err)
		}
	}
	return nil
}

// checkPeer verifies via SO_PEERCRED that the connecting process belongs
// to the same UID as the daemon. Socket file permissions already enforce
// this on most setups; the credential check holds even when an ancestor
// directory is looser than intended.
func checkPeer(conn net.Conn) error {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return fmt.Errorf("raw conn: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return fmt.Errorf("peercred control: %w", err)
	}
	if credErr != nil {
		return fmt.Errorf("peercred: %w", credErr)
	}

	if int(cred.Uid) != os.Getuid() {
		return fmt.Errorf("%w: peer uid %d, daemon uid %d", ErrPeerDenied, cred.Uid, os.Getuid())
	}
	return nil
}
