package daemon

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/yanet-platform/daemonrt/rterr"
)

// PIDFile holds an exclusively-locked PID file: plain text, a single
// decimal PID, acquired with an exclusive advisory lock on the file's own
// descriptor. Release is Close.
type PIDFile struct {
	f *os.File
}

// AcquirePIDFile opens path (creating it if absent), takes a non-blocking
// exclusive flock, and writes the calling process's PID. If the lock is
// already held, it returns rterr.ErrAlreadyExists so callers can report
// "already running" distinctly from other I/O errors.
func AcquirePIDFile(path string) (*PIDFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, rterr.New("daemon.AcquirePIDFile", rterr.IOFailure, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, rterr.New("daemon.AcquirePIDFile", rterr.AlreadyExists, err)
		}
		return nil, rterr.New("daemon.AcquirePIDFile", rterr.IOFailure, err)
	}

	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, rterr.New("daemon.AcquirePIDFile", rterr.IOFailure, err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, rterr.New("daemon.AcquirePIDFile", rterr.IOFailure, err)
	}

	return &PIDFile{f: f}, nil
}

// Close releases the lock and closes the file. It does not remove path;
// a subsequent AcquirePIDFile call reuses the file, which is harmless
// once unlocked.
func (p *PIDFile) Close() error {
	if err := unix.Flock(int(p.f.Fd()), unix.LOCK_UN); err != nil {
		p.f.Close()
		return fmt.Errorf("daemon: release pid file lock: %w", err)
	}
	return p.f.Close()
}
