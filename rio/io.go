// Package rio implements the polymorphic read/write/close I/O surface
// uniformly covering regular files, pipes, and stream sockets. Raw file
// descriptors are used throughout (golang.org/x/sys/unix) rather than
// net.Conn/os.File, because the event loop (package event) must register
// the underlying fd directly with epoll/poll — net.Conn deliberately
// hides it.
package rio

import (
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/daemonrt/rterr"
)

// IO is the common surface every concrete kind implements. An IO may be
// read-only (Write absent via Writable()==false), write-only, or
// bidirectional. After Close the handle is closed and no method may be
// called again.
type IO interface {
	// Fd returns the pollable file descriptor, for event-loop registration.
	Fd() int
	Readable() bool
	Writable() bool
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
	// Status reports readiness without transferring data, for IO kinds
	// that are status-only (no Read/Write body).
	Status() (readable, writable bool)
}

// robustRead retries a raw unix.Read on EINTR. A short read (including 0,
// which is EOF) is returned as-is — only interruption is retried
// automatically; Interrupted is never surfaced to callers.
func robustRead(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, translateErrno("rio.read", err)
		}
		return n, nil
	}
}

// robustWrite retries a raw unix.Write on EINTR. A partial write is
// acceptable and returned as a short count.
func robustWrite(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, translateErrno("rio.write", err)
		}
		return n, nil
	}
}

func translateErrno(op string, err error) error {
	switch err {
	case unix.EAGAIN:
		return rterr.New(op, rterr.WouldBlock, err)
	case unix.EPIPE:
		return rterr.New(op, rterr.BrokenPipe, err)
	case unix.EACCES, unix.EPERM:
		return rterr.New(op, rterr.PermissionDenied, err)
	case unix.ENOENT:
		return rterr.New(op, rterr.NoSuchEntity, err)
	case unix.EEXIST:
		return rterr.New(op, rterr.AlreadyExists, err)
	case unix.ENOMEM:
		return rterr.New(op, rterr.OutOfMemory, err)
	case unix.EMFILE, unix.ENFILE:
		return rterr.New(op, rterr.ResourceExhausted, err)
	default:
		return rterr.New(op, rterr.IOFailure, err)
	}
}
