package rio

import (
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/daemonrt/rterr"
)

// File wraps a regular file or character device.
type File struct {
	fd int
}

// OpenFile opens name with the given unix open(2) flags and mode.
// O_NONBLOCK is honored after opening (matching file_create's
// open-then-fcntl sequence, needed because some special files misbehave
// when opened directly with O_NONBLOCK).
func OpenFile(name string, flags int, mode uint32) (*File, error) {
	fd, err := unix.Open(name, flags&^unix.O_NONBLOCK, mode)
	if err != nil {
		return nil, translateErrno("file.open", err)
	}

	if flags&unix.O_NONBLOCK != 0 {
		if err := setNonBlocking(fd); err != nil {
			_ = unix.Close(fd)
			return nil, err
		}
	}

	return &File{fd: fd}, nil
}

func setNonBlocking(fd int) error {
	cur, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return translateErrno("file.setNonBlocking", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, cur|unix.O_NONBLOCK); err != nil {
		return translateErrno("file.setNonBlocking", err)
	}
	return nil
}

func (f *File) Fd() int { return f.fd }
func (f *File) Readable() bool { return true }
func (f *File) Writable() bool { return true }
func (f *File) Read(buf []byte) (int, error) { return robustRead(f.fd, buf) }
func (f *File) Write(buf []byte) (int, error) { return robustWrite(f.fd, buf) }

func (f *File) Close() error {
	if err := unix.Close(f.fd); err != nil {
		return translateErrno("file.close", err)
	}
	return nil
}

// Status is not meaningful for a regular file (always ready); it is
// present only to satisfy the IO interface.
func (f *File) Status() (readable, writable bool) { return true, true }

// Seek repositions the file offset, matching file_seek.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	off, err := unix.Seek(f.fd, offset, whence)
	if err != nil {
		return 0, rterr.New("file.seek", rterr.IOFailure, err)
	}
	return off, nil
}
