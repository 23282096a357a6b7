//go:build !linux && !windows

package event

import (
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/daemonrt/rterr"
)

// pollBackend is the generic POSIX fallback: a pollfd array rebuilt every
// iteration from the current registration set and matched back to fds by
// index.
type pollBackend struct {
	regs map[int]uint32 // fd -> requested events, insertion order not required
	fds  []int          // stable key order for building the pollfd slice
}

func newBackend() (backend, error) {
	return &pollBackend{regs: make(map[int]uint32)}, nil
}

func toPollEvents(mask uint32) int16 {
	var e int16
	if mask&backendRead != 0 {
		e |= unix.POLLIN
	}
	if mask&backendWrite != 0 {
		e |= unix.POLLOUT
	}
	return e
}

func (b *pollBackend) Add(fd int, events uint32) error {
	if _, ok := b.regs[fd]; !ok {
		b.fds = append(b.fds, fd)
	}
	b.regs[fd] = events
	return nil
}

func (b *pollBackend) Modify(fd int, events uint32) error {
	b.regs[fd] = events
	return nil
}

func (b *pollBackend) Remove(fd int) error {
	delete(b.regs, fd)
	for i, f := range b.fds {
		if f == fd {
			b.fds = append(b.fds[:i], b.fds[i+1:]...)
			break
		}
	}
	return nil
}

func (b *pollBackend) Wait(timeoutMs int) ([]readyEvent, error) {
	if len(b.fds) == 0 {
		return nil, nil
	}

	pollfds := make([]unix.PollFd, len(b.fds))
	for i, fd := range b.fds {
		pollfds[i] = unix.PollFd{Fd: int32(fd), Events: toPollEvents(b.regs[fd])}
	}

	n, err := unix.Poll(pollfds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, rterr.ErrInterrupted
		}
		return nil, rterr.New("event.poll", rterr.IOFailure, err)
	}

	ready := make([]readyEvent, 0, n)
	for _, pfd := range pollfds {
		if pfd.Revents == 0 {
			continue
		}
		var mask uint32
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			mask |= backendRead
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			mask |= backendWrite
		}
		ready = append(ready, readyEvent{fd: int(pfd.Fd), events: mask})
	}
	return ready, nil
}

func (b *pollBackend) Close() error { return nil }
