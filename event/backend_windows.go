//go:build windows

package event

import (
	"golang.org/x/sys/windows"

	"github.com/yanet-platform/daemonrt/rterr"
)

// wsaPollBackend follows pollBackend's map-driven registration but
// multiplexes via WSAPoll, the Winsock equivalent of poll(2). Only socket
// handles are pollable on Windows; anonymous pipes are not.
type wsaPollBackend struct {
	regs map[int]uint32
	fds  []int
}

func newBackend() (backend, error) {
	return &wsaPollBackend{regs: make(map[int]uint32)}, nil
}

func toWSAPollEvents(mask uint32) int16 {
	var e int16
	if mask&backendRead != 0 {
		e |= windows.POLLIN
	}
	if mask&backendWrite != 0 {
		e |= windows.POLLOUT
	}
	return e
}

func (b *wsaPollBackend) Add(fd int, events uint32) error {
	if _, ok := b.regs[fd]; !ok {
		b.fds = append(b.fds, fd)
	}
	b.regs[fd] = events
	return nil
}

func (b *wsaPollBackend) Modify(fd int, events uint32) error {
	b.regs[fd] = events
	return nil
}

func (b *wsaPollBackend) Remove(fd int) error {
	delete(b.regs, fd)
	for i, f := range b.fds {
		if f == fd {
			b.fds = append(b.fds[:i], b.fds[i+1:]...)
			break
		}
	}
	return nil
}

func (b *wsaPollBackend) Wait(timeoutMs int) ([]readyEvent, error) {
	if len(b.fds) == 0 {
		return nil, nil
	}

	pollfds := make([]windows.WSAPollFd, len(b.fds))
	for i, fd := range b.fds {
		pollfds[i] = windows.WSAPollFd{Fd: windows.Handle(fd), Events: toWSAPollEvents(b.regs[fd])}
	}

	n, err := windows.WSAPoll(&pollfds[0], uint32(len(pollfds)), int32(timeoutMs))
	if err != nil {
		return nil, rterr.New("event.wsapoll", rterr.IOFailure, err)
	}

	ready := make([]readyEvent, 0, int(n))
	for _, pfd := range pollfds {
		if pfd.Revents == 0 {
			continue
		}
		var mask uint32
		if pfd.Revents&(windows.POLLIN|windows.POLLHUP|windows.POLLERR) != 0 {
			mask |= backendRead
		}
		if pfd.Revents&windows.POLLOUT != 0 {
			mask |= backendWrite
		}
		ready = append(ready, readyEvent{fd: int(pfd.Fd), events: mask})
	}
	return ready, nil
}

func (b *wsaPollBackend) Close() error { return nil }
