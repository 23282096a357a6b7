//go:build linux

package event

import (
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/daemonrt/rterr"
)

// epollBackend is the Linux multiplexer: epoll_create1 plus epoll_ctl
// ADD/MOD/DEL. The fd is carried in epoll_event.data and mapped back to
// its EventSource by the loop's own index; a Go pointer cannot be
// smuggled through kernel memory.
type epollBackend struct {
	fd    int
	count int
}

func newBackend() (backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, rterr.New("event.epoll_create1", rterr.IOFailure, err)
	}
	return &epollBackend{fd: fd}, nil
}

func toEpollEvents(mask uint32) uint32 {
	var e uint32
	if mask&backendRead != 0 {
		e |= unix.EPOLLIN
	}
	if mask&backendWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func (b *epollBackend) Add(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return rterr.New("event.epoll_ctl_add", rterr.IOFailure, err)
	}
	b.count++
	return nil
}

func (b *epollBackend) Modify(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return rterr.New("event.epoll_ctl_mod", rterr.IOFailure, err)
	}
	return nil
}

func (b *epollBackend) Remove(fd int) error {
	if err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return rterr.New("event.epoll_ctl_del", rterr.IOFailure, err)
	}
	b.count--
	return nil
}

func (b *epollBackend) Wait(timeoutMs int) ([]readyEvent, error) {
	if b.count == 0 {
		// epoll_wait(-1) with no registered fds would block forever;
		// the signal pipe source is always present by the time Run
		// starts, so this only matters for standalone backend tests.
		return nil, nil
	}

	events := make([]unix.EpollEvent, b.count)
	n, err := unix.EpollWait(b.fd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, rterr.ErrInterrupted
		}
		return nil, rterr.New("event.epoll_wait", rterr.IOFailure, err)
	}

	ready := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		var mask uint32
		if events[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			mask |= backendRead
		}
		if events[i].Events&unix.EPOLLOUT != 0 {
			mask |= backendWrite
		}
		ready = append(ready, readyEvent{fd: int(events[i].Fd), events: mask})
	}
	return ready, nil
}

func (b *epollBackend) Close() error {
	if err := unix.Close(b.fd); err != nil {
		return rterr.New("event.epoll_close", rterr.IOFailure, err)
	}
	return nil
}
