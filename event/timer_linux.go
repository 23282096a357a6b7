//go:build linux

package event

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/yanet-platform/daemonrt/rterr"
)

// Timer is a timerfd-backed event source: a monotonic kernel timer whose
// expirations surface as read readiness on the loop, so the callback runs
// on the loop goroutine like any other handler.
type Timer struct {
	loop *Loop
	fd   int
	fn   func()
}

// NewTimer creates a disarmed timer registered on loop. fn runs once per
// dispatch in which the timer has expired, regardless of how many
// expirations have accumulated since the previous dispatch.
func NewTimer(loop *Loop, fn func()) (*Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, rterr.New("event.timerfd_create", rterr.IOFailure, err)
	}

	t := &Timer{loop: loop, fd: fd, fn: fn}
	if err := loop.AddSource(fd, SourceGeneric, EventRead, t.handleRead, nil); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return t, nil
}

// Fd returns the underlying timerfd handle.
func (t *Timer) Fd() int { return t.fd }

// Configure arms the timer: fire once after delay, then every interval.
// A zero interval makes it one-shot; a zero delay with a zero interval
// disarms it entirely.
func (t *Timer) Configure(delay, interval time.Duration) error {
	spec := unix.ItimerSpec{
		Value:    unix.NsecToTimespec(delay.Nanoseconds()),
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		return rterr.New("event.timerfd_settime", rterr.IOFailure, err)
	}
	return nil
}

// handleRead drains the expiration counter and invokes the callback. The
// counter read is what re-arms read readiness; skipping it would make a
// level-triggered backend spin.
func (t *Timer) handleRead() {
	var buf [8]byte
	for {
		_, err := unix.Read(t.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return
		}
		if err != nil {
			t.loop.log.Errorw("could not read from timerfd", "handle", t.fd, "error", err)
			return
		}
		break
	}

	t.fn()
}

// Close unregisters the timer from the loop and closes the timerfd.
func (t *Timer) Close() error {
	t.loop.RemoveSource(t.fd, SourceGeneric)
	if err := unix.Close(t.fd); err != nil {
		return rterr.New("event.timer_close", rterr.IOFailure, err)
	}
	return nil
}
