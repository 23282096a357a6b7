package rio

import (
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/daemonrt/rterr"
)

// Socket wraps a stream socket and records its address family.
// CreateAllocated is the per-listener factory the accept loop invokes for
// every accepted connection, so a caller can substitute a subclass (e.g.
// a TLS-wrapped Socket) polymorphically.
type Socket struct {
	fd              int
	family          int
	CreateAllocated func() *Socket
}

// NewTCPListener opens, binds and listens on a TCP4/TCP6 address:
// open -> reuseaddr -> bind -> listen. Name resolution is the caller's
// concern; only ready sockaddrs are accepted here.
func NewTCPListener(family int, sockaddr unix.Sockaddr, backlog int, createAllocated func() *Socket) (*Socket, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, translateErrno("socket.open", err)
	}

	s := &Socket{fd: fd, family: family, CreateAllocated: createAllocated}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		s.Close()
		return nil, translateErrno("socket.reuseaddr", err)
	}

	if err := unix.Bind(fd, sockaddr); err != nil {
		s.Close()
		return nil, translateErrno("socket.bind", err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		s.Close()
		return nil, translateErrno("socket.listen", err)
	}

	return s, nil
}

// Accept accepts one pending connection and mints it via CreateAllocated.
// A nil CreateAllocated defaults to plain *Socket construction.
func (s *Socket) Accept() (*Socket, unix.Sockaddr, error) {
	connFd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, nil, translateErrno("socket.accept", err)
	}

	var accepted *Socket
	if s.CreateAllocated != nil {
		accepted = s.CreateAllocated()
		accepted.fd = connFd
		accepted.family = s.family
	} else {
		accepted = &Socket{fd: connFd, family: s.family}
	}

	return accepted, sa, nil
}

// Dial connects a new client socket, non-blocking.
func Dial(family int, sockaddr unix.Sockaddr) (*Socket, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, translateErrno("socket.open", err)
	}

	if err := unix.Connect(fd, sockaddr); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, translateErrno("socket.connect", err)
	}

	return &Socket{fd: fd, family: family}, nil
}

func (s *Socket) Fd() int { return s.fd }
func (s *Socket) Family() int { return s.family }
func (s *Socket) Readable() bool { return true }
func (s *Socket) Writable() bool { return true }

// Read receives bytes, translating a zero-byte EAGAIN result into a
// writability-style WouldBlock error rather than treating it as EOF.
func (s *Socket) Read(buf []byte) (int, error) {
	n, err := unix.Read(s.fd, buf)
	if err == unix.EINTR {
		return s.Read(buf)
	}
	if err != nil {
		return 0, translateErrno("socket.receive", err)
	}
	return n, nil
}

// Write sends bytes. A zero-length short write reported as EAGAIN is a
// writability signal, not an error — the buffered writer relies on
// distinguishing this from a hard failure.
func (s *Socket) Write(buf []byte) (int, error) {
	n, err := unix.Write(s.fd, buf)
	if err == unix.EINTR {
		return s.Write(buf)
	}
	if err == unix.EAGAIN {
		return 0, rterr.New("socket.send", rterr.WouldBlock, err)
	}
	if err != nil {
		return n, translateErrno("socket.send", err)
	}
	return n, nil
}

func (s *Socket) Status() (readable, writable bool) { return true, true }

func (s *Socket) Close() error {
	if err := unix.Close(s.fd); err != nil {
		return translateErrno("socket.close", err)
	}
	return nil
}
