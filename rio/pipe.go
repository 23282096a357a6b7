package rio

import "golang.org/x/sys/unix"

// PipeFlags select which pipe ends are opened non-blocking.
type PipeFlags uint32

const (
	PipeNonBlockingRead PipeFlags = 1 << iota
	PipeNonBlockingWrite
)

// Pipe is a pair of half-handles: a read end and a write end. It is the
// vehicle the signal bridge (event package) uses to inject events into
// the poll-based loop.
type Pipe struct {
	readFd, writeFd int
}

// NewPipe creates an OS pipe, optionally marking either end non-blocking.
func NewPipe(flags PipeFlags) (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], 0); err != nil {
		return nil, translateErrno("pipe.create", err)
	}

	p := &Pipe{readFd: fds[0], writeFd: fds[1]}

	if flags&PipeNonBlockingRead != 0 {
		if err := setNonBlocking(p.readFd); err != nil {
			p.Close()
			return nil, err
		}
	}
	if flags&PipeNonBlockingWrite != 0 {
		if err := setNonBlocking(p.writeFd); err != nil {
			p.Close()
			return nil, err
		}
	}

	return p, nil
}

// ReadFd returns the descriptor the event loop registers for readability.
func (p *Pipe) ReadFd() int { return p.readFd }

// WriteFd returns the descriptor producers (e.g. a signal handler
// goroutine) write to.
func (p *Pipe) WriteFd() int { return p.writeFd }

// Fd satisfies IO by exposing the read end, the one the event loop polls.
func (p *Pipe) Fd() int { return p.readFd }

func (p *Pipe) Readable() bool { return true }
func (p *Pipe) Writable() bool { return true }

func (p *Pipe) Read(buf []byte) (int, error) { return robustRead(p.readFd, buf) }
func (p *Pipe) Write(buf []byte) (int, error) { return robustWrite(p.writeFd, buf) }

func (p *Pipe) Status() (readable, writable bool) { return true, true }

func (p *Pipe) Close() error {
	err1 := unix.Close(p.readFd)
	err2 := unix.Close(p.writeFd)
	if err1 != nil {
		return translateErrno("pipe.close", err1)
	}
	if err2 != nil {
		return translateErrno("pipe.close", err2)
	}
	return nil
}
