// Package ring implements a fixed-capacity, thread-safe byte ring buffer
// with blocking and non-blocking modes and an idempotent shutdown that
// unblocks every waiter.
package ring

import (
	"github.com/yanet-platform/daemonrt/rterr"
	"github.com/yanet-platform/daemonrt/rtsync"
)

// Flags control Write/Read blocking behavior.
type Flags uint32

const (
	// NonBlocking makes Write fail with rterr.ErrWouldBlock/ErrTooLarge
	// instead of waiting, and Read fail with rterr.ErrWouldBlock when
	// empty-and-not-shutdown instead of waiting.
	NonBlocking Flags = 1 << iota
)

// FIFO is a fixed-capacity ring buffer of bytes. One slot of length is
// always reserved so begin==end unambiguously means empty; the usable
// capacity is therefore length-1.
type FIFO struct {
	mu                rtsync.Mutex
	writableCond      *rtsync.Cond
	readableCond      *rtsync.Cond
	buffer            []byte
	begin, end        int // begin inclusive, end exclusive
	shutdownRequested bool
}

// New creates a FIFO whose usable capacity is length-1 bytes.
func New(length int) *FIFO {
	if length < 2 {
		panic("ring: length must be at least 2")
	}
	f := &FIFO{buffer: make([]byte, length)}
	f.writableCond = rtsync.NewCond(&f.mu)
	f.readableCond = rtsync.NewCond(&f.mu)
	return f
}

// Cap returns the usable capacity (length - 1).
func (f *FIFO) Cap() int { return len(f.buffer) - 1 }

func (f *FIFO) writableAtAll() int {
	if f.begin <= f.end {
		return len(f.buffer) - (f.end - f.begin) - 1
	}
	return f.begin - f.end - 1
}

func (f *FIFO) writableAtOnce() int {
	if f.begin <= f.end {
		if f.begin == 0 {
			return len(f.buffer) - f.end - 1
		}
		return len(f.buffer) - f.end
	}
	return f.begin - f.end - 1
}

func (f *FIFO) readableAtAll() int {
	if f.begin <= f.end {
		return f.end - f.begin
	}
	return len(f.buffer) - (f.begin - f.end)
}

func (f *FIFO) readableAtOnce() int {
	if f.begin <= f.end {
		return f.end - f.begin
	}
	return len(f.buffer) - f.begin
}

// Write places exactly len(buf) bytes into the FIFO, or fails — it never
// short-writes. In blocking mode it places bytes as space becomes
// available, waiting whenever the ring is full and re-checking shutdown
// on every wakeup, until all of buf is placed. In non-blocking mode it fails
// immediately with ErrWouldBlock (not enough space right now) or
// ErrTooLarge (buf can never fit).
func (f *FIFO) Write(buf []byte, flags Flags) (int, error) {
	blocking := flags&NonBlocking == 0
	length := len(buf)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shutdownRequested {
		return 0, rterr.New("ring.write", rterr.BrokenPipe, nil)
	}
	if length <= 0 {
		return 0, nil
	}

	if !blocking {
		if length > f.Cap() {
			return 0, rterr.New("ring.write", rterr.TooLarge, nil)
		}
		if length > f.writableAtAll() {
			return 0, rterr.New("ring.write", rterr.WouldBlock, nil)
		}
	}

	written := 0
	for length-written > 0 {
		if blocking {
			for f.writableAtAll() <= 0 {
				f.writableCond.Wait()
				if f.shutdownRequested {
					return 0, rterr.New("ring.write", rterr.BrokenPipe, nil)
				}
			}
		}

		chunk := f.writableAtOnce()
		if chunk > length-written {
			chunk = length - written
		}

		copy(f.buffer[f.end:f.end+chunk], buf[written:written+chunk])
		f.end = (f.end + chunk) % len(f.buffer)
		written += chunk

		f.readableCond.Broadcast()
	}

	return written, nil
}

// Read copies up to len(buf) bytes out of the FIFO, possibly short-reading.
// It returns (0, nil) iff the FIFO is empty and shut down (end-of-stream).
// Blocking mode waits only until at least one byte is available.
// Non-blocking mode fails with ErrWouldBlock when empty-and-not-shutdown.
func (f *FIFO) Read(buf []byte, flags Flags) (int, error) {
	blocking := flags&NonBlocking == 0
	length := len(buf)

	f.mu.Lock()
	defer f.mu.Unlock()

	if length <= 0 {
		return 0, nil
	}

	if f.readableAtAll() <= 0 {
		if f.shutdownRequested {
			return 0, nil
		}
		if !blocking {
			return 0, rterr.New("ring.read", rterr.WouldBlock, nil)
		}
	}

	if blocking {
		for f.readableAtAll() <= 0 {
			f.readableCond.Wait()
			if f.shutdownRequested {
				break
			}
		}
	}

	read := 0
	for f.readableAtAll() > 0 && length-read > 0 {
		chunk := f.readableAtOnce()
		if chunk > length-read {
			chunk = length - read
		}

		copy(buf[read:read+chunk], f.buffer[f.begin:f.begin+chunk])
		f.begin = (f.begin + chunk) % len(f.buffer)
		read += chunk

		f.writableCond.Broadcast()
	}

	return read, nil
}

// Shutdown marks the FIFO as shut down and wakes every waiter. Idempotent.
func (f *FIFO) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.shutdownRequested = true
	f.writableCond.Broadcast()
	f.readableCond.Broadcast()
}

// ShutdownRequested reports whether Shutdown has been called.
func (f *FIFO) ShutdownRequested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdownRequested
}
