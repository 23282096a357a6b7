// Package writer implements the buffered, per-recipient packet writer: a
// direct-write-then-queue path backed by a bounded FIFO backlog, arming
// and disarming the event loop's write-readiness notification only while
// the backlog is non-empty.
package writer

import (
	"time"

	"go.uber.org/zap"

	"github.com/joeycumines/go-catrate"

	"github.com/yanet-platform/daemonrt/container"
	"github.com/yanet-platform/daemonrt/event"
	"github.com/yanet-platform/daemonrt/rio"
	"github.com/yanet-platform/daemonrt/rterr"
	"github.com/yanet-platform/daemonrt/rtsync"
)

// MaxQueuedWrites caps the backlog. Once full, the oldest queued packets
// are dropped to make room for the newest one: in protocol traffic a
// stale backlog is less useful than current messages.
const MaxQueuedWrites = 32768

// Policy selects what happens when the backlog reaches MaxQueuedWrites.
type Policy int

const (
	// DropOldest discards the oldest queued packets to make room for the
	// newest one; the default.
	DropOldest Policy = iota
	// BlockProducer would suspend the caller of Write until backlog room
	// exists instead of dropping. It is deliberately left unimplemented:
	// the only producer in this runtime is the event-loop thread itself,
	// and blocking it would stall every other registered source. NewWithPolicy
	// rejects it rather than silently falling back to DropOldest.
	BlockProducer
)

// Result reports what Write actually did with a packet.
type Result int

const (
	// Written means the packet reached the underlying IO immediately; the
	// backlog was empty and stayed empty.
	Written Result = iota
	// Queued means the packet was appended to the backlog, either because
	// the backlog was already non-empty or the direct write would have
	// blocked.
	Queued
)

// NewDropRateLimiter returns a rate limiter sized for gating the backlog-
// full warning log line under sustained backpressure: at most one line per
// recipient per second, ten per minute. Pass the result to New; pass nil
// to log every drop unconditionally.
func NewDropRateLimiter() *catrate.Limiter {
	return catrate.NewLimiter(map[time.Duration]int{
		time.Second: 1,
		time.Minute: 10,
	})
}

// Writer is a single recipient's outbound packet queue. A Writer assumes
// its io's file descriptor is already registered with loop (typically for
// EventRead); it only arms and disarms EventWrite on that existing source.
type Writer struct {
	mu rtsync.Mutex

	io        rio.IO
	loop      *event.Loop
	handle    int
	recipient string

	backlog        *container.Queue[[]byte]
	droppedPackets uint64

	onDisconnect func(*Writer)
	dropLimiter  *catrate.Limiter
	log          *zap.SugaredLogger
}

// New creates a Writer for io, registered on loop under io.Fd(), using the
// DropOldest backlog-full policy. onDisconnect receives the Writer itself
// and is invoked (with the Writer's lock held, so it must not call back
// into the Writer) each time a hard write error is observed; it is
// typically used to tear down the recipient's connection and any other
// per-recipient state. dropLimiter may be nil to log every backlog-full
// drop.
func New(loop *event.Loop, io rio.IO, recipient string, onDisconnect func(*Writer), dropLimiter *catrate.Limiter, log *zap.SugaredLogger) *Writer {
	w, err := NewWithPolicy(loop, io, recipient, onDisconnect, dropLimiter, log, DropOldest)
	if err != nil {
		// DropOldest never fails validation; a non-nil error here would be
		// a bug in NewWithPolicy itself.
		panic(err)
	}
	return w
}

// NewWithPolicy is New with an explicit backlog-full Policy. BlockProducer
// is rejected with an error rather than silently treated as DropOldest.
func NewWithPolicy(loop *event.Loop, io rio.IO, recipient string, onDisconnect func(*Writer), dropLimiter *catrate.Limiter, log *zap.SugaredLogger, policy Policy) (*Writer, error) {
	if policy == BlockProducer {
		return nil, rterr.New("writer.NewWithPolicy", rterr.NotSupported, nil)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Writer{
		io:           io,
		loop:         loop,
		handle:       io.Fd(),
		recipient:    recipient,
		backlog:      container.NewQueue[[]byte](64),
		onDisconnect: onDisconnect,
		dropLimiter:  dropLimiter,
		log:          log,
	}, nil
}

// DroppedPackets returns the cumulative count of packets dropped from the
// backlog to make room under MaxQueuedWrites.
func (w *Writer) DroppedPackets() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.droppedPackets
}

// QueueLen returns the current backlog depth.
func (w *Writer) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.backlog.Len()
}

// Write sends packet. If the backlog is empty, it tries a direct write
// first; a WouldBlock error falls through to the backlog instead of
// propagating. Any other write error disconnects the recipient and is
// returned. A copy of packet is retained if it is queued, so the caller's
// buffer may be reused immediately.
func (w *Writer) Write(packet []byte) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.backlog.Len() == 0 {
		_, err := w.io.Write(packet)
		if err == nil {
			return Written, nil
		}
		if !rterr.Is(err, rterr.WouldBlock) {
			w.disconnectLocked(err)
			return Written, err
		}
	}

	queued := make([]byte, len(packet))
	copy(queued, packet)
	w.pushToBacklogLocked(queued)
	return Queued, nil
}

func (w *Writer) pushToBacklogLocked(packet []byte) {
	if w.backlog.Len() >= MaxQueuedWrites {
		toDrop := w.backlog.Len() - MaxQueuedWrites + 1
		dropped := w.backlog.DropFront(toDrop)
		w.droppedPackets += uint64(dropped)

		if w.dropLimiter == nil {
			w.logDropped(dropped)
		} else if _, ok := w.dropLimiter.Allow(w.recipient); ok {
			w.logDropped(dropped)
		}
	}

	wasEmpty := w.backlog.Len() == 0
	w.backlog.Push(packet)

	if wasEmpty {
		if err := w.loop.ModifySource(w.handle, event.SourceGeneric, 0, event.EventWrite, nil, w.handleWritable); err != nil {
			w.log.Warnw("writer: arm write readiness failed", "recipient", w.recipient, "error", err)
		}
	}
}

func (w *Writer) logDropped(dropped int) {
	w.log.Warnw("writer: backlog full, dropping oldest queued packets",
		"recipient", w.recipient, "dropped", dropped, "total_dropped", w.droppedPackets)
}

// handleWritable is registered as the EventWrite handler while the
// backlog is non-empty. It drains the backlog, popping and writing
// successive packets until it empties or a write would block, and disarms
// write readiness once the backlog empties.
func (w *Writer) handleWritable() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.backlog.Len() > 0 {
		packet := w.backlog.Front()
		_, err := w.io.Write(packet)
		if err != nil {
			if rterr.Is(err, rterr.WouldBlock) {
				return
			}
			w.disconnectLocked(err)
			return
		}

		w.backlog.Pop()
		w.log.Debugw("writer: flushed queued packet", "recipient", w.recipient, "remaining", w.backlog.Len())
	}

	if err := w.loop.ModifySource(w.handle, event.SourceGeneric, event.EventWrite, 0, nil, nil); err != nil {
		w.log.Warnw("writer: disarm write readiness failed", "recipient", w.recipient, "error", err)
	}
}

func (w *Writer) disconnectLocked(err error) {
	w.log.Warnw("writer: hard write error, disconnecting recipient", "recipient", w.recipient, "error", err)
	if w.onDisconnect != nil {
		w.onDisconnect(w)
	}
}

// Close destroys the writer. If the backlog is still non-empty it warns
// and disarms write readiness; queued packets are discarded, never
// force-flushed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.backlog.Len() == 0 {
		return nil
	}

	w.log.Warnw("writer: destroying with packets still queued", "recipient", w.recipient, "queued", w.backlog.Len())
	return w.loop.ModifySource(w.handle, event.SourceGeneric, event.EventWrite, 0, nil, nil)
}
