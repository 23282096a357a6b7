// Package event implements the central readiness dispatcher: a dynamic
// set of EventSources multiplexed by a platform backend (Linux epoll, a
// generic poll(2) fallback, or Windows WSAPoll), plus the signal-to-event
// bridge built on top of it.
//
// A Handler is a plain closure that already carries its captured state,
// so there is no separate opaque pointer to thread through registration.
package event

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/yanet-platform/daemonrt/container"
	"github.com/yanet-platform/daemonrt/rterr"
	"github.com/yanet-platform/daemonrt/rtsync"
)

// SourceType distinguishes a generic, poll-compatible source from a
// platform-specific one (e.g. libusb) the loop polls opaquely.
type SourceType int

const (
	SourceGeneric SourceType = iota
	SourceUSB
)

// EventMask is a bitmask of readiness conditions.
type EventMask uint32

const (
	EventRead EventMask = 1 << iota
	EventWrite
)

// SourceState exists solely to make add/remove/modify safe when called
// from within a dispatch batch: the readiness array and the source array
// must stay index-aligned for the whole batch, so removal is deferred to
// CleanupSources and addition is not visible to backend polling until
// committed.
type SourceState int

const (
	StateNormal SourceState = iota
	StateAdded
	StateRemoved
	StateReadded
	StateModified
)

// Handler is a capability closure: a read or write callback with its state
// already captured, replacing the C {function, opaque} pair.
type Handler func()

// EventSource is a registered handle plus its callbacks and lifecycle
// state.
type EventSource struct {
	Handle  int
	Type    SourceType
	Events  EventMask
	State   SourceState
	OnRead  Handler
	OnWrite Handler
}

type sourceKey struct {
	handle int
	typ    SourceType
}

// USBPollHook lets a platform contribute extra, non-fd readiness sources
// (e.g. libusb hotplug handles) to each iteration, polled opaquely via the
// SourceUSB tag. Poll is called once per iteration when any USB sources
// are registered and should invoke the appropriate OnRead/OnWrite handlers
// itself (USB readiness doesn't flow through the fd-based backend).
type USBPollHook interface {
	Poll(timeoutMs int) error
}

// Loop is the central readiness dispatcher.
type Loop struct {
	mu      rtsync.Mutex
	backend backend
	sources *container.Array[*EventSource]
	index   map[sourceKey]int

	usbHook  USBPollHook
	usbCount int

	// loop-goroutine only: a failing USB hook is retried with
	// exponential backoff instead of once per iteration.
	usbBackoff *backoff.ExponentialBackOff
	usbRetryAt time.Time

	stopCh  chan struct{}
	stopped bool

	sig *signalBridge
	log *zap.SugaredLogger
}

// New initializes the loop and installs the signal bridge. sigusr1 is
// invoked (on the loop's own goroutine, during Run) whenever SIGUSR1
// arrives; it may be nil.
func New(log *zap.SugaredLogger, sigusr1 func()) (*Loop, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	b, err := newBackend()
	if err != nil {
		return nil, fmt.Errorf("event: create backend: %w", err)
	}

	l := &Loop{
		backend: b,
		sources: container.NewArray[*EventSource](16),
		index:   make(map[sourceKey]int),
		stopCh:  make(chan struct{}),
		log:     log,
	}

	sig, err := newSignalBridge(l, log, sigusr1)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("event: install signal bridge: %w", err)
	}
	l.sig = sig

	return l, nil
}

// SetUSBHook registers the platform USB-poll hook (see USBPollHook). Pass
// nil to clear it.
func (l *Loop) SetUSBHook(hook USBPollHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usbHook = hook
}

// AddSource adds or re-adds a source. If a source with the same
// (handle, type) is currently Removed, it is restored (state Readded);
// if it is Added or Normal, adding again is an error.
func (l *Loop) AddSource(handle int, typ SourceType, events EventMask, onRead, onWrite Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := sourceKey{handle, typ}
	if idx, ok := l.index[key]; ok {
		src := l.sources.Get(idx)
		switch src.State {
		case StateRemoved:
			// the handle is still registered with the backend (removal
			// is deferred to CleanupSources), so restore via Modify.
			src.State = StateReadded
			src.Events = events
			src.OnRead = onRead
			src.OnWrite = onWrite
			if typ == SourceGeneric {
				return l.backend.Modify(handle, toBackendMask(events))
			}
			return nil
		default:
			return rterr.New("event.add_source", rterr.AlreadyExists, nil)
		}
	}

	src := &EventSource{Handle: handle, Type: typ, Events: events, State: StateAdded, OnRead: onRead, OnWrite: onWrite}
	idx := l.sources.Append(src)
	l.index[key] = idx

	if typ == SourceUSB {
		l.usbCount++
	} else if err := l.backend.Add(handle, toBackendMask(events)); err != nil {
		l.sources.RemoveAt(idx)
		delete(l.index, key)
		l.reindexFrom(idx)
		return err
	}

	return nil
}

// ModifySource edits the event mask of an existing source, arming/
// disarming EVENT_WRITE for example — the mechanism the writer (package
// writer) uses.
func (l *Loop) ModifySource(handle int, typ SourceType, removeMask, addMask EventMask, onRead, onWrite Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := sourceKey{handle, typ}
	idx, ok := l.index[key]
	if !ok {
		return rterr.New("event.modify_source", rterr.NoSuchEntity, nil)
	}

	src := l.sources.Get(idx)
	src.Events = (src.Events &^ removeMask) | addMask
	if onRead != nil {
		src.OnRead = onRead
	}
	if onWrite != nil {
		src.OnWrite = onWrite
	}
	if src.State == StateNormal {
		src.State = StateModified
	}

	if typ == SourceGeneric {
		return l.backend.Modify(handle, toBackendMask(src.Events))
	}
	return nil
}

// RemoveSource marks a source Removed. It does not free it or
// unregister it from the backend synchronously — that happens in
// CleanupSources, the only place REMOVED sources are actually torn down,
// so a handler that removes itself mid-batch does not invalidate the
// index alignment the rest of the batch depends on.
func (l *Loop) RemoveSource(handle int, typ SourceType) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := sourceKey{handle, typ}
	idx, ok := l.index[key]
	if !ok {
		return
	}
	l.sources.Get(idx).State = StateRemoved
}

// CleanupSources is the only place REMOVED sources are unregistered from
// the backend and freed, and ADDED/READDED sources are committed to
// Normal. It is called automatically after every dispatch batch in Run,
// but is exported for callers driving their own iteration (tests).
func (l *Loop) CleanupSources() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupSourcesLocked()
}

func (l *Loop) cleanupSourcesLocked() {
	i := 0
	for i < l.sources.Len() {
		src := l.sources.Get(i)
		switch src.State {
		case StateRemoved:
			if src.Type == SourceUSB {
				l.usbCount--
			} else {
				_ = l.backend.Remove(src.Handle)
			}
			delete(l.index, sourceKey{src.Handle, src.Type})
			l.sources.RemoveAt(i)
			l.reindexFrom(i)
			continue // don't advance i; the next element shifted into i
		case StateAdded, StateReadded, StateModified:
			src.State = StateNormal
		}
		i++
	}
}

// reindexFrom refreshes l.index for slots >= from after a RemoveAt shifted
// everything down by one.
func (l *Loop) reindexFrom(from int) {
	for i := from; i < l.sources.Len(); i++ {
		src := l.sources.Get(i)
		l.index[sourceKey{src.Handle, src.Type}] = i
	}
}

// Stop asynchronously terminates Run. It is safe to call from a signal
// handler context (it only writes to the signal pipe).
func (l *Loop) Stop() {
	l.sig.requestStop()
}

// doStop closes stopCh exactly once. It is invoked from the signal
// bridge's read handler, itself run on the loop's own goroutine inside
// Run, so no extra synchronization beyond the idempotence guard is
// needed.
func (l *Loop) doStop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		close(l.stopCh)
	}
}

// Close tears down the loop: removes the signal bridge, restores default
// signal dispositions, and closes the backend. Ordered teardown errors are
// accumulated with multierr so a failure partway through doesn't abandon
// the rest of cleanup.
func (l *Loop) Close() error {
	return l.sig.close(l)
}

func toBackendMask(m EventMask) uint32 {
	var out uint32
	if m&EventRead != 0 {
		out |= backendRead
	}
	if m&EventWrite != 0 {
		out |= backendWrite
	}
	return out
}

// Run blocks, dispatching readiness until Stop is called. cleanup is
// invoked after every dispatch batch, before CleanupSources.
func (l *Loop) Run(cleanup func()) error {
	for {
		select {
		case <-l.stopCh:
			return nil
		default:
		}

		ready, err := l.backend.Wait(250)
		if err != nil {
			if rterr.Is(err, rterr.Interrupted) {
				continue
			}
			return fmt.Errorf("event: wait: %w", err)
		}

		l.dispatch(ready)
		l.pollUSB()

		if cleanup != nil {
			cleanup()
		}
		l.CleanupSources()

		select {
		case <-l.stopCh:
			return nil
		default:
		}
	}
}

func (l *Loop) pollUSB() {
	l.mu.Lock()
	hook := l.usbHook
	has := l.usbCount > 0
	l.mu.Unlock()

	if !has || hook == nil {
		return
	}
	if !l.usbRetryAt.IsZero() && time.Now().Before(l.usbRetryAt) {
		return
	}

	if err := hook.Poll(0); err != nil {
		if l.usbBackoff == nil {
			l.usbBackoff = backoff.NewExponentialBackOff()
		}
		delay := l.usbBackoff.NextBackOff()
		l.usbRetryAt = time.Now().Add(delay)
		l.log.Warnw("usb poll hook failed", "error", err, "retry_in", delay)
		return
	}

	l.usbBackoff = nil
	l.usbRetryAt = time.Time{}
}

// dispatch invokes handlers for each ready source, by index, so that a
// source readable and writable in the same iteration runs its read
// handler before its write handler.
func (l *Loop) dispatch(ready []readyEvent) {
	l.mu.Lock()
	type call struct {
		read, write Handler
	}
	var calls []call
	for _, r := range ready {
		idx, ok := l.index[sourceKey{r.fd, SourceGeneric}]
		if !ok {
			continue
		}
		src := l.sources.Get(idx)
		if src.State == StateRemoved {
			continue
		}

		var c call
		if r.events&backendRead != 0 && src.OnRead != nil {
			c.read = src.OnRead
		}
		if r.events&backendWrite != 0 && src.OnWrite != nil {
			c.write = src.OnWrite
		}
		calls = append(calls, c)
	}
	l.mu.Unlock()

	for _, c := range calls {
		if c.read != nil {
			c.read()
		}
		if c.write != nil {
			c.write()
		}
	}
}
