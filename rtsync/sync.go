// Package rtsync provides the mutex, condition, counting-semaphore and
// joinable-thread primitives the rest of the runtime is built on.
//
// Every operation here either succeeds or aborts the process: these
// primitives sit on paths (the logger forwarder, the writer backlog) that
// cannot meaningfully recover from corrupted synchronization state.
package rtsync

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Mutex is a thin, panicking wrapper around sync.Mutex kept only so that
// call sites read uniformly with Cond and Semaphore below.
type Mutex struct {
	mu sync.Mutex
}

func (m *Mutex) Lock() { m.mu.Lock() }
func (m *Mutex) Unlock() { m.mu.Unlock() }

// Cond is a condition variable associated with an externally-owned Mutex.
// It supports only indefinite Wait and Broadcast, never signal-one or a
// timed wait; nothing in this runtime needs either.
type Cond struct {
	cond sync.Cond
}

// NewCond associates a Cond with mu. mu must already be held by the
// expected Wait/Broadcast convention (see sync.Cond).
func NewCond(mu *Mutex) *Cond {
	return &Cond{cond: *sync.NewCond(&mu.mu)}
}

func (c *Cond) Wait() { c.cond.Wait() }
func (c *Cond) Broadcast() { c.cond.Broadcast() }

// Semaphore is a counting semaphore backed by golang.org/x/sync/semaphore.
// Acquire/Release always move weight 1; the weighted semaphore is
// otherwise unused for anything but counting.
type Semaphore struct {
	w *semaphore.Weighted
}

// semaphoreCapacity bounds how far the count can grow via Release before
// Release panics; effectively unbounded for any real producer/consumer
// pairing.
const semaphoreCapacity = int64(1) << 62

// NewSemaphore creates a semaphore with the given initial count: that
// many Acquire calls succeed before one blocks.
func NewSemaphore(initial int64) *Semaphore {
	s := &Semaphore{w: semaphore.NewWeighted(semaphoreCapacity)}
	if !s.w.TryAcquire(semaphoreCapacity - initial) {
		panic("rtsync: impossible initial semaphore state")
	}
	return s
}

// Acquire blocks until a unit is available.
func (s *Semaphore) Acquire() {
	if err := s.w.Acquire(context.Background(), 1); err != nil {
		panic(fmt.Sprintf("rtsync: semaphore acquire: %v", err))
	}
}

// Release adds one unit back to the semaphore.
func (s *Semaphore) Release() { s.w.Release(1) }

// ThreadFunc is the body run on its own goroutine by a Thread.
type ThreadFunc func()

// Thread is a joinable unit of concurrency: unlike a bare goroutine it
// can be waited on exactly once via Join. Go has no way to ask "is the
// calling goroutine this Thread's body", so calling Join from within fn
// itself simply deadlocks — callers must not do it.
type Thread struct {
	done chan struct{}
}

// StartThread launches fn on a new goroutine and returns a handle that can
// be Join-ed exactly once.
func StartThread(fn ThreadFunc) *Thread {
	t := &Thread{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		fn()
	}()
	return t
}

// Join blocks until the thread's body returns.
func (t *Thread) Join() {
	<-t.done
}
