package event

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanet-platform/daemonrt/rio"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := New(zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLoop_AddDispatchRemoveSource(t *testing.T) {
	l := newTestLoop(t)

	p, err := rio.NewPipe(rio.PipeNonBlockingRead)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	readCalled := false
	err = l.AddSource(p.ReadFd(), SourceGeneric, EventRead, func() { readCalled = true }, nil)
	require.NoError(t, err)

	// duplicate add without an intervening remove is rejected.
	err = l.AddSource(p.ReadFd(), SourceGeneric, EventRead, nil, nil)
	require.Error(t, err)

	_, err = p.Write([]byte("x"))
	require.NoError(t, err)

	ready, err := l.backend.Wait(1000)
	require.NoError(t, err)
	l.dispatch(ready)
	require.True(t, readCalled)

	l.RemoveSource(p.ReadFd(), SourceGeneric)
	l.CleanupSources()

	// after cleanup, re-adding the same (handle, type) succeeds again.
	err = l.AddSource(p.ReadFd(), SourceGeneric, EventRead, func() {}, nil)
	require.NoError(t, err)
}

func TestLoop_ModifySourceUnknown(t *testing.T) {
	l := newTestLoop(t)
	err := l.ModifySource(999, SourceGeneric, 0, EventWrite, nil, nil)
	require.Error(t, err)
}

func TestLoop_StopTerminatesRun(t *testing.T) {
	l := newTestLoop(t)

	done := make(chan error, 1)
	go func() { done <- l.Run(func() {}) }()

	l.Stop()

	err := <-done
	require.NoError(t, err)
}

func TestLoop_CleanupCommitsAddedToNormal(t *testing.T) {
	l := newTestLoop(t)

	p, err := rio.NewPipe(rio.PipeNonBlockingRead)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, l.AddSource(p.ReadFd(), SourceGeneric, EventRead, func() {}, nil))

	idx := l.index[sourceKey{p.ReadFd(), SourceGeneric}]
	require.Equal(t, StateAdded, l.sources.Get(idx).State)

	l.CleanupSources()

	idx = l.index[sourceKey{p.ReadFd(), SourceGeneric}]
	require.Equal(t, StateNormal, l.sources.Get(idx).State)
}

func TestLoop_DeferredRemovalMidBatch(t *testing.T) {
	l := newTestLoop(t)

	p1, err := rio.NewPipe(rio.PipeNonBlockingRead)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p1.Close() })
	p2, err := rio.NewPipe(rio.PipeNonBlockingRead)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p2.Close() })

	var fired []int
	require.NoError(t, l.AddSource(p1.ReadFd(), SourceGeneric, EventRead, func() {
		fired = append(fired, 1)
		l.RemoveSource(p1.ReadFd(), SourceGeneric)
	}, nil))
	require.NoError(t, l.AddSource(p2.ReadFd(), SourceGeneric, EventRead, func() {
		fired = append(fired, 2)
	}, nil))

	_, err = p1.Write([]byte{1})
	require.NoError(t, err)
	_, err = p2.Write([]byte{1})
	require.NoError(t, err)

	ready, err := l.backend.Wait(1000)
	require.NoError(t, err)
	require.Len(t, ready, 2)

	// the handler that removes its own source must not stop the rest of
	// the batch from running.
	l.dispatch(ready)
	require.ElementsMatch(t, []int{1, 2}, fired)

	l.CleanupSources()
	_, ok := l.index[sourceKey{p1.ReadFd(), SourceGeneric}]
	require.False(t, ok)
	_, ok = l.index[sourceKey{p2.ReadFd(), SourceGeneric}]
	require.True(t, ok)
}

func TestLoop_ReaddRestoresRemovedSource(t *testing.T) {
	l := newTestLoop(t)

	p, err := rio.NewPipe(rio.PipeNonBlockingRead)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, l.AddSource(p.ReadFd(), SourceGeneric, EventRead, func() {}, nil))
	l.CleanupSources()

	l.RemoveSource(p.ReadFd(), SourceGeneric)
	require.NoError(t, l.AddSource(p.ReadFd(), SourceGeneric, EventRead, func() {}, nil))

	idx := l.index[sourceKey{p.ReadFd(), SourceGeneric}]
	require.Equal(t, StateReadded, l.sources.Get(idx).State)

	l.CleanupSources()

	idx = l.index[sourceKey{p.ReadFd(), SourceGeneric}]
	require.Equal(t, StateNormal, l.sources.Get(idx).State)
}
