package writer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanet-platform/daemonrt/event"
	"github.com/yanet-platform/daemonrt/rio"
	"github.com/yanet-platform/daemonrt/rterr"
)

// pipeWriterIO adapts an rio.Pipe so Fd/Write operate on the write end
// (what actually becomes writable), since rio.Pipe.Fd reports the read end
// for the signal-bridge use case.
type pipeWriterIO struct {
	p *rio.Pipe
}

func (w pipeWriterIO) Fd() int { return w.p.WriteFd() }
func (w pipeWriterIO) Readable() bool { return false }
func (w pipeWriterIO) Writable() bool { return true }
func (w pipeWriterIO) Read(buf []byte) (int, error) { return w.p.Read(buf) }
func (w pipeWriterIO) Write(buf []byte) (int, error) { return w.p.Write(buf) }
func (w pipeWriterIO) Status() (bool, bool) { return w.p.Status() }
func (w pipeWriterIO) Close() error { return w.p.Close() }

func newTestLoop(t *testing.T) *event.Loop {
	t.Helper()
	l, err := event.New(zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func fillPipe(t *testing.T, io pipeWriterIO) {
	t.Helper()
	chunk := make([]byte, 4096)
	for i := 0; i < 64; i++ {
		if _, err := io.Write(chunk); err != nil {
			require.True(t, rterr.Is(err, rterr.WouldBlock))
			return
		}
	}
	t.Fatal("pipe never filled up")
}

func TestWriter_WritesDirectlyWhenBacklogEmpty(t *testing.T) {
	loop := newTestLoop(t)
	p, err := rio.NewPipe(rio.PipeNonBlockingWrite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	io := pipeWriterIO{p}

	require.NoError(t, loop.AddSource(io.Fd(), event.SourceGeneric, event.EventRead, func() {}, nil))

	w := New(loop, io, "peer", nil, nil, nil)
	res, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, Written, res)
	require.Equal(t, 0, w.QueueLen())
}

func TestWriter_QueuesOnWouldBlock(t *testing.T) {
	loop := newTestLoop(t)
	p, err := rio.NewPipe(rio.PipeNonBlockingWrite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	io := pipeWriterIO{p}

	require.NoError(t, loop.AddSource(io.Fd(), event.SourceGeneric, event.EventRead, func() {}, nil))
	fillPipe(t, io)

	w := New(loop, io, "peer", nil, nil, nil)
	res, err := w.Write([]byte("queued packet"))
	require.NoError(t, err)
	require.Equal(t, Queued, res)
	require.Equal(t, 1, w.QueueLen())
}

func TestWriter_DisconnectsOnHardError(t *testing.T) {
	loop := newTestLoop(t)
	p, err := rio.NewPipe(rio.PipeNonBlockingWrite)
	require.NoError(t, err)
	io := pipeWriterIO{p}
	require.NoError(t, loop.AddSource(io.Fd(), event.SourceGeneric, event.EventRead, func() {}, nil))

	var disconnected *Writer
	w := New(loop, io, "peer", func(dw *Writer) { disconnected = dw }, nil, nil)

	require.NoError(t, p.Close()) // closing both ends makes the next write fail hard (EBADF)

	_, err = w.Write([]byte("x"))
	require.Error(t, err)
	require.Same(t, w, disconnected)
}

func TestWriter_DropsOldestWhenBacklogFull(t *testing.T) {
	loop := newTestLoop(t)
	p, err := rio.NewPipe(rio.PipeNonBlockingWrite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	io := pipeWriterIO{p}
	require.NoError(t, loop.AddSource(io.Fd(), event.SourceGeneric, event.EventRead, func() {}, nil))
	fillPipe(t, io)

	w := New(loop, io, "peer", nil, nil, nil)
	for i := 0; i < MaxQueuedWrites+5; i++ {
		_, err := w.Write([]byte{byte(i)})
		require.NoError(t, err)
	}

	require.Equal(t, MaxQueuedWrites, w.QueueLen())
	require.Equal(t, uint64(5), w.DroppedPackets())
}

func TestWriter_HandleWritableDrainsEntireBacklogInOneCall(t *testing.T) {
	loop := newTestLoop(t)
	p, err := rio.NewPipe(rio.PipeNonBlockingRead | rio.PipeNonBlockingWrite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	io := pipeWriterIO{p}
	require.NoError(t, loop.AddSource(io.Fd(), event.SourceGeneric, event.EventRead, func() {}, nil))
	fillPipe(t, io)

	w := New(loop, io, "peer", nil, nil, nil)
	for i := 0; i < 5; i++ {
		res, err := w.Write([]byte{byte(i)})
		require.NoError(t, err)
		require.Equal(t, Queued, res)
	}
	require.Equal(t, 5, w.QueueLen())

	// Drain the pipe's read end so every queued packet now has room.
	buf := make([]byte, 4096)
	for {
		n, err := io.Read(buf)
		if err != nil {
			require.True(t, rterr.Is(err, rterr.WouldBlock))
			break
		}
		if n == 0 {
			break
		}
	}

	w.handleWritable()
	require.Equal(t, 0, w.QueueLen())
}

func TestNewWithPolicy_RejectsBlockProducer(t *testing.T) {
	loop := newTestLoop(t)
	p, err := rio.NewPipe(rio.PipeNonBlockingWrite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	io := pipeWriterIO{p}
	require.NoError(t, loop.AddSource(io.Fd(), event.SourceGeneric, event.EventRead, func() {}, nil))

	w, err := NewWithPolicy(loop, io, "peer", nil, nil, nil, BlockProducer)
	require.Nil(t, w)
	require.Error(t, err)
	require.True(t, rterr.Is(err, rterr.NotSupported))
}

func TestWriter_CloseWithNonEmptyBacklogDisarmsWrite(t *testing.T) {
	loop := newTestLoop(t)
	p, err := rio.NewPipe(rio.PipeNonBlockingWrite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	io := pipeWriterIO{p}
	require.NoError(t, loop.AddSource(io.Fd(), event.SourceGeneric, event.EventRead, func() {}, nil))
	fillPipe(t, io)

	w := New(loop, io, "peer", nil, nil, nil)
	_, err = w.Write([]byte("queued"))
	require.NoError(t, err)
	require.Equal(t, 1, w.QueueLen())

	require.NoError(t, w.Close())
}
