package ring_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/daemonrt/rterr"
	"github.com/yanet-platform/daemonrt/ring"
)

func TestFIFO_RoundTrip(t *testing.T) {
	f := ring.New(16)
	msg := []byte("hello world")

	n, err := f.Write(msg, 0)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)

	buf := make([]byte, len(msg))
	n, err = f.Read(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)
	require.Equal(t, msg, buf)
}

func TestFIFO_NonBlockingTooLarge(t *testing.T) {
	f := ring.New(8) // usable capacity 7
	_, err := f.Write(make([]byte, 8), ring.NonBlocking)
	require.True(t, errors.Is(err, rterr.ErrTooLarge))
}

func TestFIFO_NonBlockingWouldBlock(t *testing.T) {
	f := ring.New(8)
	_, err := f.Write([]byte{1, 2, 3, 4, 5, 6}, ring.NonBlocking)
	require.NoError(t, err)

	_, err = f.Write([]byte{7}, ring.NonBlocking)
	require.True(t, errors.Is(err, rterr.ErrWouldBlock))
}

func TestFIFO_ReadEmptyNonBlockingWouldBlock(t *testing.T) {
	f := ring.New(8)
	_, err := f.Read(make([]byte, 4), ring.NonBlocking)
	require.True(t, errors.Is(err, rterr.ErrWouldBlock))
}

func TestFIFO_ShutdownBreaksReader(t *testing.T) {
	f := ring.New(8)

	var wg sync.WaitGroup
	wg.Add(1)

	var n int
	var err error
	go func() {
		defer wg.Done()
		n, err = f.Read(make([]byte, 4), 0)
	}()

	time.Sleep(10 * time.Millisecond)
	f.Shutdown()
	wg.Wait()

	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestFIFO_WriteAfterShutdownFails(t *testing.T) {
	f := ring.New(8)
	f.Shutdown()

	_, err := f.Write([]byte{1}, 0)
	require.True(t, errors.Is(err, rterr.ErrBrokenPipe))
}

func TestFIFO_BlockingWriteWrapsAround(t *testing.T) {
	f := ring.New(4) // usable capacity 3
	_, err := f.Write([]byte{1, 2, 3}, ring.NonBlocking)
	require.NoError(t, err)

	buf := make([]byte, 2)
	_, err = f.Read(buf, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, buf)

	// end wraps around begin==0 boundary now.
	_, err = f.Write([]byte{4, 5}, ring.NonBlocking)
	require.NoError(t, err)

	out := make([]byte, 3)
	n, err := f.Read(out, 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{3, 4, 5}, out)
}

func TestFIFO_ShutdownIdempotent(t *testing.T) {
	f := ring.New(4)
	f.Shutdown()
	f.Shutdown()
	require.True(t, f.ShutdownRequested())
}
