package rio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/daemonrt/rterr"
)

func TestRobustReadWrite_RoundTripOverPipe(t *testing.T) {
	p, err := NewPipe(0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	n, err := robustWrite(p.WriteFd(), []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, 7, n)

	buf := make([]byte, 16)
	n, err = robustRead(p.ReadFd(), buf)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), buf[:n])
}

func TestRobustRead_WouldBlockOnEmptyPipe(t *testing.T) {
	p, err := NewPipe(PipeNonBlockingRead)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	_, err = robustRead(p.ReadFd(), make([]byte, 4))
	require.True(t, rterr.Is(err, rterr.WouldBlock))
}

func TestRobustRead_EOFAfterWriteEndCloses(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], 0))
	t.Cleanup(func() { _ = unix.Close(fds[0]) })

	require.NoError(t, unix.Close(fds[1]))

	n, err := robustRead(fds[0], make([]byte, 4))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestTranslateErrno_KindMapping(t *testing.T) {
	cases := []struct {
		errno unix.Errno
		kind  rterr.Kind
	}{
		{unix.EAGAIN, rterr.WouldBlock},
		{unix.EPIPE, rterr.BrokenPipe},
		{unix.EACCES, rterr.PermissionDenied},
		{unix.EPERM, rterr.PermissionDenied},
		{unix.ENOENT, rterr.NoSuchEntity},
		{unix.EEXIST, rterr.AlreadyExists},
		{unix.ENOMEM, rterr.OutOfMemory},
		{unix.EMFILE, rterr.ResourceExhausted},
		{unix.EBADF, rterr.IOFailure},
	}

	for _, c := range cases {
		err := translateErrno("op", c.errno)
		require.True(t, rterr.Is(err, c.kind), "errno %v should map to %v, got %v", c.errno, c.kind, err)
	}
}

func TestOpenFile_WriteReadSeek(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")

	f, err := OpenFile(path, unix.O_CREAT|unix.O_RDWR, 0644)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	n, err := f.Write([]byte("abcdef"))
	require.NoError(t, err)
	require.Equal(t, 6, n)

	off, err := f.Seek(2, unix.SEEK_SET)
	require.NoError(t, err)
	require.EqualValues(t, 2, off)

	buf := make([]byte, 4)
	n, err = f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("cdef"), buf[:n])
}

func TestOpenFile_MissingPathIsNoSuchEntity(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "absent"), unix.O_RDONLY, 0)
	require.True(t, rterr.Is(err, rterr.NoSuchEntity))
}

func TestPipe_NonBlockingWriteFillsToWouldBlock(t *testing.T) {
	p, err := NewPipe(PipeNonBlockingWrite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	chunk := make([]byte, 4096)
	sawWouldBlock := false
	for i := 0; i < 64; i++ {
		if _, err := p.Write(chunk); err != nil {
			require.True(t, rterr.Is(err, rterr.WouldBlock))
			sawWouldBlock = true
			break
		}
	}
	require.True(t, sawWouldBlock)

	// draining the read end makes the write end writable again.
	_, err = p.Read(chunk)
	require.NoError(t, err)
	_, err = p.Write([]byte{1})
	require.NoError(t, err)
}

func TestFileStatus_AlwaysReady(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.bin")
	f, err := OpenFile(path, unix.O_CREAT|unix.O_RDWR, 0644)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	readable, writable := f.Status()
	require.True(t, readable)
	require.True(t, writable)
	require.NoError(t, os.Remove(path))
}
