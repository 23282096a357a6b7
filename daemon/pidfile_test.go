package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/daemonrt/rterr"
)

func TestAcquirePIDFile_WritesOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	pf, err := AcquirePIDFile(path)
	require.NoError(t, err)
	defer pf.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	got, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), got)
}

func TestAcquirePIDFile_SecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	pf, err := AcquirePIDFile(path)
	require.NoError(t, err)
	defer pf.Close()

	_, err = AcquirePIDFile(path)
	require.Error(t, err)
	require.True(t, rterr.Is(err, rterr.AlreadyExists))
}

func TestAcquirePIDFile_ReacquireAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	pf, err := AcquirePIDFile(path)
	require.NoError(t, err)
	require.NoError(t, pf.Close())

	pf2, err := AcquirePIDFile(path)
	require.NoError(t, err)
	require.NoError(t, pf2.Close())
}
