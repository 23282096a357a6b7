package rterr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/daemonrt/rterr"
)

func TestError_IsSentinel(t *testing.T) {
	err := rterr.New("fifo.write", rterr.WouldBlock, nil)
	require.True(t, errors.Is(err, rterr.ErrWouldBlock))
	require.False(t, errors.Is(err, rterr.ErrTooLarge))
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := rterr.New("io.read", rterr.IOFailure, cause)
	require.ErrorIs(t, err, cause)
	require.True(t, rterr.Is(err, rterr.IOFailure))
}
