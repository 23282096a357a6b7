package rtlog

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

type bufOutput struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *bufOutput) Fd() int { return -1 }
func (b *bufOutput) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
func (b *bufOutput) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *bufOutput) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// sizedBufOutput additionally satisfies sizedOutput, enabling
// size-triggered rotation against an in-memory sink.
type sizedBufOutput struct {
	bufOutput
}

func (b *sizedBufOutput) Size() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(b.buf.Len()), nil
}

func newTestLogger(t *testing.T, out *bufOutput, level Level) *Logger {
	t.Helper()
	l, err := New(Config{Level: level, Output: out, FIFOSize: 4096})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestLogger_WritesAtConfiguredLevel(t *testing.T) {
	out := &bufOutput{}
	l := newTestLogger(t, out, LevelInfo)

	l.Sugar().Infow("hello", "k", "v")

	waitFor(t, func() bool { return strings.Contains(out.String(), "hello") })
	require.Contains(t, out.String(), "<I>")
}

func TestLogger_SuppressesBelowLevel(t *testing.T) {
	out := &bufOutput{}
	l := newTestLogger(t, out, LevelError)

	l.Sugar().Infow("should not appear")
	l.Sugar().Errorw("should appear")

	waitFor(t, func() bool { return strings.Contains(out.String(), "should appear") })
	require.NotContains(t, out.String(), "should not appear")
}

func TestLogger_DebugFilterGroupGate(t *testing.T) {
	out := &bufOutput{}
	l, err := New(Config{Level: LevelInfo, Output: out, FIFOSize: 4096})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, l.EnableDebugOverride("+event,-packet"))

	l.Zap().Named("event").Debug("event debug line", WithGroup(GroupEvent))
	l.Zap().Named("packet").Debug("packet debug line", WithGroup(GroupPacket))

	waitFor(t, func() bool { return strings.Contains(out.String(), "event debug line") })
	require.NotContains(t, out.String(), "packet debug line")
}

func TestLogger_SecondaryAlwaysReceivesEntry(t *testing.T) {
	out := &bufOutput{}
	var got string
	var mu sync.Mutex

	l, err := New(Config{
		Level:  LevelInfo,
		Output: out,
		Secondary: func(_ time.Time, _ Level, source string, _ DebugGroup, _ int, message string) {
			mu.Lock()
			got = message
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	l.Sugar().Infow("secondary test")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == "secondary test"
	})
}

func TestDebugFilter_AllKeyword(t *testing.T) {
	out := &bufOutput{}
	l, err := New(Config{Level: LevelInfo, Output: out, FIFOSize: 4096})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, l.EnableDebugOverride("-all,+packet"))

	l.Zap().Named("conn").Debug("packet inspected", WithGroup(GroupPacket))
	l.Zap().Named("conn").Debug("common detail", WithGroup(GroupCommon))

	waitFor(t, func() bool { return strings.Contains(out.String(), "packet inspected") })
	require.NotContains(t, out.String(), "common detail")
}

func TestLogger_TruncatesOversizedMessage(t *testing.T) {
	out := &bufOutput{}
	l := newTestLogger(t, out, LevelInfo)

	l.Sugar().Info(strings.Repeat("x", 1500))

	waitFor(t, func() bool { return strings.Count(out.String(), "x") == maxMessageLen-1 })
}

func TestLogger_RotationTriggersOnceAfterCountdown(t *testing.T) {
	out := &sizedBufOutput{}
	var rotations atomic.Int32

	l, err := New(Config{
		Level:         LevelInfo,
		Output:        out,
		MaxOutputSize: datasize.ByteSize(1),
		FIFOSize:      64 * 1024,
		Rotate: func(current outputIO) (Level, string, error) {
			rotations.Add(1)
			out.Reset()
			return LevelInfo, "rotated output", nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	// the size threshold is crossed immediately, but rotation must wait
	// out the 50-entry countdown and then fire exactly once.
	for i := 0; i < 60; i++ {
		l.Sugar().Infow("filler entry for rotation accounting")
	}

	waitFor(t, func() bool { return strings.Contains(out.String(), "rotated output") })
	require.EqualValues(t, 1, rotations.Load())
}

func TestNew_KeepsRunningOnMalformedDebugFilter(t *testing.T) {
	out := &bufOutput{}
	l, err := New(Config{Level: LevelInfo, Output: out, DebugFilter: "event,", FIFOSize: 4096})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	// the bad filter was rejected, not applied, and logging still works.
	l.Sugar().Infow("still alive")
	waitFor(t, func() bool { return strings.Contains(out.String(), "still alive") })
}

func TestParseDebugFilter_RejectsMalformed(t *testing.T) {
	_, err := parseDebugFilter("event")
	require.Error(t, err)

	_, err = parseDebugFilter("+event,")
	require.Error(t, err)

	entries, err := parseDebugFilter("+all,-packet:12")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestFormatLine_IncludesSourceAndLine(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	line := formatLine(ts, LevelWarn, "mysrc", GroupNone, 42, "boom")
	require.Contains(t, line, "mysrc:42")
	require.Contains(t, line, "<W>")
	require.Contains(t, line, "boom")
}
