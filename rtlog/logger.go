package rtlog

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"

	"github.com/yanet-platform/daemonrt/ring"
	"github.com/yanet-platform/daemonrt/rtsync"
)

// DefaultFIFOSize is the default producer/forwarder buffer length.
const DefaultFIFOSize = 256 * 1024

// maxRotateCountdown: after a rotation (or on startup) this many entries
// must be written before size is rechecked, so a rotate hook that can't
// shrink the file doesn't spin.
const maxRotateCountdown = 50

const defaultMaxOutputSize = 5 * datasize.MB

// RotateFunc is invoked when the primary output has grown past the
// configured size threshold. It must rotate (or truncate) current in
// place and return a short status message; a non-nil error disables
// rotation and clears the output entirely rather than risking unbounded
// growth.
type RotateFunc func(current outputIO) (statusLevel Level, statusMessage string, err error)

// SecondaryFunc receives every entry regardless of the primary output's
// level/debug-group filtering — an extension point for forwarding to
// syslog or a remote collector.
type SecondaryFunc func(ts time.Time, level Level, sourceName string, group DebugGroup, line int, message string)

// Config controls logger construction.
type Config struct {
	Level         Level
	DebugFilter   string // log.debug_filter grammar; empty disables
	Output        outputIO
	Rotate        RotateFunc
	MaxOutputSize datasize.ByteSize
	Secondary     SecondaryFunc
	FIFOSize      int
}

// DefaultConfig is the configuration applied absent any config file
// overrides: level INFO, stderr output, no rotation.
func DefaultConfig() Config {
	return Config{
		Level:         LevelInfo,
		Output:        stderrIO{},
		MaxOutputSize: defaultMaxOutputSize,
		FIFOSize:      DefaultFIFOSize,
	}
}

type stderrIO struct{}

func (stderrIO) Fd() int { return int(os.Stderr.Fd()) }
func (stderrIO) Write(b []byte) (int, error) { return os.Stderr.Write(b) }

// Logger is the asynchronous logger. Construct one with New and log
// through Logger.Zap()/Sugar(), its only logging entry points.
type Logger struct {
	commonMu      rtsync.Mutex
	level         Level
	debugOverride bool
	filterVersion int
	filterEntries []filterEntry
	sources       map[string]*source

	outputMu        rtsync.Mutex
	output          outputIO
	outputSize      int64 // -1 when size tracking isn't available
	rotate          RotateFunc
	rotateCountdown int
	maxOutputSize   int64

	secondary SecondaryFunc

	fifo    *ring.FIFO
	forward *rtsync.Thread

	zapLogger *zap.Logger
}

// New starts the forwarder goroutine and returns a ready Logger. Close
// must be called to drain and stop it. A malformed cfg.DebugFilter is
// rejected with a stderr warning and no filter is applied; it never
// fails construction, so a bad config value cannot take the daemon's
// logging down with it.
func New(cfg Config) (*Logger, error) {
	if cfg.Output == nil {
		cfg.Output = stderrIO{}
	}
	if cfg.MaxOutputSize == 0 {
		cfg.MaxOutputSize = defaultMaxOutputSize
	}
	if cfg.FIFOSize <= 0 {
		cfg.FIFOSize = DefaultFIFOSize
	}

	l := &Logger{
		level:         cfg.Level,
		sources:       make(map[string]*source),
		maxOutputSize: int64(cfg.MaxOutputSize),
		secondary:     cfg.Secondary,
		fifo:          ring.New(cfg.FIFOSize),
	}
	l.setOutputLocked(cfg.Output, cfg.Rotate)

	if cfg.DebugFilter != "" {
		if err := l.SetDebugFilter(cfg.DebugFilter); err != nil {
			fmt.Fprintf(os.Stderr, "rtlog: rejecting debug filter: %v\n", err)
		}
	}

	l.forward = rtsync.StartThread(l.forwardLoop)
	l.zapLogger = zap.New(newCore(l))

	return l, nil
}

// SetDebugFilter replaces the debug filter table, bumping the generation
// counter so every cached source refreshes its included groups/lines
// lazily on next use.
func (l *Logger) SetDebugFilter(filter string) error {
	entries, err := parseDebugFilter(filter)
	if err != nil {
		return err
	}

	l.commonMu.Lock()
	l.filterEntries = entries
	l.filterVersion++
	l.commonMu.Unlock()
	return nil
}

// EnableDebugOverride forces the effective level to Debug regardless of
// the configured level, gated by the same filter grammar.
func (l *Logger) EnableDebugOverride(filter string) error {
	if err := l.SetDebugFilter(filter); err != nil {
		return err
	}
	l.commonMu.Lock()
	l.debugOverride = true
	l.commonMu.Unlock()
	return nil
}

// EffectiveLevel returns LevelDebug while a debug override is active,
// otherwise the configured level.
func (l *Logger) EffectiveLevel() Level {
	l.commonMu.Lock()
	defer l.commonMu.Unlock()
	if l.debugOverride {
		return LevelDebug
	}
	return l.level
}

// Zap returns the *zap.Logger front end backed by this logger's
// mechanics.
func (l *Logger) Zap() *zap.Logger { return l.zapLogger }

// Sugar returns the *zap.SugaredLogger front end.
func (l *Logger) Sugar() *zap.SugaredLogger { return l.zapLogger.Sugar() }

// SetOutput swaps the primary output. If rotate is non-nil and output
// implements sizedOutput, size-triggered rotation is tracked from its
// current size; otherwise size tracking is disabled (-1) and rotation is
// never size-triggered.
func (l *Logger) SetOutput(output outputIO, rotate RotateFunc) {
	l.outputMu.Lock()
	defer l.outputMu.Unlock()
	l.setOutputLocked(output, rotate)
}

// sizedOutput is implemented by outputs that can report their current
// size, so rotation can be size-triggered. Outputs that don't implement
// it (e.g. stderr) simply never trigger rotation.
type sizedOutput interface {
	Size() (int64, error)
}

func (l *Logger) setOutputLocked(output outputIO, rotate RotateFunc) {
	l.output = output
	l.outputSize = -1
	l.rotate = rotate
	l.rotateCountdown = maxRotateCountdown

	if rotate != nil {
		if so, ok := output.(sizedOutput); ok {
			if size, err := so.Size(); err == nil {
				l.outputSize = size
			}
		}
	}
}

func (l *Logger) getSource(name string) *source {
	l.commonMu.Lock()
	defer l.commonMu.Unlock()
	src, ok := l.sources[name]
	if !ok {
		src = newSource(name)
		l.sources[name] = src
	}
	return src
}

func (l *Logger) checkInclusion(level Level, src *source, group DebugGroup, line int) inclusion {
	l.commonMu.Lock()
	defer l.commonMu.Unlock()

	var incl inclusion
	if l.secondary != nil {
		incl |= inclusionSecondary
	}

	effective := l.level
	if l.debugOverride {
		effective = LevelDebug
	}
	if level > effective {
		return incl
	}
	if level != LevelDebug {
		return incl | inclusionPrimary
	}

	if src.filterVersion < l.filterVersion {
		src.refresh(l.filterVersion, l.filterEntries)
	}
	if src.debugIncluded(group, line) {
		return incl | inclusionPrimary
	}
	return incl
}

// log is the producer-side fast path: compute inclusion once, then hand
// an encoded entry to the FIFO for the forwarder goroutine to decode and
// write, so a slow or blocked output never stalls the caller beyond the
// FIFO's buffering.
func (l *Logger) log(level Level, sourceName string, group DebugGroup, line int, message string) {
	l.enqueue(level, sourceName, group, line, message, 0)
}

// logFromForwarder enqueues non-blocking: the forwarder is the FIFO's
// only consumer, so a blocking write from its own goroutine (the rotation
// status message) could never be drained and would deadlock.
func (l *Logger) logFromForwarder(level Level, sourceName string, group DebugGroup, line int, message string) {
	l.enqueue(level, sourceName, group, line, message, ring.NonBlocking)
}

func (l *Logger) enqueue(level Level, sourceName string, group DebugGroup, line int, message string, flags ring.Flags) {
	if level == LevelNone {
		return
	}

	src := l.getSource(sourceName)
	incl := l.checkInclusion(level, src, group, line)
	if incl == inclusionNone {
		return
	}

	entry := encodeEntry(time.Now(), level, group, incl, sourceName, line, message)
	if _, err := l.fifo.Write(entry, flags); err != nil {
		fmt.Fprintf(os.Stderr, "rtlog: dropped log entry: %v\n", err)
	}
}

// Close shuts the FIFO down (waking the forwarder if it's blocked reading
// or waiting for space) and waits for it to drain and exit.
func (l *Logger) Close() error {
	l.fifo.Shutdown()
	l.forward.Join()
	return nil
}
