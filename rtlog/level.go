// Package rtlog implements the asynchronous logger: log calls hand an
// already-formatted entry to a lock-free-fast producer path, a
// dedicated forwarder goroutine decodes and writes entries to the
// configured output, and a custom zapcore.Core lets callers keep using
// *zap.SugaredLogger/*zap.Logger as their day-to-day API.
package rtlog

import "go.uber.org/zap/zapcore"

// Level: None disables a source entirely, the rest increase in
// verbosity.
type Level int32

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return ""
	case LevelError:
		return "<E>"
	case LevelWarn:
		return "<W>"
	case LevelInfo:
		return "<I>"
	case LevelDebug:
		return "<D>"
	default:
		return "<U>"
	}
}

// ParseLevel accepts "none", "error", "warn", "info", "debug"
// (case-insensitively), returning LevelNone with ok=false for anything
// else.
func ParseLevel(s string) (Level, bool) {
	switch lower(s) {
	case "none":
		return LevelNone, true
	case "error":
		return LevelError, true
	case "warn", "warning":
		return LevelWarn, true
	case "info":
		return LevelInfo, true
	case "debug":
		return LevelDebug, true
	default:
		return LevelNone, false
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// fromZap maps a zap level onto the four-level taxonomy this package
// understands; DPanic/Panic/Fatal all collapse to Error since nothing
// downstream distinguishes them.
func fromZap(lvl zapcore.Level) Level {
	switch {
	case lvl >= zapcore.ErrorLevel:
		return LevelError
	case lvl == zapcore.WarnLevel:
		return LevelWarn
	case lvl == zapcore.InfoLevel:
		return LevelInfo
	default:
		return LevelDebug
	}
}
