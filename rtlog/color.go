package rtlog

import (
	"os"

	"golang.org/x/term"

	"github.com/yanet-platform/daemonrt/rio"
)

// colorEnabled decides whether ANSI color codes should wrap a formatted
// line: only for a TTY, and never when $TERM is unset or "dumb".
func colorEnabled(out outputIO) bool {
	fd, ok := ttyFd(out)
	if !ok {
		return false
	}
	if !term.IsTerminal(fd) {
		return false
	}
	t := os.Getenv("TERM")
	return t != "" && t != "dumb"
}

func ttyFd(out outputIO) (int, bool) {
	if out == nil {
		return 0, false
	}
	return out.Fd(), true
}

// outputIO is the subset of rio.IO the logger's output needs.
type outputIO interface {
	Fd() int
	Write(buf []byte) (int, error)
}

var _ outputIO = (rio.IO)(nil)

// sgr returns the whole-line ANSI escape wrap for level. LevelDebug is
// never colorized.
func sgr(level Level) (begin, end string) {
	switch level {
	case LevelNone:
		return "\033[1;36m", "\033[m"
	case LevelError:
		return "\033[1;31m", "\033[m"
	case LevelWarn:
		return "\033[1;34m", "\033[m"
	case LevelInfo:
		return "\033[1m", "\033[m"
	default:
		return "", ""
	}
}
