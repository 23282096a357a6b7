package rtlog

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/yanet-platform/daemonrt/rterr"
)

const forwardBufferSize = 8192

// forwardLoop is the single consumer draining the FIFO, decoding framed
// entries, and dispatching them to the primary/secondary outputs: an
// accumulate-then-scan-for-NUL loop.
func (l *Logger) forwardLoop() {
	buf := make([]byte, 0, forwardBufferSize)
	chunk := make([]byte, forwardBufferSize)

	for {
		n, err := l.fifo.Read(chunk, 0)
		if err != nil {
			return
		}
		if n == 0 {
			return // FIFO shut down and drained
		}

		buf = append(buf, chunk[:n]...)

		for {
			ts, level, group, incl, sourceName, line, message, consumed, ok := decodeEntry(buf)
			if !ok {
				// A complete frame always carries its NUL within
				// header+maxMessageLen bytes. Anything longer without one
				// is corruption; dump the head and discard rather than
				// accumulate forever.
				if len(buf) >= wireHeaderSize+maxMessageLen {
					head := buf
					if len(head) > 64 {
						head = head[:64]
					}
					fmt.Fprintf(stderrWriter{}, "rtlog: corrupt frame, discarding %d buffered bytes\n%s", len(buf), hex.Dump(head))
					buf = buf[:0]
				}
				break
			}
			l.dispatch(ts, level, group, incl, sourceName, line, message)
			buf = buf[consumed:]
		}

		// keep the backing array from growing unboundedly when entries
		// are consumed faster than produced.
		if len(buf) == 0 && cap(buf) > forwardBufferSize*4 {
			buf = make([]byte, 0, forwardBufferSize)
		}
	}
}

func (l *Logger) dispatch(ts time.Time, level Level, group DebugGroup, incl inclusion, sourceName string, line int, message string) {
	if incl&inclusionPrimary != 0 {
		rotateLevel, rotateMessage := l.writePrimary(ts, level, group, sourceName, line, message)
		if rotateLevel != LevelNone {
			// logged after releasing outputMu: a rotation status message
			// is itself a log call and must not re-enter writePrimary
			// while the mutex it needs is still held.
			l.logFromForwarder(rotateLevel, sourceName, GroupCommon, -1, rotateMessage)
		}
	}
	if incl&inclusionSecondary != 0 && l.secondary != nil {
		l.secondary(ts, level, sourceName, group, line, message)
	}
}

// writePrimary formats and writes one entry to the primary output,
// applying rotation if the size threshold has been crossed. It returns a
// pending rotation status message to be logged by the caller, once
// outputMu has been released.
func (l *Logger) writePrimary(ts time.Time, level Level, group DebugGroup, sourceName string, line int, message string) (rotateLevel Level, rotateMessage string) {
	l.outputMu.Lock()
	defer l.outputMu.Unlock()

	if l.output == nil {
		return LevelNone, ""
	}

	formatted := formatLine(ts, level, sourceName, group, line, message)

	if colorEnabled(l.output) {
		begin, end := sgr(level)
		n, err := l.output.Write([]byte(begin + formatted + end))
		l.accountWrite(n, err)
	} else {
		n, err := l.output.Write([]byte(formatted))
		l.accountWrite(n, err)
	}

	if l.rotateCountdown > 0 {
		l.rotateCountdown--
	}

	if l.rotate == nil || l.rotateCountdown > 0 || l.outputSize < l.maxOutputSize {
		return LevelNone, ""
	}

	statusLevel, statusMessage, err := l.rotate(l.output)
	if err != nil {
		fmt.Fprintf(stderrWriter{}, "rtlog: rotate failed: %v\n", err)
		l.setOutputLocked(nil, nil)
		return LevelNone, ""
	}

	l.setOutputLocked(l.output, l.rotate)
	return statusLevel, statusMessage
}

func (l *Logger) accountWrite(n int, err error) {
	if l.outputSize >= 0 && err == nil {
		l.outputSize += int64(n)
	} else if err != nil && !rterr.Is(err, rterr.WouldBlock) {
		l.outputSize = -1
	}
}

type stderrWriter struct{}

func (stderrWriter) Write(b []byte) (int, error) { return stderrIO{}.Write(b) }
