package rtlog

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// core adapts Logger to zapcore.Core, so SugaredLogger/Logger front ends
// work unmodified while every entry actually flows through the FIFO and
// forwarder goroutine (forwarder.go).
type core struct {
	logger *Logger
	fields []zapcore.Field
}

func newCore(l *Logger) zapcore.Core {
	return &core{logger: l}
}

func (c *core) Enabled(lvl zapcore.Level) bool {
	// the secondary output receives entries below the primary level too;
	// checkInclusion decides per entry which outputs it reaches.
	if c.logger.secondary != nil {
		return true
	}
	return fromZap(lvl) <= c.logger.EffectiveLevel()
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &core{logger: c.logger, fields: merged}
}

func (c *core) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *core) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)

	group, rest := extractGroup(all)

	name := entry.LoggerName
	if name == "" {
		name = "daemonrt"
	}

	line := -1
	if entry.Caller.Defined {
		line = entry.Caller.Line
	}

	message := encodeMessage(entry.Message, rest)

	c.logger.log(fromZap(entry.Level), name, group, line, message)
	return nil
}

func (c *core) Sync() error { return nil }

// encodeMessage appends structured fields to the message text using a
// throwaway zapcore.MapObjectEncoder, the simplest way to render
// arbitrary zap.Field values to text without hand-rolling a type switch
// over every Field kind.
func encodeMessage(message string, fields []zapcore.Field) string {
	if len(fields) == 0 {
		return message
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}

	out := message
	for k, v := range enc.Fields {
		out += fmt.Sprintf(" %s=%v", k, v)
	}
	return out
}
