// Package rtconf implements the config loader: a typed option table
// populated from a `key = value` text file. Its output drives the logger
// and the network layer, so this package stays a thin parser plus a
// Config struct, not a general-purpose schema engine.
package rtconf

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"

	"github.com/yanet-platform/daemonrt/rtlog"
)

// readOptional returns (nil, nil) when path does not exist: a missing
// config file is not an error.
func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Lines longer than maxLineLength are skipped with a warning.
const maxLineLength = 32 * 1024

// line is one parsed `name = value` pair.
type line struct {
	Name  string
	Value string
}

// WarningFunc receives one warning per malformed or out-of-range line.
// Nil suppresses warnings.
type WarningFunc func(format string, args ...any)

// File is a parsed `name = value` text file. Later occurrences of the
// same key (case-insensitive) override earlier ones; File.Get walks
// backwards to find the effective value.
type File struct {
	lines     []line
	trimValue bool
}

// Option controls parsing behavior.
type Option func(*File)

// TrimValueOnRead strips leading/trailing whitespace from values (but
// never from names, which are always trimmed).
func TrimValueOnRead() Option {
	return func(f *File) { f.trimValue = true }
}

// NewFile constructs an empty File ready for Read.
func NewFile(opts ...Option) *File {
	f := &File{}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Read parses data line by line. A missing file is the caller's concern;
// Read only ever sees bytes already read, so callers that os.ReadFile a
// missing path should simply skip calling it.
func (f *File) Read(data []byte, warn WarningFunc) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	reader := bufio.NewReader(bytes.NewReader(data))
	number := 0
	for {
		raw, err := reader.ReadString('\n')
		if raw == "" && err != nil {
			return
		}
		number++

		line := strings.TrimRight(raw, "\n")
		if len(line) > maxLineLength {
			if warn != nil {
				warn("line %d is too long, skipping", number)
			}
		} else {
			f.parseLine(number, line, warn)
		}

		if err != nil {
			return
		}
	}
}

func (f *File) parseLine(number int, raw string, warn WarningFunc) {
	trimmed := strings.TrimLeft(raw, " \t")
	if trimmed == "" || trimmed[0] == '#' {
		return
	}

	eq := strings.IndexByte(trimmed, '=')
	if eq < 0 {
		if warn != nil {
			warn("line %d has no '=': %s", number, raw)
		}
		return
	}

	name := strings.TrimRight(trimmed[:eq], " \t")
	if name == "" {
		if warn != nil {
			warn("line %d has no option name: %s", number, raw)
		}
		return
	}

	value := trimmed[eq+1:]
	if f.trimValue {
		value = strings.TrimSpace(value)
	}

	f.lines = append(f.lines, line{Name: name, Value: value})
}

// Get returns the effective value for name (case-insensitive), and
// whether it was set at all.
func (f *File) Get(name string) (string, bool) {
	for i := len(f.lines) - 1; i >= 0; i-- {
		if strings.EqualFold(f.lines[i].Name, name) {
			return f.lines[i].Value, true
		}
	}
	return "", false
}

// OptionType selects how a Spec's raw value is validated and parsed.
type OptionType int

const (
	TypeString OptionType = iota
	TypeInteger
	TypeBoolean
	TypeLogLevel
	TypeSymbol
)

// Spec describes one typed option: a name, an optional legacy alias, a
// type, and a default.
type Spec struct {
	Name       string
	LegacyName string
	Type       OptionType
	Default    string
	// Symbols enumerates the accepted values for TypeSymbol (e.g.
	// "tcp"/"udp").
	Symbols []string
}

// ParseBoolOption accepts "true"/"on"/"1"/"yes" and "false"/"off"/"0"/
// "no", case-insensitive.
func ParseBoolOption(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "on", "1", "yes":
		return true, nil
	case "false", "off", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("rtconf: invalid boolean %q", s)
	}
}

// ParseIntOption parses base-10, full-string, no trailing garbage.
func ParseIntOption(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("rtconf: empty integer value")
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("rtconf: invalid integer %q: %w", s, err)
	}
	return int(v), nil
}

// ParseSizeOption parses a datasize.ByteSize value, e.g. "5MB", "256KB".
func ParseSizeOption(s string) (datasize.ByteSize, error) {
	var sz datasize.ByteSize
	if err := sz.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("rtconf: invalid size %q: %w", s, err)
	}
	return sz, nil
}

// LoggingConfig is the ambient logging configuration: the level and
// optional debug filter grammar a caller wires straight into
// rtlog.Config.
type LoggingConfig struct {
	Level         rtlog.Level
	DebugFilter   string
	MaxOutputSize datasize.ByteSize
}

// Config is the top-level option table this runtime library's own
// collaborators need: logging and writer back-pressure policy. A host
// daemon built on this library embeds Config or defines its own
// superset.
type Config struct {
	Logging         LoggingConfig
	MaxQueuedWrites int
	PIDFile         string
	LogFile         string
}

// DefaultConfig returns every field pre-populated so LoadConfig only
// needs to override what the file actually sets.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:         rtlog.LevelInfo,
			MaxOutputSize: 5 * datasize.MB,
		},
		MaxQueuedWrites: 32768,
	}
}

// LoadConfig reads path as a `name = value` file and overlays it onto
// DefaultConfig. A missing file is not an error; every other read error
// is. Per-option warnings are logged via warn rather than returned, since
// a malformed line should not abort startup.
func LoadConfig(path string, warn WarningFunc) (*Config, error) {
	cfg := DefaultConfig()

	data, err := readOptional(path)
	if err != nil {
		return nil, fmt.Errorf("rtconf: read config file: %w", err)
	}
	if data == nil {
		return cfg, nil
	}

	f := NewFile(TrimValueOnRead())
	f.Read(data, warn)

	if v, ok := f.Get("log.level"); ok {
		lvl, ok := rtlog.ParseLevel(v)
		if !ok {
			if warn != nil {
				warn("invalid log.level %q, keeping default", v)
			}
		} else {
			cfg.Logging.Level = lvl
		}
	}
	if v, ok := f.Get("log.debug_filter"); ok {
		if err := rtlog.ValidateDebugFilter(v); err != nil {
			if warn != nil {
				warn("%v, ignoring debug filter", err)
			}
		} else {
			cfg.Logging.DebugFilter = v
		}
	}
	if v, ok := f.Get("log.max_output_size"); ok {
		sz, err := ParseSizeOption(v)
		if err != nil {
			if warn != nil {
				warn("%v, keeping default", err)
			}
		} else {
			cfg.Logging.MaxOutputSize = sz
		}
	}
	if v, ok := f.Get("writer.max_queued_writes"); ok {
		n, err := ParseIntOption(v)
		if err != nil {
			if warn != nil {
				warn("%v, keeping default", err)
			}
		} else {
			cfg.MaxQueuedWrites = n
		}
	}
	if v, ok := f.Get("pid_file"); ok {
		cfg.PIDFile = v
	}
	if v, ok := f.Get("log_file"); ok {
		cfg.LogFile = v
	}

	return cfg, nil
}

// DefaultWarningFunc builds a WarningFunc that logs through the
// bootstrap zap logger, for callers that already have one constructed
// (cmd/rtd does, before rtlog.New is even possible — the config has to
// be parsed first to know the desired log level).
func DefaultWarningFunc(log *zap.SugaredLogger) WarningFunc {
	return func(format string, args ...any) {
		log.Warnf("rtconf: "+format, args...)
	}
}
