package rtlog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

const maxDebugFilters = 64

// filterEntry is one comma-separated clause of a debug filter string:
// [+|-]NAME[:LINE]. A NAME that resolves to a known group keyword
// (common/event/packet/object/libusb/all) toggles that whole group for
// every source; otherwise NAME is a case-insensitive glob pattern matched
// against each source's registered name, optionally restricted to one
// source line.
type filterEntry struct {
	included bool
	pattern  glob.Glob // nil if group != GroupNone
	raw      string
	group    DebugGroup
	line     int // -1 if absent
}

// ValidateDebugFilter reports whether filter parses under the debug
// filter grammar, without applying it. Config loaders use it to reject
// a malformed filter with a warning instead of carrying it into New.
func ValidateDebugFilter(filter string) error {
	_, err := parseDebugFilter(filter)
	return err
}

// parseDebugFilter parses the filter grammar. Malformed filters are
// rejected wholesale rather than applied partially, so the previous
// filter stays in effect.
func parseDebugFilter(filter string) ([]filterEntry, error) {
	var entries []filterEntry

	for _, clause := range strings.Split(filter, ",") {
		if clause == "" {
			return nil, fmt.Errorf("rtlog: debug filter %q has an empty clause", filter)
		}
		if len(entries) >= maxDebugFilters {
			return nil, fmt.Errorf("rtlog: too many source names in debug filter %q", filter)
		}

		var included bool
		switch clause[0] {
		case '+':
			included = true
		case '-':
			included = false
		default:
			return nil, fmt.Errorf("rtlog: unexpected char %q in debug filter %q", clause[0], filter)
		}
		clause = clause[1:]

		name := clause
		line := -1
		if idx := strings.IndexByte(clause, ':'); idx >= 0 {
			name = clause[:idx]
			lineStr := clause[idx+1:]
			n, err := strconv.Atoi(lineStr)
			if err != nil || n <= 0 || n > 100000 {
				return nil, fmt.Errorf("rtlog: invalid line number in debug filter %q", filter)
			}
			line = n
		}
		if name == "" {
			return nil, fmt.Errorf("rtlog: empty source name in debug filter %q", filter)
		}

		entry := filterEntry{included: included, raw: name, line: line}

		if group, ok := groupByName(name); ok {
			entry.group = group
			if line >= 0 {
				// a group keyword ignores a line restriction
				entry.line = -1
			}
		} else {
			pattern, err := glob.Compile(lower(name))
			if err != nil {
				return nil, fmt.Errorf("rtlog: invalid source name pattern %q in debug filter %q: %w", name, filter, err)
			}
			entry.pattern = pattern
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
