package rtlog

import "go.uber.org/zap"

// DebugGroup tags a debug-level log call with the subsystem it belongs
// to, so the debug filter (filter.go) can turn whole subsystems on or off
// independently of the overall log level.
type DebugGroup uint32

const GroupNone DebugGroup = 0

const (
	GroupCommon DebugGroup = 1 << iota
	GroupEvent
	GroupPacket
	GroupObject
	GroupLibusb
)

const GroupAll = GroupCommon | GroupEvent | GroupPacket | GroupObject | GroupLibusb

func groupByName(name string) (DebugGroup, bool) {
	switch lower(name) {
	case "common":
		return GroupCommon, true
	case "event":
		return GroupEvent, true
	case "packet":
		return GroupPacket, true
	case "object":
		return GroupObject, true
	case "libusb":
		return GroupLibusb, true
	case "all":
		return GroupAll, true
	default:
		return GroupNone, false
	}
}

// groupFieldKey is the reserved zap field name WithGroup smuggles a
// DebugGroup through; Core.Write extracts and strips it before handing
// the remaining fields to the message encoder.
const groupFieldKey = "__rtlog_debug_group"

// WithGroup tags a debug-level zap call with the subsystem it belongs to,
// for the debug filter in filter.go. Only meaningful on Debug-level
// entries; ignored otherwise.
func WithGroup(group DebugGroup) zap.Field {
	return zap.Uint32(groupFieldKey, uint32(group))
}

func extractGroup(fields []zap.Field) (DebugGroup, []zap.Field) {
	for i, f := range fields {
		if f.Key == groupFieldKey {
			rest := make([]zap.Field, 0, len(fields)-1)
			rest = append(rest, fields[:i]...)
			rest = append(rest, fields[i+1:]...)
			return DebugGroup(f.Integer), rest
		}
	}
	return GroupNone, fields
}
