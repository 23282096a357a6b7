package rtlog

// inclusion records which outputs a single entry is destined for, decided
// once at the call site so the hot path never re-evaluates the filter
// table once an entry has been queued.
type inclusion uint32

const (
	inclusionNone      inclusion = 0
	inclusionPrimary   inclusion = 1 << 0
	inclusionSecondary inclusion = 1 << 1
)
