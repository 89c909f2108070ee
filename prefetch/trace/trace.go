package trace

import "sync"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures all prefetch decisions and rebuild outcomes.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// DecisionTrace collects decision and rebuild records. Safe for concurrent use.
type DecisionTrace struct {
	Level TraceLevel

	mu        sync.Mutex
	decisions []DecisionRecord
	rebuilds  []RebuildRecord
}

// NewDecisionTrace creates a DecisionTrace ready for recording.
func NewDecisionTrace(level TraceLevel) *DecisionTrace {
	return &DecisionTrace{
		Level:     level,
		decisions: make([]DecisionRecord, 0),
		rebuilds:  make([]RebuildRecord, 0),
	}
}

// Enabled reports whether records are kept. Safe on a nil trace.
func (dt *DecisionTrace) Enabled() bool {
	return dt != nil && dt.Level == TraceLevelDecisions
}

// RecordDecision appends a decision record and returns its sequence number,
// or -1 if tracing is disabled.
func (dt *DecisionTrace) RecordDecision(record DecisionRecord) int {
	if !dt.Enabled() {
		return -1
	}
	dt.mu.Lock()
	defer dt.mu.Unlock()
	record.Seq = len(dt.decisions)
	dt.decisions = append(dt.decisions, record)
	return record.Seq
}

// SetActual records the operation that actually followed decision seq.
func (dt *DecisionTrace) SetActual(seq int, actual string) {
	if !dt.Enabled() || seq < 0 {
		return
	}
	dt.mu.Lock()
	defer dt.mu.Unlock()
	if seq < len(dt.decisions) {
		dt.decisions[seq].Actual = actual
	}
}

// RecordRebuild appends a rebuild record.
func (dt *DecisionTrace) RecordRebuild(record RebuildRecord) {
	if !dt.Enabled() {
		return
	}
	dt.mu.Lock()
	defer dt.mu.Unlock()
	dt.rebuilds = append(dt.rebuilds, record)
}

// Decisions returns a copy of the decision records in recording order.
func (dt *DecisionTrace) Decisions() []DecisionRecord {
	if dt == nil {
		return nil
	}
	dt.mu.Lock()
	defer dt.mu.Unlock()
	return append([]DecisionRecord(nil), dt.decisions...)
}

// Rebuilds returns a copy of the rebuild records in recording order.
func (dt *DecisionTrace) Rebuilds() []RebuildRecord {
	if dt == nil {
		return nil
	}
	dt.mu.Lock()
	defer dt.mu.Unlock()
	return append([]RebuildRecord(nil), dt.rebuilds...)
}
