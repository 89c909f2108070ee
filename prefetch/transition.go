package prefetch

import "time"

// OperationID identifies a recurring, named operation (e.g. "Q1").
type OperationID string

// Event is one entry of the operation history.
type Event struct {
	Time      time.Time
	Operation OperationID
}

// Successor is an outgoing transition count from a source operation.
type Successor struct {
	Operation OperationID
	Count     int
}

// successors keeps the outgoing counts of one source operation in the order
// each transition was first observed. The order is the tie-break for PredictNext.
type successors struct {
	order  []OperationID
	counts []int
	index  map[OperationID]int
	total  int
}

func (s *successors) add(op OperationID) {
	i, ok := s.index[op]
	if !ok {
		i = len(s.order)
		s.index[op] = i
		s.order = append(s.order, op)
		s.counts = append(s.counts, 0)
	}
	s.counts[i]++
	s.total++
}

// TransitionModel holds first-order transition counts learned from an
// operation history. It is immutable once built and safe for concurrent reads.
//
// Ties in PredictNext are broken by first-seen order: among successors with
// the same count, the one whose transition from the source appeared earliest
// in the history wins.
type TransitionModel struct {
	sources []OperationID
	matrix  map[OperationID]*successors
	events  int
}

// BuildTransitionModel counts one transition for each adjacent pair in the
// history. Fewer than two events produce an empty model.
func BuildTransitionModel(history []Event) *TransitionModel {
	m := &TransitionModel{
		matrix: make(map[OperationID]*successors),
		events: len(history),
	}
	for i := 0; i+1 < len(history); i++ {
		prev, next := history[i].Operation, history[i+1].Operation
		s, ok := m.matrix[prev]
		if !ok {
			s = &successors{index: make(map[OperationID]int)}
			m.matrix[prev] = s
			m.sources = append(m.sources, prev)
		}
		s.add(next)
	}
	return m
}

// PredictNext returns the most frequent successor of current.
// Returns false when current has no recorded outgoing transitions.
func (m *TransitionModel) PredictNext(current OperationID) (OperationID, bool) {
	s, ok := m.matrix[current]
	if !ok || s.total == 0 {
		return "", false
	}
	best := 0
	for i := 1; i < len(s.order); i++ {
		if s.counts[i] > s.counts[best] { // strict: earlier first-seen wins ties
			best = i
		}
	}
	return s.order[best], true
}

// Confidence returns count(current→next) / sum(count(current→*)).
// Returns 0 when current has no recorded transitions.
func (m *TransitionModel) Confidence(current, next OperationID) float64 {
	s, ok := m.matrix[current]
	if !ok || s.total == 0 {
		return 0
	}
	i, ok := s.index[next]
	if !ok {
		return 0
	}
	return float64(s.counts[i]) / float64(s.total)
}

// Transitions returns the outgoing counts of current in first-seen order.
func (m *TransitionModel) Transitions(current OperationID) []Successor {
	s, ok := m.matrix[current]
	if !ok {
		return nil
	}
	out := make([]Successor, len(s.order))
	for i, op := range s.order {
		out[i] = Successor{Operation: op, Count: s.counts[i]}
	}
	return out
}

// Sources returns every operation with at least one outgoing transition,
// in first-seen order.
func (m *TransitionModel) Sources() []OperationID {
	return append([]OperationID(nil), m.sources...)
}

// Events returns the length of the history the model was built from.
func (m *TransitionModel) Events() int { return m.events }
