package models

import "encoding/json"

// VectorClock maps a participant identifier (device/client id or "server") to
// a monotonically increasing counter. Participants absent from the map are
// treated as counter 0, so a partial clock is never an error.
type VectorClock map[string]int64

// ClockComparison is the result of comparing two vector clocks.
type ClockComparison int

const (
	ClockEqual      ClockComparison = 0
	ClockBefore     ClockComparison = -1
	ClockAfter      ClockComparison = 1
	ClockConcurrent ClockComparison = 2
)

// Compare returns the causal relation of vc to other: ClockBefore if other
// dominates vc, ClockAfter if vc dominates other, ClockEqual if every counter
// matches, ClockConcurrent if each side is ahead on some participant.
// Symmetric under swap: vc.Compare(other) mirrors other.Compare(vc).
func (vc VectorClock) Compare(other VectorClock) ClockComparison {
	less, greater := false, false

	seen := make(map[string]bool, len(vc)+len(other))
	for p := range vc {
		seen[p] = true
	}
	for p := range other {
		seen[p] = true
	}

	for p := range seen {
		a, b := vc[p], other[p]
		if a < b {
			less = true
		} else if a > b {
			greater = true
		}
	}

	switch {
	case less && greater:
		return ClockConcurrent
	case less:
		return ClockBefore
	case greater:
		return ClockAfter
	default:
		return ClockEqual
	}
}

// Merge returns the pointwise maximum of both clocks. Used when persisting a
// resolved record so the stored clock reflects everything either side has seen.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	merged := make(VectorClock, len(vc)+len(other))
	for p, c := range vc {
		merged[p] = c
	}
	for p, c := range other {
		if c > merged[p] {
			merged[p] = c
		}
	}
	return merged
}

// Clone returns a copy of the clock. A nil clock clones to nil.
func (vc VectorClock) Clone() VectorClock {
	if vc == nil {
		return nil
	}
	out := make(VectorClock, len(vc))
	for p, c := range vc {
		out[p] = c
	}
	return out
}

// ClockFromValue rebuilds a VectorClock from a decoded JSON value. JSONB
// documents come back as map[string]interface{} with float64 counters, so the
// stored clock has to be coerced before comparison. Unrecognized shapes yield
// a nil clock rather than an error.
func ClockFromValue(v interface{}) VectorClock {
	switch m := v.(type) {
	case VectorClock:
		return m
	case map[string]int64:
		return VectorClock(m)
	case map[string]interface{}:
		clock := make(VectorClock, len(m))
		for p, raw := range m {
			switch n := raw.(type) {
			case float64:
				clock[p] = int64(n)
			case int64:
				clock[p] = n
			case int:
				clock[p] = int64(n)
			case json.Number:
				if i, err := n.Int64(); err == nil {
					clock[p] = i
				}
			}
		}
		return clock
	default:
		return nil
	}
}
