// Package slot holds the per-unit slot bookkeeping: the phase sum type,
// the SlotInfo value every unit owns exclusively, and the supermajority
// threshold function the aggregation helper is gated on.
package slot

import "github.com/gonka-ai/committee-signer/internal/commit"

// Phase is the current window within a slot. The zero value is Stop,
// matching a SlotInfo's state before its first slot-boundary tick.
type Phase int

const (
	Stop Phase = iota
	First
	Second
	Third
)

func (p Phase) String() string {
	switch p {
	case Stop:
		return "STOP"
	case First:
		return "FIRST"
	case Second:
		return "SECOND"
	case Third:
		return "THIRD"
	default:
		return "UNKNOWN"
	}
}

// Info is the slot state a unit owns exclusively: no other actor ever
// reads or writes it. Precommits and noncommits are the collections for
// the slot currently in progress; they're discarded wholesale on Next.
type Info struct {
	I          uint32
	J          uint32
	Phase      Phase
	Signed     bool
	Aggregated bool
	Precommits []commit.Commit
	Noncommits []commit.Commit
}

// New constructs the initial SlotInfo a unit starts with: slot 0,
// nothing finalized, phase Stop until the first slot-boundary tick.
func New() *Info {
	return &Info{
		I:     0,
		J:     0,
		Phase: Stop,
	}
}

// Next resets per-slot state for a new slot-boundary tick: i advances,
// phase returns to First, the signed/aggregated flags and both
// collections clear. j is untouched — it only advances when this unit
// adopts or produces an aggregated commit.
func (s *Info) Next() {
	s.I++
	s.Phase = First
	s.Signed = false
	s.Aggregated = false
	s.Precommits = nil
	s.Noncommits = nil
}

// Supermajority returns the number of matching signatures required to
// finalize a slot for a committee of n units: floor(2n/3) + 1. Pinned
// by test values (supermajority(1)=1, (3)=3, (4)=3, (7)=5) rather than
// the textual ceil(2n/3)+1 the threshold is usually described with —
// the integer-division form below reproduces exactly those values.
func Supermajority(n int) int {
	if n < 1 {
		return 0
	}
	return (2*n)/3 + 1
}
