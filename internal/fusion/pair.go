// Package fusion pairs the two sides' normalized records, fuses them into
// the cross-side feature vector consumed by the model layer, and maps the
// resulting continuous scores to discrete stages and human-readable text.
package fusion

import (
	"fmt"
	"time"

	"github.com/kinevo-data/fatigue.report/internal/emg"
)

// Side identifies a body side.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
)

// ParseSide validates a side label from configuration.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideLeft, SideRight:
		return Side(s), nil
	default:
		return "", fmt.Errorf("fusion: invalid side %q (want L or R)", s)
	}
}

// PairedCycle is one synchronized left/right record pair. RepID and TempoCV
// are taken from the master side, the one carrying the authoritative
// inertial channel in the reference hardware layout.
type PairedCycle struct {
	Left, Right emg.Record
	TS          time.Time // midpoint of the two emission times
	RepID       uint16
	TempoCV     float64
}

// Synchronizer pairs per-hop records from the two sides. It is a pure
// filter: it never buffers unpaired records across hops and never fabricates
// data.
type Synchronizer struct {
	Master    Side
	Tolerance time.Duration
}

// Pair combines the latest record from each side into a PairedCycle. It
// returns false when either record is absent or the emission timestamps
// diverge beyond the tolerance; the hop is then simply skipped.
func (s Synchronizer) Pair(left, right *emg.Record) (PairedCycle, bool) {
	if left == nil || right == nil {
		return PairedCycle{}, false
	}
	lag := left.TS.Sub(right.TS)
	if lag < 0 {
		lag = -lag
	}
	if lag > s.Tolerance {
		return PairedCycle{}, false
	}

	p := PairedCycle{
		Left:  *left,
		Right: *right,
		TS:    left.TS.Add(right.TS.Sub(left.TS) / 2),
	}
	if s.Master == SideRight {
		p.RepID = right.RepID
		p.TempoCV = right.TempoCV
	} else {
		p.RepID = left.RepID
		p.TempoCV = left.TempoCV
	}
	return p, true
}
