package emg

import (
	"time"

	"github.com/kinevo-data/fatigue.report/internal/wire"
)

// Nominal stream geometry at the pods' native sample rate. Window and hop
// are expressed in samples; window must be >= hop or successive cycles would
// reprocess overlapping data without bound.
const (
	DefaultSampleRate = 500
	DefaultWindowMS   = 250
	DefaultHopMS      = 125
	bufferSeconds     = 10
)

// Record is one normalized per-side output cycle, produced only once the
// side's calibration is Running.
type Record struct {
	Cycle   uint64    // engine-local, strictly increasing
	TS      time.Time // wall clock at emission
	RepID   uint16    // from the side's latest telemetry
	TempoCV float64   // raw coefficient of variation at emission time

	NormalizedFeatures
}

// SideEngine composes one side's sample buffer, feature extraction, and
// calibration into a single processing unit. It is not safe for concurrent
// use: ingestion must be serialized with processing through channels, which
// the daemon loop does.
type SideEngine struct {
	side string

	ring   *SampleRing
	cal    *Calibrator
	telem  wire.Telemetry
	window int
	fs     float64
	cycle  uint64

	now func() time.Time
}

// NewSideEngine returns an engine for the named side ("L" or "R").
// sampleRate is in Hz and windowSamples is the analysis window length;
// non-positive values fall back to the nominal geometry.
func NewSideEngine(side string, sampleRate, windowSamples int, activeVelDPS float64) *SideEngine {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if windowSamples <= 0 {
		windowSamples = sampleRate * DefaultWindowMS / 1000
	}
	return &SideEngine{
		side:   side,
		ring:   NewSampleRing(sampleRate * bufferSeconds),
		cal:    NewCalibrator(side, activeVelDPS),
		window: windowSamples,
		fs:     float64(sampleRate),
		now:    time.Now,
	}
}

// Side returns the engine's side label.
func (e *SideEngine) Side() string { return e.side }

// Calibration exposes the engine's calibrator for state inspection.
func (e *SideEngine) Calibration() *Calibrator { return e.cal }

// FeedSamples appends a batch of raw amplitude samples, evicting the oldest
// on overflow.
func (e *SideEngine) FeedSamples(batch []int16) {
	e.ring.Append(batch)
}

// FeedTelemetry overwrites the engine's inertial snapshot wholesale.
func (e *SideEngine) FeedTelemetry(t wire.Telemetry) {
	e.telem = t
}

// Telemetry returns the latest inertial snapshot.
func (e *SideEngine) Telemetry() wire.Telemetry { return e.telem }

// Process runs one analysis cycle: if a full window of samples is buffered,
// it extracts features from the most recent window, feeds the calibrator,
// and — only once calibration is Running — emits a normalized record
// stamped with the engine's cycle counter and the current telemetry's rep
// identity. It returns false while the buffer is short or calibration is
// still in progress.
func (e *SideEngine) Process() (Record, bool) {
	raw, ok := e.ring.Latest(e.window)
	if !ok {
		return Record{}, false
	}

	x := make([]float64, len(raw))
	for i, s := range raw {
		x[i] = float64(s)
	}
	feats := Extract(x, e.fs)

	e.cal.Feed(feats, float64(e.telem.PitchVelDPS))
	if e.cal.Phase() != CalRunning {
		return Record{}, false
	}

	e.cycle++
	return Record{
		Cycle:              e.cycle,
		TS:                 e.now(),
		RepID:              e.telem.RepID,
		TempoCV:            float64(e.telem.TempoCV),
		NormalizedFeatures: e.cal.Normalize(feats),
	}, true
}
