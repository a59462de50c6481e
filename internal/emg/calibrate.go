package emg

import (
	"log"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// CalPhase is the lifecycle phase of a side's calibration. Transitions are
// one-directional and purely time-triggered.
type CalPhase int

const (
	CalWarmup CalPhase = iota
	CalCalibrating
	CalRunning
)

func (p CalPhase) String() string {
	switch p {
	case CalWarmup:
		return "WARMUP"
	case CalCalibrating:
		return "CALIB"
	case CalRunning:
		return "RUN"
	default:
		return "UNKNOWN"
	}
}

// Calibration timing and routing defaults. The angular-velocity threshold
// that separates "active" from "rest" calibration samples is a heuristic
// carried over from the reference hardware; it assumes rest periods are the
// low-motion phases of a repetitive exercise and has no documented
// derivation, so it is overridable rather than inlined.
const (
	DefaultWarmupDuration      = 500 * time.Millisecond
	DefaultCalibrationDuration = 3500 * time.Millisecond // total from anchor
	DefaultActiveVelocityDPS   = 15.0
	refScaleQuantile           = 0.95
)

// Baselines are the frozen per-feature rest means established by calibration.
type Baselines struct {
	MDF       float64
	SampEn    float64
	MSESampEn float64
	IEMG      float64
}

// NormalizedFeatures is a FeatureSet expressed relative to the calibration:
// RMS as a ratio to the reference scale, the rest as baseline-relative deltas.
type NormalizedFeatures struct {
	RMSNorm    float64
	DIEMG      float64
	DMDF       float64
	DSampEn    float64
	DMSESampEn float64
}

// Calibrator establishes a per-side reference scale and rest baselines from
// the stream's own early behaviour, then freezes them for the session.
type Calibrator struct {
	side  string
	phase CalPhase
	t0    time.Time // anchor, set on first Feed

	warmupAfter  time.Duration
	runningAfter time.Duration
	activeVelDPS float64

	activeRMS []float64
	allRMS    []float64
	restMDF   []float64
	restSE    []float64
	restMSE   []float64
	restIEMG  []float64

	refScale  float64
	baselines Baselines

	now func() time.Time
}

// NewCalibrator returns a calibrator with default timing for the named side.
// activeVelDPS overrides the active-motion threshold when positive.
func NewCalibrator(side string, activeVelDPS float64) *Calibrator {
	if activeVelDPS <= 0 {
		activeVelDPS = DefaultActiveVelocityDPS
	}
	return &Calibrator{
		side:         side,
		warmupAfter:  DefaultWarmupDuration,
		runningAfter: DefaultCalibrationDuration,
		activeVelDPS: activeVelDPS,
		refScale:     1.0,
		baselines:    Baselines{MDF: 1, SampEn: 1, MSESampEn: 1, IEMG: 1},
		now:          time.Now,
	}
}

// SetTiming overrides the phase deadlines. warmup is measured from the
// anchor to the start of calibration; running from the anchor to the frozen
// running state. Must be called before the first Feed.
func (c *Calibrator) SetTiming(warmup, running time.Duration) {
	if warmup > 0 {
		c.warmupAfter = warmup
	}
	if running > warmup {
		c.runningAfter = running
	}
}

// Phase returns the current calibration phase.
func (c *Calibrator) Phase() CalPhase { return c.phase }

// RefScale returns the reference amplitude scale. Strictly positive; equal
// to 1.0 until calibration completes.
func (c *Calibrator) RefScale() float64 { return c.refScale }

// BaselineMeans returns the frozen rest baselines.
func (c *Calibrator) BaselineMeans() Baselines { return c.baselines }

// Feed routes one feature set into the calibration accumulators. The anchor
// clock starts on the first call; phase advancement is checked before
// routing, so a sample arriving after the calibration deadline is not
// accumulated. angularVel is the concurrent inertial angular velocity used
// by the active/rest heuristic. Once Running, Feed is a no-op apart from the
// (inert) phase check.
func (c *Calibrator) Feed(f FeatureSet, angularVel float64) {
	if c.t0.IsZero() {
		c.t0 = c.now()
	}
	c.allRMS = append(c.allRMS, f.RMS)
	c.advance()
	if c.phase != CalCalibrating {
		return
	}
	if math.Abs(angularVel) > c.activeVelDPS {
		c.activeRMS = append(c.activeRMS, f.RMS)
		return
	}
	c.restMDF = append(c.restMDF, f.MDF)
	c.restSE = append(c.restSE, f.SampEn)
	c.restMSE = append(c.restMSE, f.MSESampEn)
	c.restIEMG = append(c.restIEMG, f.IEMG)
}

func (c *Calibrator) advance() {
	if c.t0.IsZero() || c.phase == CalRunning {
		return
	}
	dt := c.now().Sub(c.t0)
	if c.phase == CalWarmup && dt >= c.warmupAfter {
		c.phase = CalCalibrating
	}
	if c.phase == CalCalibrating && dt >= c.runningAfter {
		c.finalize()
		c.phase = CalRunning
		log.Printf("[%s] calibration complete: ref_scale=%.2f", c.side, c.refScale)
	}
}

// finalize derives the reference scale and baselines, after which they are
// frozen for the session.
func (c *Calibrator) finalize() {
	source := c.activeRMS
	if len(source) == 0 {
		source = c.allRMS
	}
	if len(source) == 0 {
		c.refScale = 1.0
	} else {
		sorted := make([]float64, len(source))
		copy(sorted, source)
		sort.Float64s(sorted)
		c.refScale = stat.Quantile(refScaleQuantile, stat.LinInterp, sorted, nil)
	}
	// floor to avoid division collapse downstream
	if c.refScale < 1e-6 || math.IsNaN(c.refScale) {
		c.refScale = 1.0
	}

	c.baselines = Baselines{
		MDF:       meanOr1(c.restMDF),
		SampEn:    meanOr1(c.restSE),
		MSESampEn: meanOr1(c.restMSE),
		IEMG:      meanOr1(c.restIEMG),
	}

	// calibration inputs are no longer needed once frozen
	c.activeRMS, c.allRMS = nil, nil
	c.restMDF, c.restSE, c.restMSE, c.restIEMG = nil, nil, nil, nil
}

func meanOr1(xs []float64) float64 {
	if len(xs) == 0 {
		return 1.0
	}
	return stat.Mean(xs, nil)
}

// Normalize expresses a feature set relative to the frozen calibration.
// Valid only once Running. A baseline with magnitude below 1e-6 yields a
// delta of exactly 0 rather than a division blow-up.
func (c *Calibrator) Normalize(f FeatureSet) NormalizedFeatures {
	return NormalizedFeatures{
		RMSNorm:    f.RMS / math.Max(c.refScale, 1e-6),
		DIEMG:      rel(f.IEMG, c.baselines.IEMG),
		DMDF:       rel(f.MDF, c.baselines.MDF),
		DSampEn:    rel(f.SampEn, c.baselines.SampEn),
		DMSESampEn: rel(f.MSESampEn, c.baselines.MSESampEn),
	}
}

func rel(v, baseline float64) float64 {
	if math.Abs(baseline) < 1e-6 {
		return 0
	}
	return (v - baseline) / baseline
}
