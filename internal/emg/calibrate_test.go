package emg

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

// fakeClock drives a Calibrator through its time-triggered transitions.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock            { return &fakeClock{t: time.Unix(1700000000, 0)} }
func (c *fakeClock) now() time.Time       { return c.t }
func (c *fakeClock) step(d time.Duration) { c.t = c.t.Add(d) }

func newTestCalibrator(clk *fakeClock) *Calibrator {
	c := NewCalibrator("L", 0)
	c.now = clk.now
	return c
}

func TestCalibrator_PhaseTransitionsAreTimeTriggered(t *testing.T) {
	clk := newFakeClock()
	c := newTestCalibrator(clk)

	require.Equal(t, CalWarmup, c.Phase())

	c.Feed(FeatureSet{RMS: 10}, 0) // anchors the clock
	assert.Equal(t, CalWarmup, c.Phase())

	clk.step(400 * time.Millisecond)
	c.Feed(FeatureSet{RMS: 10}, 0)
	assert.Equal(t, CalWarmup, c.Phase(), "0.4s elapsed: still warming up")

	clk.step(200 * time.Millisecond) // 0.6s total
	c.Feed(FeatureSet{RMS: 10}, 0)
	assert.Equal(t, CalCalibrating, c.Phase())

	clk.step(2800 * time.Millisecond) // 3.4s total
	c.Feed(FeatureSet{RMS: 10}, 0)
	assert.Equal(t, CalCalibrating, c.Phase(), "3.4s elapsed: not yet running")

	clk.step(100 * time.Millisecond) // 3.5s total
	c.Feed(FeatureSet{RMS: 10}, 0)
	assert.Equal(t, CalRunning, c.Phase())
}

func TestCalibrator_ReferenceScaleIs95thPercentileOfActiveRMS(t *testing.T) {
	clk := newFakeClock()
	c := newTestCalibrator(clk)

	c.Feed(FeatureSet{RMS: 1}, 0)
	clk.step(600 * time.Millisecond) // into Calibrating

	var active []float64
	for i := 0; i < 40; i++ {
		rms := 100 + float64(i)*5
		active = append(active, rms)
		c.Feed(FeatureSet{RMS: rms}, 30) // |vel| > threshold: active
		clk.step(50 * time.Millisecond)
	}
	clk.step(2 * time.Second)
	c.Feed(FeatureSet{RMS: 1}, 0) // triggers finalize

	require.Equal(t, CalRunning, c.Phase())

	sort.Float64s(active)
	want := stat.Quantile(0.95, stat.LinInterp, active, nil)
	assert.InDelta(t, want, c.RefScale(), 1e-9)
	assert.Greater(t, c.RefScale(), 0.0)
}

func TestCalibrator_RestSamplesFeedBaselines(t *testing.T) {
	clk := newFakeClock()
	c := newTestCalibrator(clk)

	c.Feed(FeatureSet{RMS: 1}, 0)
	clk.step(600 * time.Millisecond)

	rest := []FeatureSet{
		{RMS: 5, MDF: 80, SampEn: 1.0, MSESampEn: 0.8, IEMG: 40},
		{RMS: 6, MDF: 90, SampEn: 1.2, MSESampEn: 1.0, IEMG: 60},
	}
	for _, f := range rest {
		c.Feed(f, 2) // |vel| <= threshold: rest
		clk.step(50 * time.Millisecond)
	}
	clk.step(3 * time.Second)
	c.Feed(FeatureSet{RMS: 1}, 0)

	require.Equal(t, CalRunning, c.Phase())
	b := c.BaselineMeans()
	assert.InDelta(t, 85.0, b.MDF, 1e-9)
	assert.InDelta(t, 1.1, b.SampEn, 1e-9)
	assert.InDelta(t, 0.9, b.MSESampEn, 1e-9)
	assert.InDelta(t, 50.0, b.IEMG, 1e-9)
}

func TestCalibrator_FrozenOnceRunning(t *testing.T) {
	clk := newFakeClock()
	c := newTestCalibrator(clk)

	c.Feed(FeatureSet{RMS: 100}, 30)
	clk.step(600 * time.Millisecond)
	c.Feed(FeatureSet{RMS: 100}, 30)
	clk.step(3 * time.Second)
	c.Feed(FeatureSet{RMS: 100}, 30)
	require.Equal(t, CalRunning, c.Phase())

	scale, base := c.RefScale(), c.BaselineMeans()
	for i := 0; i < 50; i++ {
		c.Feed(FeatureSet{RMS: 9999, MDF: 9999, SampEn: 9, MSESampEn: 9, IEMG: 9999}, 100)
		clk.step(time.Second)
	}
	assert.Equal(t, scale, c.RefScale(), "reference scale must be frozen")
	assert.Equal(t, base, c.BaselineMeans(), "baselines must be frozen")
	assert.Equal(t, CalRunning, c.Phase())
}

func TestCalibrator_FallbacksWhenAccumulatorsEmpty(t *testing.T) {
	clk := newFakeClock()
	c := newTestCalibrator(clk)

	// Only the anchor feed, then jump straight past the deadline: no active
	// samples, one all-RMS sample, no rest samples.
	c.Feed(FeatureSet{RMS: 0}, 0)
	clk.step(4 * time.Second)
	c.Feed(FeatureSet{RMS: 0}, 100)

	require.Equal(t, CalRunning, c.Phase())
	assert.Equal(t, 1.0, c.RefScale(), "zero RMS floors to 1.0")
	assert.Equal(t, Baselines{MDF: 1, SampEn: 1, MSESampEn: 1, IEMG: 1}, c.BaselineMeans())
}

func TestCalibrator_NormalizeContract(t *testing.T) {
	clk := newFakeClock()
	c := newTestCalibrator(clk)

	c.Feed(FeatureSet{RMS: 1}, 0)
	clk.step(600 * time.Millisecond)
	c.Feed(FeatureSet{RMS: 200}, 30) // active
	c.Feed(FeatureSet{MDF: 100, SampEn: 2, MSESampEn: 1, IEMG: 50}, 0) // rest
	clk.step(3 * time.Second)
	c.Feed(FeatureSet{RMS: 1}, 0)
	require.Equal(t, CalRunning, c.Phase())

	n := c.Normalize(FeatureSet{RMS: 100, MDF: 90, SampEn: 3, MSESampEn: 2, IEMG: 25})
	assert.InDelta(t, 100.0/c.RefScale(), n.RMSNorm, 1e-12)
	assert.InDelta(t, (90.0-100.0)/100.0, n.DMDF, 1e-12)
	assert.InDelta(t, (3.0-2.0)/2.0, n.DSampEn, 1e-12)
	assert.InDelta(t, (2.0-1.0)/1.0, n.DMSESampEn, 1e-12)
	assert.InDelta(t, (25.0-50.0)/50.0, n.DIEMG, 1e-12)
	assert.GreaterOrEqual(t, n.RMSNorm, 0.0)
}

func TestCalibrator_NearZeroBaselineYieldsZeroDelta(t *testing.T) {
	clk := newFakeClock()
	c := newTestCalibrator(clk)

	c.Feed(FeatureSet{RMS: 1}, 0)
	clk.step(600 * time.Millisecond)
	// rest features all ~zero: baselines collapse below the guard threshold
	c.Feed(FeatureSet{MDF: 0, SampEn: 0, MSESampEn: 0, IEMG: 1e-9}, 0)
	clk.step(3 * time.Second)
	c.Feed(FeatureSet{RMS: 1}, 0)
	require.Equal(t, CalRunning, c.Phase())

	n := c.Normalize(FeatureSet{RMS: 10, MDF: 50, SampEn: 1, MSESampEn: 1, IEMG: 20})
	assert.Zero(t, n.DMDF)
	assert.Zero(t, n.DSampEn)
	assert.Zero(t, n.DMSESampEn)
	assert.Zero(t, n.DIEMG)
	assert.False(t, math.IsInf(n.RMSNorm, 0))
}
