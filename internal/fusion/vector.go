package fusion

import (
	"math"

	"github.com/kinevo-data/fatigue.report/internal/emg"
)

// VectorDim is the width of the fused feature vector. The ordering below is
// a wire contract with the trained model artifacts: five per-side values for
// each side, five symmetric absolute differences, two ratios, and the
// normalized tempo coefficient of variation.
const VectorDim = 18

const ratioEps = 1e-6

// NormalizeCV rescales a raw tempo coefficient of variation to [0,1]. Values
// above 2.0 are assumed to be percentages and divided by 100 first.
func NormalizeCV(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > 2.0 {
		v /= 100.0
	}
	return clip01(v)
}

// SideVector returns one side's five normalized values in contract order:
// rms_norm, then the iemg/mdf/sampen/msesen deltas.
func SideVector(r emg.Record) []float64 {
	return []float64{r.RMSNorm, r.DIEMG, r.DMDF, r.DSampEn, r.DMSESampEn}
}

// Fuse builds the 18-dimensional model input from a paired cycle.
func Fuse(p PairedCycle) []float64 {
	l, r := p.Left, p.Right

	out := make([]float64, 0, VectorDim)
	out = append(out,
		l.RMSNorm, l.DIEMG, l.DMDF, l.DSampEn, l.DMSESampEn,
		r.RMSNorm, r.DIEMG, r.DMDF, r.DSampEn, r.DMSESampEn,
		math.Abs(l.RMSNorm-r.RMSNorm),
		math.Abs(l.DIEMG-r.DIEMG),
		math.Abs(l.DMDF-r.DMDF),
		math.Abs(l.DSampEn-r.DSampEn),
		math.Abs(l.DMSESampEn-r.DMSESampEn),
		l.RMSNorm/(r.RMSNorm+ratioEps),
		l.DIEMG/(r.DIEMG+ratioEps),
		NormalizeCV(p.TempoCV),
	)
	return out
}

// Asymmetry carries the cross-side balance metrics derived from a paired
// cycle and its two fatigue scores. All indices are clamped to [0,1].
type Asymmetry struct {
	AIF      float64 // |FI_L - FI_R|
	AIRMS    float64 // |rms_norm_L - rms_norm_R|, clipped
	AIIEMG   float64 // |diemg_L - diemg_R|, clipped
	BI       float64 // balance index
	DirScore float64 // signed left-minus-right imbalance direction
}

// ComputeAsymmetry derives the balance metrics for a paired cycle given the
// per-side fatigue scores.
func ComputeAsymmetry(p PairedCycle, fiL, fiR float64) Asymmetry {
	a := Asymmetry{
		AIF:    math.Abs(fiL - fiR),
		AIRMS:  clip01(math.Abs(p.Left.RMSNorm - p.Right.RMSNorm)),
		AIIEMG: clip01(math.Abs(p.Left.DIEMG - p.Right.DIEMG)),
	}
	a.BI = clip01(0.4*a.AIRMS + 0.4*a.AIIEMG + 0.2*a.AIF)
	a.DirScore = 0.4*(p.Left.RMSNorm-p.Right.RMSNorm) +
		0.4*(p.Left.DIEMG-p.Right.DIEMG) +
		0.2*(fiL-fiR)
	return a
}

func clip01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
