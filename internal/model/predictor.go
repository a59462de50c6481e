package model

import (
	"log"
	"math"
)

// Tier identifies which inference tier produced a prediction.
type Tier string

const (
	TierMultitask Tier = "multitask"
	TierPerSide   Tier = "per-side"
	TierRule      Tier = "rule"
)

// Guard thresholds for the scaled feature vector. A scaler artifact trained
// on a different feature distribution than the one observed at runtime
// produces silently garbage-scaled features that are worse than no scaling
// at all, so implausible results revert to identity scaling for the cycle.
const (
	allZeroAtol     = 1e-7
	maxPlausibleAbs = 5.0
)

// Prediction is the outcome of one inference cycle. Balance is the
// multitask head's output and is informational; the reported balance index
// is derived downstream from the two fatigue scores and the symmetric
// amplitude differences.
type Prediction struct {
	FIL, FIR float64
	Balance  float64
	Tier     Tier
	// IdentityScaled reports that the guards bypassed the scaler this cycle.
	IdentityScaled bool
}

// Predictor runs the tiered inference chain against a session's registry.
type Predictor struct {
	reg *Registry

	// ForceIdentity unconditionally bypasses the learned scaler
	// (diagnostic mode).
	ForceIdentity bool
	Debug         bool
}

// NewPredictor wraps a loaded registry.
func NewPredictor(reg *Registry) *Predictor {
	return &Predictor{reg: reg}
}

// Predict scores one paired cycle. fused is the cross-side feature vector;
// left and right are the per-side vectors in contract order; tempoNorm is
// the tempo CV already rescaled to [0,1]. The highest available tier is
// used: multitask network, then per-side network, then the closed-form rule.
func (p *Predictor) Predict(fused, left, right []float64, tempoNorm float64) Prediction {
	if p.reg.MT != nil {
		return p.predictMultitask(fused)
	}
	if p.reg.FI != nil {
		return p.predictPerSide(left, right, tempoNorm)
	}
	return Prediction{
		FIL:  ruleFromSide(left, tempoNorm),
		FIR:  ruleFromSide(right, tempoNorm),
		Tier: TierRule,
	}
}

func (p *Predictor) predictMultitask(fused []float64) Prediction {
	aligned := AlignDim(finite(fused), p.reg.MT.InDim())

	scaled := aligned
	identity := p.ForceIdentity
	if !identity {
		scaled = p.reg.MTScaler.Transform(aligned)
		if guardTrips(scaled) {
			log.Printf("model: scaled features implausible; using identity features this cycle")
			scaled = aligned
			identity = true
		}
	}
	if p.Debug {
		lo, hi := minMax(scaled)
		log.Printf("model: scaled range [%.4g, %.4g] scaler=%s identity=%v",
			lo, hi, p.reg.MTScaler.Name(), identity)
	}

	fiL, fiR, bi := p.reg.MT.Forward(scaled)
	return Prediction{FIL: fiL, FIR: fiR, Balance: bi, Tier: TierMultitask, IdentityScaled: identity}
}

func (p *Predictor) predictPerSide(left, right []float64, tempoNorm float64) Prediction {
	score := func(side []float64) float64 {
		x := append(append([]float64{}, side...), tempoNorm)
		aligned := AlignDim(finite(x), p.reg.FI.InDim())

		scaled := aligned
		if !p.ForceIdentity {
			scaled = p.reg.FIScaler.Transform(aligned)
			if guardTrips(scaled) {
				scaled = aligned
			}
		}
		return p.reg.FI.Forward(scaled)
	}
	return Prediction{FIL: score(left), FIR: score(right), Tier: TierPerSide}
}

// ruleFromSide applies the closed-form rule to a per-side vector in contract
// order (rms_norm, diemg, dmdf, dsampen, dmsesen).
func ruleFromSide(side []float64, tempoNorm float64) float64 {
	v := AlignDim(side, 5)
	return RuleFatigue(v[4], v[3], v[2], v[0], tempoNorm)
}

// guardTrips reports whether a scaled vector is unusable: any non-finite
// entry, uniformly (near-)zero, or any entry outside the plausibility bound.
func guardTrips(scaled []float64) bool {
	allZero := true
	for _, v := range scaled {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
		if math.Abs(v) > maxPlausibleAbs {
			return true
		}
		if math.Abs(v) > allZeroAtol {
			allZero = false
		}
	}
	return allZero
}

func minMax(x []float64) (lo, hi float64) {
	if len(x) == 0 {
		return 0, 0
	}
	lo, hi = x[0], x[0]
	for _, v := range x[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
