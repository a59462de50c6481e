package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// safeSigmoid is the numerically-safe logistic 0.5*(1+tanh(0.5x)); unlike
// 1/(1+exp(-x)) it cannot overflow at extreme logits.
func safeSigmoid(x float64) float64 {
	return 0.5 * (1.0 + math.Tanh(0.5*x))
}

func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

// matVec computes x*W + b for a row vector x and a (len(x) x cols) weight
// matrix stored row-major.
func matVec(x []float64, w [][]float64, b []float64) []float64 {
	cols := len(b)
	out := make([]float64, cols)
	copy(out, b)
	for i, xi := range x {
		if i >= len(w) {
			break
		}
		row := w[i]
		for j := 0; j < cols && j < len(row); j++ {
			out[j] += xi * row[j]
		}
	}
	return out
}

// MultitaskNet is the two-hidden-layer feed-forward network producing both
// fatigue scores and a balance score from the fused feature vector.
type MultitaskNet struct {
	WB1 [][]float64 `json:"wb1"`
	BB1 []float64   `json:"bb1"`
	WB2 [][]float64 `json:"wb2"`
	BB2 []float64   `json:"bb2"`
	WFI [][]float64 `json:"w_fi"`
	BFI []float64   `json:"b_fi"`
	WBI [][]float64 `json:"w_bi"`
	BBI []float64   `json:"b_bi"`
}

// InDim returns the input width the network was trained on.
func (m *MultitaskNet) InDim() int { return len(m.WB1) }

func (m *MultitaskNet) validate() error {
	if len(m.WB1) == 0 || len(m.BB1) == 0 || len(m.WB2) == 0 || len(m.BB2) == 0 ||
		len(m.WFI) == 0 || len(m.BFI) != 2 || len(m.WBI) == 0 || len(m.BBI) != 1 {
		return fmt.Errorf("model: multitask artifact incomplete")
	}
	return nil
}

// Forward runs one inference. Non-finite inputs are zeroed first; the
// sigmoid heads keep every output in [0,1].
func (m *MultitaskNet) Forward(x []float64) (fiL, fiR, balance float64) {
	h := matVec(finite(x), m.WB1, m.BB1)
	for i := range h {
		h[i] = relu(h[i])
	}
	h = matVec(h, m.WB2, m.BB2)
	for i := range h {
		h[i] = relu(h[i])
	}
	fi := matVec(h, m.WFI, m.BFI)
	bi := matVec(h, m.WBI, m.BBI)
	return safeSigmoid(fi[0]), safeSigmoid(fi[1]), safeSigmoid(bi[0])
}

// SideNet is the smaller single-output network scoring one side's fatigue.
type SideNet struct {
	W1 [][]float64 `json:"w1"`
	B1 []float64   `json:"b1"`
	W2 [][]float64 `json:"w2"`
	B2 []float64   `json:"b2"`
}

// InDim returns the input width the network was trained on.
func (m *SideNet) InDim() int { return len(m.W1) }

func (m *SideNet) validate() error {
	if len(m.W1) == 0 || len(m.B1) == 0 || len(m.W2) == 0 || len(m.B2) == 0 {
		return fmt.Errorf("model: per-side artifact incomplete")
	}
	return nil
}

// Forward scores one side, clipped to [0,1].
func (m *SideNet) Forward(x []float64) float64 {
	h := matVec(finite(x), m.W1, m.B1)
	for i := range h {
		h[i] = relu(h[i])
	}
	y := matVec(h, m.W2, m.B2)
	return math.Min(1, math.Max(0, safeSigmoid(y[0])))
}

func loadMultitaskNet(path string) (*MultitaskNet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m MultitaskNet
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("model: parse %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func loadSideNet(path string) (*SideNet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m SideNet
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("model: parse %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// RuleFatigue is the closed-form fatigue estimate used when no network
// artifact is available. Inputs are one side's baseline-relative deltas, its
// normalized RMS, and the normalized tempo CV; the result is clipped to
// [0,1].
func RuleFatigue(dMSESampEn, dSampEn, dMDF, rmsNorm, tempoNorm float64) float64 {
	emgPart := 0.35*dMSESampEn + 0.30*dSampEn + 0.25*dMDF +
		0.10*(1.0-math.Min(1, math.Max(0, rmsNorm)))
	v := 0.8*emgPart + 0.2*tempoNorm
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
