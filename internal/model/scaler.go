// Package model implements the layered inference chain: a learned affine
// scaler composed with a small feed-forward network, degrading tier by tier
// to a closed-form rule when artifacts are unavailable, with runtime sanity
// guards that can bypass the scaler for a single cycle.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Scaler normalizes a feature vector before inference.
type Scaler interface {
	// Transform returns the scaled vector. The input is not modified.
	Transform(x []float64) []float64
	// Name identifies the scaler tier for diagnostics.
	Name() string
}

// IdentityScaler passes features through untouched. It is the terminal
// fallback when no scaler artifact can be loaded, and the per-cycle bypass
// target when the guards trip.
type IdentityScaler struct{}

func (IdentityScaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}

func (IdentityScaler) Name() string { return "identity" }

// AffineScaler applies the learned standardization (x - mean) / scale.
// Zero scale entries are fixed to 1 at load time so a degenerate artifact
// cannot divide by zero.
type AffineScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *AffineScaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if i < len(s.Mean) && i < len(s.Scale) {
			out[i] = (v - s.Mean[i]) / s.Scale[i]
		} else {
			out[i] = v
		}
	}
	return out
}

func (s *AffineScaler) Name() string { return "affine" }

func (s *AffineScaler) validate() error {
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("model: scaler mean/scale lengths %d/%d", len(s.Mean), len(s.Scale))
	}
	for i, v := range s.Scale {
		if v == 0 {
			s.Scale[i] = 1
		}
	}
	return nil
}

// loadAffineScaler reads an affine scaler artifact from a JSON file.
func loadAffineScaler(path string) (*AffineScaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s AffineScaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("model: parse scaler %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// AlignDim truncates or zero-pads x to the given width. The model artifact's
// input dimension wins over the fuser's output width.
func AlignDim(x []float64, want int) []float64 {
	out := make([]float64, want)
	copy(out, x)
	return out
}

// finite replaces non-finite entries with zero, in a copy.
func finite(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = 0
		} else {
			out[i] = v
		}
	}
	return out
}
