package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffineScalerTransform(t *testing.T) {
	s := &AffineScaler{Mean: []float64{1, 2}, Scale: []float64{2, 4}}

	got := s.Transform([]float64{3, 2})
	assert.InDelta(t, 1.0, got[0], 1e-12)
	assert.InDelta(t, 0.0, got[1], 1e-12)
}

func TestAffineScalerDoesNotModifyInput(t *testing.T) {
	s := &AffineScaler{Mean: []float64{10}, Scale: []float64{1}}
	in := []float64{3}
	_ = s.Transform(in)
	assert.Equal(t, 3.0, in[0])
}

func TestAffineScalerExtraDimsPassThrough(t *testing.T) {
	s := &AffineScaler{Mean: []float64{0}, Scale: []float64{2}}

	got := s.Transform([]float64{4, 7})
	assert.Equal(t, []float64{2, 7}, got)
}

func TestLoadAffineScalerFixesZeroScale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaler.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mean":[1,1],"scale":[0,2]}`), 0o644))

	s, err := loadAffineScaler(path)
	require.NoError(t, err)

	got := s.Transform([]float64{3, 3})
	assert.Equal(t, 2.0, got[0], "zero scale entry should divide by 1")
	assert.Equal(t, 1.0, got[1])
}

func TestLoadAffineScalerRejectsMismatchedLengths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaler.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mean":[1,2],"scale":[1]}`), 0o644))

	_, err := loadAffineScaler(path)
	assert.Error(t, err)
}

func TestAlignDim(t *testing.T) {
	t.Run("truncates", func(t *testing.T) {
		assert.Equal(t, []float64{1, 2}, AlignDim([]float64{1, 2, 3}, 2))
	})
	t.Run("zero pads", func(t *testing.T) {
		assert.Equal(t, []float64{1, 2, 0, 0}, AlignDim([]float64{1, 2}, 4))
	})
	t.Run("exact width copies", func(t *testing.T) {
		in := []float64{1, 2}
		out := AlignDim(in, 2)
		assert.Equal(t, in, out)
		out[0] = 9
		assert.Equal(t, 1.0, in[0])
	})
}

func TestFiniteZeroesBadEntries(t *testing.T) {
	got := finite([]float64{1, math.NaN(), math.Inf(1), math.Inf(-1), -2})
	assert.Equal(t, []float64{1, 0, 0, 0, -2}, got)
}
