// Package emg implements the per-side processing unit for one muscle channel:
// a bounded sample ring, windowed feature extraction, and the online
// calibration state machine that turns raw features into normalized records.
package emg

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"
)

const eps = 1e-8

// FeatureSet holds the windowed statistics computed from one analysis window.
// Values are recomputed fresh every cycle and never cached.
type FeatureSet struct {
	RMS       float64 // root-mean-square amplitude
	MDF       float64 // median power-spectral-density frequency, Hz
	SampEn    float64 // sample entropy (m=2, r=0.2*std)
	MSESampEn float64 // sample entropy averaged over coarse-graining scales 1..4
	IEMG      float64 // mean absolute amplitude
}

// Extract computes the full feature set from a window of samples. The window
// is mean-centered internally; the caller's slice is not modified. Non-finite
// input values are substituted with zero before any statistic is computed so
// NaN/Inf can never propagate into the pipeline.
func Extract(x []float64, fs float64) FeatureSet {
	c := make([]float64, len(x))
	copy(c, x)
	sanitize(c)
	center(c)

	return FeatureSet{
		RMS:       RMS(c),
		MDF:       MDF(c, fs),
		SampEn:    SampleEntropy(c, 2, 0),
		MSESampEn: MSESampEn(c, 2),
		IEMG:      IEMG(c),
	}
}

// sanitize replaces non-finite entries with zero in place.
func sanitize(x []float64) {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			x[i] = 0
		}
	}
}

func center(x []float64) {
	if len(x) == 0 {
		return
	}
	m := stat.Mean(x, nil)
	for i := range x {
		x[i] -= m
	}
}

// RMS returns the root-mean-square of x with a small additive epsilon so the
// result is never exactly zero (it is later used as a divisor).
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return math.Sqrt(eps)
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(x)) + eps)
}

// IEMG returns the mean absolute amplitude of x.
func IEMG(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += math.Abs(v)
	}
	return sum / float64(len(x))
}

// Welch estimator parameters. Segment length tracks the window size up to
// maxSegmentLen; the FFT length is fixed so the frequency grid does not move
// with the analysis window.
const (
	maxSegmentLen = 120
	fftLen        = 512
)

// MDF returns the median frequency of the Welch power-spectral-density
// estimate of x: the frequency below which half the spectral mass lies,
// located by cumulative-sum bisection with linear interpolation between
// neighbouring bins. Windows shorter than 8 samples, or spectra with no
// mass, yield 0.
func MDF(x []float64, fs float64) float64 {
	c := make([]float64, len(x))
	copy(c, x)
	sanitize(c)
	center(c)
	if len(c) < 8 {
		return 0
	}

	nper := len(c)
	if nper > maxSegmentLen {
		nper = maxSegmentLen
	}
	freqs, pxx := welchPSD(c, fs, nper, nper/2, fftLen)
	if len(pxx) == 0 {
		return 0
	}

	cum := make([]float64, len(pxx))
	var total float64
	for i, p := range pxx {
		total += p
		cum[i] = total
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return 0
	}

	half := total * 0.5
	k := searchSorted(cum, half)
	if k <= 0 {
		return freqs[0]
	}
	if k >= len(freqs) {
		return freqs[len(freqs)-1]
	}
	frac := (half - cum[k-1]) / (cum[k] - cum[k-1] + 1e-12)
	return freqs[k-1] + frac*(freqs[k]-freqs[k-1])
}

// welchPSD estimates a one-sided PSD by averaging Hann-windowed, per-segment
// demeaned periodograms over 50%-overlapped segments, zero-padded to nfft.
func welchPSD(x []float64, fs float64, nper, nover, nfft int) (freqs, pxx []float64) {
	step := nper - nover
	if step <= 0 || len(x) < nper {
		return nil, nil
	}

	hann := window.Hann(onesSlice(nper))
	var winPower float64
	for _, w := range hann {
		winPower += w * w
	}
	scale := 1.0 / (fs * winPower)

	fft := fourier.NewFFT(nfft)
	nbins := nfft/2 + 1
	pxx = make([]float64, nbins)
	padded := make([]float64, nfft)

	segments := 0
	for start := 0; start+nper <= len(x); start += step {
		seg := padded[:nper]
		copy(seg, x[start:start+nper])
		center(seg)
		for i := range seg {
			seg[i] *= hann[i]
		}
		for i := nper; i < nfft; i++ {
			padded[i] = 0
		}

		coeffs := fft.Coefficients(nil, padded)
		for i, c := range coeffs {
			p := (real(c)*real(c) + imag(c)*imag(c)) * scale
			// one-sided spectrum: double everything except DC and Nyquist
			if i != 0 && i != nbins-1 {
				p *= 2
			}
			pxx[i] += p
		}
		segments++
	}
	if segments == 0 {
		return nil, nil
	}
	for i := range pxx {
		pxx[i] /= float64(segments)
	}

	freqs = make([]float64, nbins)
	for i := range freqs {
		freqs[i] = float64(i) * fs / float64(nfft)
	}
	return freqs, pxx
}

func onesSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

// searchSorted returns the first index i with c[i] >= v, or len(c).
func searchSorted(c []float64, v float64) int {
	lo, hi := 0, len(c)
	for lo < hi {
		mid := (lo + hi) / 2
		if c[mid] < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// SampleEntropy returns the sample entropy of x with embedding dimension m.
// If r <= 0 the tolerance defaults to 0.2 times the population standard
// deviation. Sequences shorter than m+2, or with no template matches at
// either embedding length, return 0 rather than an undefined log ratio.
func SampleEntropy(x []float64, m int, r float64) float64 {
	n := len(x)
	if n < m+2 {
		return 0
	}
	if r <= 0 {
		r = 0.2*stat.PopStdDev(x, nil) + eps
	}

	phi := func(mm int) int {
		cnt := 0
		for i := 0; i < n-mm; i++ {
			for j := i + 1; j <= n-mm; j++ {
				match := true
				for k := 0; k < mm; k++ {
					if math.Abs(x[i+k]-x[j+k]) > r {
						match = false
						break
					}
				}
				if match {
					cnt++
				}
			}
		}
		return cnt
	}

	a := phi(m + 1)
	b := phi(m)
	if a == 0 || b == 0 {
		return 0
	}
	return -math.Log((float64(a) + eps) / (float64(b) + eps))
}

// mseScales are the coarse-graining factors averaged by MSESampEn.
var mseScales = []int{1, 2, 3, 4}

// MSESampEn returns the mean sample entropy over coarse-grained versions of
// x at scales 1..4. A scale whose coarse-grained series is too short to
// estimate contributes 0.
func MSESampEn(x []float64, m int) float64 {
	var sum float64
	for _, tau := range mseScales {
		cg := coarseGrain(x, tau)
		if len(cg) < m+2 {
			continue // contributes 0
		}
		sum += SampleEntropy(cg, m, 0.2*stat.PopStdDev(cg, nil)+eps)
	}
	return sum / float64(len(mseScales))
}

// coarseGrain block-averages x into non-overlapping blocks of length tau.
func coarseGrain(x []float64, tau int) []float64 {
	if tau <= 1 {
		return x
	}
	l := (len(x) / tau) * tau
	if l == 0 {
		return nil
	}
	out := make([]float64, l/tau)
	for i := range out {
		var sum float64
		for j := 0; j < tau; j++ {
			sum += x[i*tau+j]
		}
		out[i] = sum / float64(tau)
	}
	return out
}
