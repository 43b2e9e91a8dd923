package novelty

import (
	"math"
	"math/cmplx"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/kikiluvv/hypecut/internal/signal"
)

// Config holds the spectral analysis parameters
type Config struct {
	SampleRate     int
	WindowSize     int
	HopSize        int
	OnsetWeight    float64
	ContrastWeight float64
	SmoothWindow   float64 // seconds
	PercentileLow  float64
	PercentileHigh float64
}

// DefaultConfig returns the standard analysis parameters
func DefaultConfig() Config {
	return Config{
		SampleRate:     22050,
		WindowSize:     2048,
		HopSize:        512,
		OnsetWeight:    0.7,
		ContrastWeight: 0.3,
		SmoothWindow:   0.5,
		PercentileLow:  5,
		PercentileHigh: 95,
	}
}

// Scorer computes a novelty curve from mono audio samples
type Scorer struct {
	cfg    Config
	logger zerolog.Logger
}

// NewScorer creates a novelty scorer
func NewScorer(logger zerolog.Logger, cfg Config) *Scorer {
	return &Scorer{
		cfg:    cfg,
		logger: logger.With().Str("component", "novelty").Logger(),
	}
}

// Score produces the novelty curve for the given samples. The curve is
// sampled at the hop rate starting at t=0. Non-finite samples are treated
// as silence; input shorter than one window yields a single-sample curve.
func (s *Scorer) Score(samples []float64) signal.Curve {
	step := float64(s.cfg.HopSize) / float64(s.cfg.SampleRate)

	clean := make([]float64, len(samples))
	copy(clean, samples)
	signal.Sanitize(clean)

	mags := stftMagnitudes(clean, s.cfg.WindowSize, s.cfg.HopSize)

	onset := signal.RobustNormalize(onsetFlux(mags), s.cfg.PercentileLow, s.cfg.PercentileHigh)
	contrast := signal.RobustNormalize(bandContrast(mags), s.cfg.PercentileLow, s.cfg.PercentileHigh)

	values := make([]float64, len(onset))
	for i := range values {
		values[i] = s.cfg.OnsetWeight*onset[i] + s.cfg.ContrastWeight*contrast[i]
	}

	width := int(s.cfg.SmoothWindow * float64(s.cfg.SampleRate) / float64(s.cfg.HopSize))
	values = signal.Smooth(values, width)

	s.logger.Debug().
		Int("frames", len(values)).
		Float64("step", step).
		Msg("novelty curve computed")

	return signal.New(0, step, values)
}

// OnsetStrength computes the positive spectral-flux envelope, sampled at
// the hop rate. Shared with beat tracking.
func OnsetStrength(samples []float64, sampleRate, windowSize, hopSize int) signal.Curve {
	clean := make([]float64, len(samples))
	copy(clean, samples)
	signal.Sanitize(clean)

	mags := stftMagnitudes(clean, windowSize, hopSize)
	return signal.New(0, float64(hopSize)/float64(sampleRate), onsetFlux(mags))
}

// stftMagnitudes returns per-frame magnitude spectra. The input is padded
// by half a window on both sides so frame i is centered at i*hop.
func stftMagnitudes(samples []float64, windowSize, hopSize int) [][]float64 {
	half := windowSize / 2
	padded := make([]float64, len(samples)+2*half)
	copy(padded[half:], samples)

	frames := 1 + (len(padded)-windowSize)/hopSize
	if frames < 1 {
		frames = 1
	}

	hann := hannWindow(windowSize)
	fft := fourier.NewFFT(windowSize)
	bins := windowSize/2 + 1

	mags := make([][]float64, frames)
	buf := make([]float64, windowSize)
	coeffs := make([]complex128, bins)

	for f := 0; f < frames; f++ {
		off := f * hopSize
		for i := 0; i < windowSize; i++ {
			if off+i < len(padded) {
				buf[i] = padded[off+i] * hann[i]
			} else {
				buf[i] = 0
			}
		}
		coeffs = fft.Coefficients(coeffs, buf)

		row := make([]float64, bins)
		for b, c := range coeffs {
			row[b] = cmplx.Abs(c)
		}
		mags[f] = row
	}
	return mags
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// onsetFlux sums the positive frame-to-frame spectral differences.
// The first frame has no predecessor and scores zero.
func onsetFlux(mags [][]float64) []float64 {
	out := make([]float64, len(mags))
	for f := 1; f < len(mags); f++ {
		prev, cur := mags[f-1], mags[f]
		var sum float64
		for b := range cur {
			if d := cur[b] - prev[b]; d > 0 {
				sum += d
			}
		}
		out[f] = sum
	}
	return out
}

// bandContrast scores each frame by the variance across the mean energies
// of the low, mid and high spectral thirds.
func bandContrast(mags [][]float64) []float64 {
	out := make([]float64, len(mags))
	for f, row := range mags {
		third := len(row) / 3
		if third == 0 {
			continue
		}

		m1 := stat.Mean(row[:third], nil)
		m2 := stat.Mean(row[third:2*third], nil)
		m3 := stat.Mean(row[2*third:], nil)

		mu := (m1 + m2 + m3) / 3
		out[f] = ((m1-mu)*(m1-mu) + (m2-mu)*(m2-mu) + (m3-mu)*(m3-mu)) / 3
	}
	return out
}
