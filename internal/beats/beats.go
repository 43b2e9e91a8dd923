package beats

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/kikiluvv/hypecut/internal/novelty"
	"github.com/kikiluvv/hypecut/internal/signal"
)

// Grid is the estimated beat structure of an audio signal.
// BPM <= 0 or an empty beat list marks the signal untrackable; confidence
// is forced to zero in that case.
type Grid struct {
	BPM        float64
	Beats      []float64 // beat times in seconds, ascending
	Confidence float64   // [0,1]
}

// Untrackable reports whether the grid carries no usable beat structure
func (g Grid) Untrackable() bool {
	return g.BPM <= 0 || len(g.Beats) == 0
}

// TrackerConfig holds the tempo estimation parameters
type TrackerConfig struct {
	SampleRate int
	WindowSize int
	HopSize    int
	MinBPM     float64
	MaxBPM     float64
	PriorBPM   float64 // tempo prior center, weighted in log2 space
}

// DefaultTrackerConfig returns the standard tracking parameters
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		SampleRate: 22050,
		WindowSize: 2048,
		HopSize:    512,
		MinBPM:     60,
		MaxBPM:     200,
		PriorBPM:   120,
	}
}

// Tracker estimates a representative tempo and beat grid
type Tracker struct {
	cfg    TrackerConfig
	logger zerolog.Logger
}

// NewTracker creates a beat tracker
func NewTracker(logger zerolog.Logger, cfg TrackerConfig) *Tracker {
	return &Tracker{
		cfg:    cfg,
		logger: logger.With().Str("component", "beats").Logger(),
	}
}

// minBeats is the smallest beat count that supports a confidence estimate
const minBeats = 4

// Track estimates the beat grid for the given mono samples. Silence and
// signals too short to correlate return an untrackable grid with
// confidence zero rather than an error.
func (t *Tracker) Track(samples []float64) Grid {
	env := novelty.OnsetStrength(samples, t.cfg.SampleRate, t.cfg.WindowSize, t.cfg.HopSize)

	peak := 0.0
	for _, v := range env.Values {
		if v > peak {
			peak = v
		}
	}
	if peak <= 1e-10 {
		t.logger.Debug().Msg("silent input, beat tracking unavailable")
		return Grid{}
	}

	step := env.Step
	lagMin := int(math.Round(60 / (t.cfg.MaxBPM * step)))
	lagMax := int(math.Round(60 / (t.cfg.MinBPM * step)))
	if lagMin < 1 {
		lagMin = 1
	}
	if env.Len() <= lagMax+1 {
		t.logger.Debug().Int("frames", env.Len()).Msg("input too short to correlate, beat tracking unavailable")
		return Grid{}
	}

	period := t.bestLag(env.Values, lagMin, lagMax, step)
	if period <= 0 {
		return Grid{}
	}

	bpm := 60 / (period * step)
	beats := t.placeBeats(env, period)
	conf := t.confidence(beats)

	t.logger.Debug().
		Float64("bpm", bpm).
		Int("beats", len(beats)).
		Float64("confidence", conf).
		Msg("beat grid estimated")

	return Grid{BPM: bpm, Beats: beats, Confidence: conf}
}

// bestLag scores envelope autocorrelation per lag, weighted by a log-domain
// tempo prior, and refines the winner parabolically. Returns the period in
// fractional frames.
func (t *Tracker) bestLag(env []float64, lagMin, lagMax int, step float64) float64 {
	n := len(env)
	mean := stat.Mean(env, nil)
	centered := make([]float64, n)
	for i, v := range env {
		centered[i] = v - mean
	}

	ac := make([]float64, lagMax+2)
	for lag := lagMin; lag <= lagMax+1 && lag < n; lag++ {
		var sum float64
		for i := 0; i+lag < n; i++ {
			sum += centered[i] * centered[i+lag]
		}
		ac[lag] = sum / float64(n-lag)
	}

	bestScore := math.Inf(-1)
	best := -1
	for lag := lagMin; lag <= lagMax; lag++ {
		bpm := 60 / (float64(lag) * step)
		oct := math.Log2(bpm / t.cfg.PriorBPM)
		weight := math.Exp(-0.5 * oct * oct)
		if score := ac[lag] * weight; score > bestScore {
			bestScore = score
			best = lag
		}
	}
	if best < 0 {
		return 0
	}

	// parabolic refinement against the raw autocorrelation
	lag := float64(best)
	if best > lagMin && best < lagMax {
		y0, y1, y2 := ac[best-1], ac[best], ac[best+1]
		denom := y0 - 2*y1 + y2
		if math.Abs(denom) > 1e-12 {
			delta := 0.5 * (y0 - y2) / denom
			if delta > -1 && delta < 1 {
				lag += delta
			}
		}
	}
	return lag
}

// placeBeats fits the beat phase with the most envelope energy, then snaps
// each grid position to the local envelope maximum within a quarter period.
func (t *Tracker) placeBeats(env signal.Curve, period float64) []float64 {
	n := env.Len()

	bestPhase, bestEnergy := 0, math.Inf(-1)
	for phase := 0; phase < int(period) && phase < n; phase++ {
		var energy float64
		for pos := float64(phase); pos < float64(n); pos += period {
			idx := int(math.Round(pos))
			if idx >= n {
				break
			}
			energy += env.Values[idx]
		}
		if energy > bestEnergy {
			bestEnergy = energy
			bestPhase = phase
		}
	}

	snap := int(period / 4)
	var beats []float64
	for pos := float64(bestPhase); pos < float64(n); pos += period {
		center := int(math.Round(pos))
		if center >= n {
			break
		}
		lo, hi := center-snap, center+snap
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		best := lo
		for i := lo + 1; i <= hi; i++ {
			if env.Values[i] > env.Values[best] {
				best = i
			}
		}
		beats = append(beats, env.Time(best))
	}
	return beats
}

// confidence scores inter-beat interval regularity: 0.7 weight on
// 1 - cv(intervals), 0.3 on the fraction of intervals within 10% of the
// median. Fewer than minBeats beats scores zero.
func (t *Tracker) confidence(beats []float64) float64 {
	if len(beats) < minBeats {
		return 0
	}

	ibis := make([]float64, len(beats)-1)
	for i := 1; i < len(beats); i++ {
		ibis[i-1] = beats[i] - beats[i-1]
	}

	mean := stat.Mean(ibis, nil)
	if mean <= 0 {
		return 0
	}
	cv := stat.StdDev(ibis, nil) / mean
	consistency := 1 - cv
	if consistency < 0 {
		consistency = 0
	}

	med := median(ibis)
	within := 0
	for _, ibi := range ibis {
		if med > 0 && math.Abs(ibi-med)/med <= 0.1 {
			within++
		}
	}
	accuracy := float64(within) / float64(len(ibis))

	conf := 0.7*consistency + 0.3*accuracy
	if conf > 1 {
		conf = 1
	}
	return conf
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
