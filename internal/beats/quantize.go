package beats

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// QuantizerConfig controls boundary snapping and its safety limits
type QuantizerConfig struct {
	MinConfidence    float64 // grids below this confidence are ignored
	MaxStartShift    float64 // seconds a start may move before reverting
	MinDurationRatio float64
	MaxDurationRatio float64
}

// DefaultQuantizerConfig returns the standard quantization limits
func DefaultQuantizerConfig() QuantizerConfig {
	return QuantizerConfig{
		MinConfidence:    0.3,
		MaxStartShift:    10,
		MinDurationRatio: 0.5,
		MaxDurationRatio: 2.0,
	}
}

// Bounds limits a single snap operation. MaxLaterShift caps how far the
// start may move forward, so a snap never eats into the moment the
// segment was placed around.
type Bounds struct {
	MinLen        float64
	MaxLen        float64
	MaxLaterShift float64
}

// Quantizer aligns segment boundaries to a beat grid
type Quantizer struct {
	cfg    QuantizerConfig
	logger zerolog.Logger
}

// NewQuantizer creates a boundary quantizer
func NewQuantizer(logger zerolog.Logger, cfg QuantizerConfig) *Quantizer {
	return &Quantizer{
		cfg:    cfg,
		logger: logger.With().Str("component", "quantize").Logger(),
	}
}

// Snap aligns start to the last beat at or before it and duration to a
// whole beat count within bounds. Low-confidence grids, snaps that move
// boundaries too far, and bounds no beat count can satisfy all leave the
// input unchanged and report aligned=false.
func (q *Quantizer) Snap(start, duration float64, grid Grid, bounds Bounds) (float64, float64, bool) {
	if grid.Untrackable() || grid.Confidence < q.cfg.MinConfidence {
		return start, duration, false
	}
	if duration <= 0 {
		return start, duration, false
	}

	newStart := snapStart(start, grid.Beats)
	if newStart > start+bounds.MaxLaterShift {
		q.logger.Debug().
			Float64("start", start).
			Float64("snapped", newStart).
			Msg("snap would push start past the highlight, keeping original")
		return start, duration, false
	}
	if math.Abs(newStart-start) > q.cfg.MaxStartShift {
		q.logger.Debug().
			Float64("start", start).
			Float64("snapped", newStart).
			Msg("snap moved start too far, keeping original")
		return start, duration, false
	}

	beatLen := 60 / grid.BPM
	countMin := int(math.Ceil(bounds.MinLen/beatLen - 1e-9))
	if countMin < 1 {
		countMin = 1
	}
	countMax := int(math.Floor(bounds.MaxLen/beatLen + 1e-9))
	if countMin > countMax {
		q.logger.Debug().
			Float64("beat_len", beatLen).
			Msg("no whole beat count fits the length bounds, keeping original")
		return start, duration, false
	}

	count := int(math.Round(duration / beatLen))
	if count < countMin {
		count = countMin
	}
	if count > countMax {
		count = countMax
	}
	newDur := float64(count) * beatLen

	ratio := newDur / duration
	if ratio < q.cfg.MinDurationRatio || ratio > q.cfg.MaxDurationRatio {
		q.logger.Debug().
			Float64("ratio", ratio).
			Msg("snap changed duration too much, keeping original")
		return start, duration, false
	}

	return newStart, newDur, true
}

// snapStart returns the last beat at or before start, or the first beat
// when none precedes it
func snapStart(start float64, beats []float64) float64 {
	idx := sort.SearchFloat64s(beats, start)
	if idx < len(beats) && beats[idx] == start {
		return start
	}
	if idx > 0 {
		return beats[idx-1]
	}
	return beats[0]
}
