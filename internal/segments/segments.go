package segments

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/hypecut/internal/beats"
	"github.com/kikiluvv/hypecut/internal/peaks"
)

// Segment is one finalized highlight clip candidate
type Segment struct {
	ClipID  int     `json:"clip_id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Center  float64 `json:"center"`
	Score   float64 `json:"score"`
	Seeded  bool    `json:"seed_based"`
	Aligned bool    `json:"aligned"`
}

// Duration returns the segment length in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Config holds the segment shaping parameters
type Config struct {
	MinLen  float64 // seconds
	MaxLen  float64 // seconds
	PreRoll float64 // seconds before the peak
}

// Builder turns peak times into clamped, ordered, non-overlapping segments
type Builder struct {
	cfg    Config
	logger zerolog.Logger
}

// NewBuilder creates a segment builder
func NewBuilder(logger zerolog.Logger, cfg Config) *Builder {
	return &Builder{
		cfg:    cfg,
		logger: logger.With().Str("component", "segments").Logger(),
	}
}

// Build finalizes peaks into segments without beat alignment. It returns
// the chronological segment list and the number of candidates dropped.
func (b *Builder) Build(pks []peaks.Peak, duration float64) ([]Segment, int) {
	return b.build(pks, duration, nil, beats.Grid{})
}

// BuildAligned finalizes peaks, snapping each segment's boundaries to the
// beat grid where the quantizer allows it
func (b *Builder) BuildAligned(pks []peaks.Peak, duration float64, q *beats.Quantizer, grid beats.Grid) ([]Segment, int) {
	return b.build(pks, duration, q, grid)
}

func (b *Builder) build(pks []peaks.Peak, duration float64, q *beats.Quantizer, grid beats.Grid) ([]Segment, int) {
	dropped := 0
	segs := make([]Segment, 0, len(pks))
	for _, p := range pks {
		start := p.Time - b.cfg.PreRoll
		if start < 0 {
			start = 0
		}
		length := b.cfg.MaxLen
		if start+length > duration {
			length = duration - start
		}
		if length < b.cfg.MinLen {
			b.logger.Debug().
				Float64("peak", p.Time).
				Float64("available", length).
				Msg("not enough room for a minimum-length segment, dropping")
			dropped++
			continue
		}

		aligned := false
		if q != nil {
			bounds := beats.Bounds{
				MinLen:        b.cfg.MinLen,
				MaxLen:        b.cfg.MaxLen,
				MaxLaterShift: p.Time - start,
			}
			if s, d, ok := q.Snap(start, length, grid, bounds); ok && s+d <= duration+1e-9 {
				start, length, aligned = s, d, true
			}
		}

		end := start + length
		center := p.Time
		if center < start || center > end {
			center = start + length/2
		}
		segs = append(segs, Segment{
			Start:   start,
			End:     end,
			Center:  center,
			Score:   p.Score,
			Seeded:  p.Seeded,
			Aligned: aligned,
		})
	}

	sort.Slice(segs, func(i, j int) bool {
		if segs[i].Start != segs[j].Start {
			return segs[i].Start < segs[j].Start
		}
		return segs[i].End < segs[j].End
	})

	// spacing makes overlap unlikely; this pass guarantees it
	out := segs[:0]
	lastEnd := math.Inf(-1)
	for _, s := range segs {
		if s.Start < lastEnd {
			b.logger.Debug().
				Float64("start", s.Start).
				Float64("overlaps_until", lastEnd).
				Msg("segment overlaps an earlier one, dropping")
			dropped++
			continue
		}
		s.ClipID = len(out)
		out = append(out, s)
		lastEnd = s.End
	}
	return out, dropped
}
