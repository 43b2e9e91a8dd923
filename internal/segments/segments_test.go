package segments

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/hypecut/internal/beats"
	"github.com/kikiluvv/hypecut/internal/peaks"
)

func newTestBuilder(minLen, maxLen, preRoll float64) *Builder {
	return NewBuilder(zerolog.Nop(), Config{MinLen: minLen, MaxLen: maxLen, PreRoll: preRoll})
}

func steadyGrid(bpm, last, confidence float64) beats.Grid {
	var times []float64
	period := 60 / bpm
	for t := 0.0; t <= last+1e-9; t += period {
		times = append(times, t)
	}
	return beats.Grid{BPM: bpm, Beats: times, Confidence: confidence}
}

func TestBuildSingleTransient(t *testing.T) {
	b := newTestBuilder(15, 30, 5)
	segs, dropped := b.Build([]peaks.Peak{{Time: 30, Score: 0.8}}, 120)

	require.Len(t, segs, 1)
	assert.Zero(t, dropped)
	assert.Equal(t, 0, segs[0].ClipID)
	assert.InDelta(t, 25.0, segs[0].Start, 1e-9)
	assert.InDelta(t, 55.0, segs[0].End, 1e-9)
	assert.InDelta(t, 30.0, segs[0].Center, 1e-9)
	assert.Equal(t, 0.8, segs[0].Score)
	assert.False(t, segs[0].Aligned)
}

func TestBuildPreRollClampedAtZero(t *testing.T) {
	b := newTestBuilder(15, 30, 5)
	segs, _ := b.Build([]peaks.Peak{{Time: 2, Score: 0.5}}, 120)

	require.Len(t, segs, 1)
	assert.Zero(t, segs[0].Start)
	assert.InDelta(t, 2.0, segs[0].Center, 1e-9)
}

func TestBuildClampsNearEndOfFile(t *testing.T) {
	b := newTestBuilder(15, 30, 10)

	// start=4 leaves 16s of file, enough for the 15s minimum
	segs, dropped := b.Build([]peaks.Peak{{Time: 14, Score: 0.9}}, 20)
	require.Len(t, segs, 1)
	assert.Zero(t, dropped)
	assert.InDelta(t, 4.0, segs[0].Start, 1e-9)
	assert.InDelta(t, 20.0, segs[0].End, 1e-9)
	assert.GreaterOrEqual(t, segs[0].Duration(), 15.0)

	// start=8 leaves only 12s, below the minimum
	segs, dropped = b.Build([]peaks.Peak{{Time: 18, Score: 0.9}}, 20)
	assert.Empty(t, segs)
	assert.Equal(t, 1, dropped)
}

func TestBuildCenterFallsBackToMidpoint(t *testing.T) {
	// a 20s pre-roll with an 8s cap puts the peak outside the segment
	b := newTestBuilder(5, 8, 20)
	segs, _ := b.Build([]peaks.Peak{{Time: 50, Score: 0.5}}, 100)

	require.Len(t, segs, 1)
	assert.InDelta(t, 30.0, segs[0].Start, 1e-9)
	assert.InDelta(t, 38.0, segs[0].End, 1e-9)
	assert.InDelta(t, 34.0, segs[0].Center, 1e-9)
}

func TestBuildChronologicalIDs(t *testing.T) {
	b := newTestBuilder(15, 30, 5)
	segs, _ := b.Build([]peaks.Peak{{Time: 80, Score: 0.9}, {Time: 20, Score: 0.4}}, 200)

	require.Len(t, segs, 2)
	assert.Equal(t, 0, segs[0].ClipID)
	assert.InDelta(t, 15.0, segs[0].Start, 1e-9)
	assert.Equal(t, 1, segs[1].ClipID)
	assert.InDelta(t, 75.0, segs[1].Start, 1e-9)
}

func TestBuildDropsOverlaps(t *testing.T) {
	b := newTestBuilder(5, 10, 0)
	segs, dropped := b.Build([]peaks.Peak{{Time: 10, Score: 0.9}, {Time: 12, Score: 0.8}}, 100)

	require.Len(t, segs, 1)
	assert.Equal(t, 1, dropped)
	assert.InDelta(t, 10.0, segs[0].Start, 1e-9)
	assert.Equal(t, 0, segs[0].ClipID)
}

func TestBuildLengthAndOrderInvariants(t *testing.T) {
	b := newTestBuilder(15, 30, 10)
	pks := []peaks.Peak{
		{Time: 25, Score: 0.9},
		{Time: 110, Score: 0.7},
		{Time: 200, Score: 0.6},
		{Time: 290, Score: 0.5},
	}
	segs, _ := b.Build(pks, 300)

	require.NotEmpty(t, segs)
	for i, s := range segs {
		assert.Equal(t, i, s.ClipID)
		assert.GreaterOrEqual(t, s.Start, 0.0)
		assert.LessOrEqual(t, s.End, 300.0)
		assert.GreaterOrEqual(t, s.Duration(), 15.0)
		assert.LessOrEqual(t, s.Duration(), 30.0)
		if i > 0 {
			assert.GreaterOrEqual(t, s.Start, segs[i-1].End)
		}
	}
}

func TestBuildAlignedSnapsToGrid(t *testing.T) {
	b := newTestBuilder(15, 30, 5)
	q := beats.NewQuantizer(zerolog.Nop(), beats.DefaultQuantizerConfig())
	grid := steadyGrid(120, 120, 0.9)

	segs, _ := b.BuildAligned([]peaks.Peak{{Time: 30.3, Score: 0.8}}, 120, q, grid)
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Aligned)
	assert.InDelta(t, 25.0, segs[0].Start, 1e-9)
	assert.InDelta(t, 30.0, segs[0].Duration(), 1e-9)
}

func TestBuildAlignedLowConfidenceKeepsBoundaries(t *testing.T) {
	b := newTestBuilder(15, 30, 5)
	q := beats.NewQuantizer(zerolog.Nop(), beats.DefaultQuantizerConfig())
	grid := steadyGrid(120, 120, 0.1)

	segs, _ := b.BuildAligned([]peaks.Peak{{Time: 30.3, Score: 0.8}}, 120, q, grid)
	require.Len(t, segs, 1)
	assert.False(t, segs[0].Aligned)
	assert.InDelta(t, 25.3, segs[0].Start, 1e-9)
	assert.InDelta(t, 55.3, segs[0].End, 1e-9)
}

func TestBuildAlignedRevertsWhenSnapOvershootsFile(t *testing.T) {
	b := newTestBuilder(15, 30, 5)
	q := beats.NewQuantizer(zerolog.Nop(), beats.DefaultQuantizerConfig())
	grid := steadyGrid(120, 120, 0.9)

	// snapping 15.3s up to 31 beats would end past the file
	segs, _ := b.BuildAligned([]peaks.Peak{{Time: 100, Score: 0.8}}, 110.3, q, grid)
	require.Len(t, segs, 1)
	assert.False(t, segs[0].Aligned)
	assert.InDelta(t, 95.0, segs[0].Start, 1e-9)
	assert.InDelta(t, 110.3, segs[0].End, 1e-9)
}

func TestBuildAlignedNilQuantizer(t *testing.T) {
	b := newTestBuilder(15, 30, 5)
	segs, _ := b.BuildAligned([]peaks.Peak{{Time: 30, Score: 0.8}}, 120, nil, beats.Grid{})

	require.Len(t, segs, 1)
	assert.False(t, segs[0].Aligned)
}

func TestBuildEmptyPeaks(t *testing.T) {
	b := newTestBuilder(15, 30, 5)
	segs, dropped := b.Build(nil, 120)
	assert.Empty(t, segs)
	assert.Zero(t, dropped)
}

func TestBuildFileShorterThanMinimum(t *testing.T) {
	b := newTestBuilder(15, 30, 5)
	segs, dropped := b.Build([]peaks.Peak{{Time: 3, Score: 0.9}, {Time: 8, Score: 0.5}}, 10)
	assert.Empty(t, segs)
	assert.Equal(t, 2, dropped)
}

func TestBuildCarriesSeededFlag(t *testing.T) {
	b := newTestBuilder(15, 30, 5)
	segs, _ := b.Build([]peaks.Peak{{Time: 30, Score: 0.8, Seeded: true}}, 120)
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Seeded)
}

func TestSegmentDuration(t *testing.T) {
	s := Segment{Start: 10, End: 24.5}
	assert.InDelta(t, 14.5, s.Duration(), 1e-9)
}
