package novelty

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs/zerolog"
)

// pseudoNoise fills a deterministic noise signal in [-amp, amp]
func pseudoNoise(n int, amp float64) []float64 {
	out := make([]float64, n)
	seed := uint32(42)
	for i := range out {
		seed = seed*1664525 + 1013904223
		out[i] = amp * (float64(seed>>16&0x7fff)/16384.0 - 1)
	}
	return out
}

// testSignal is 30s of faint noise with a loud noise burst at burstAt
func testSignal(sr int, burstAt, burstLen float64) []float64 {
	samples := pseudoNoise(30*sr, 0.005)
	burst := pseudoNoise(int(burstLen*float64(sr)), 0.9)
	off := int(burstAt * float64(sr))
	copy(samples[off:], burst)
	return samples
}

func testScorer() *Scorer {
	return NewScorer(zerolog.Nop(), DefaultConfig())
}

func TestScoreSilence(t *testing.T) {
	sr := DefaultConfig().SampleRate
	curve := testScorer().Score(make([]float64, 60*sr))

	require.Greater(t, curve.Len(), 2000)
	for _, v := range curve.Values {
		require.False(t, math.IsNaN(v), "silence must not produce NaN")
		assert.InDelta(t, 0, v, 1e-12)
	}
}

func TestScoreTransient(t *testing.T) {
	cfg := DefaultConfig()
	curve := testScorer().Score(testSignal(cfg.SampleRate, 15, 0.5))

	best := 0
	for i, v := range curve.Values {
		if v > curve.Values[best] {
			best = i
		}
	}

	at := curve.Time(best)
	assert.InDelta(t, 15.25, at, 1.0, "novelty peak should sit on the burst")
	assert.Greater(t, curve.Values[best], 0.8)
}

func TestScoreShortInput(t *testing.T) {
	curve := testScorer().Score(make([]float64, 100))
	assert.Equal(t, 1, curve.Len(), "sub-frame input yields a single-sample curve")
}

func TestScoreEmptyInput(t *testing.T) {
	curve := testScorer().Score(nil)
	require.GreaterOrEqual(t, curve.Len(), 1)
	for _, v := range curve.Values {
		assert.False(t, math.IsNaN(v))
	}
}

func TestScoreNonFiniteInput(t *testing.T) {
	cfg := DefaultConfig()
	samples := testSignal(cfg.SampleRate, 10, 0.5)
	samples[1000] = math.NaN()
	samples[2000] = math.Inf(1)
	samples[3000] = math.Inf(-1)

	curve := testScorer().Score(samples)
	for _, v := range curve.Values {
		require.False(t, math.IsNaN(v), "non-finite samples must not propagate")
		require.False(t, math.IsInf(v, 0))
	}
}

func TestScoreDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	samples := testSignal(cfg.SampleRate, 12, 0.5)

	a := testScorer().Score(samples)
	b := testScorer().Score(samples)
	assert.Equal(t, a.Values, b.Values)
	assert.Equal(t, a.Step, b.Step)
}

func TestScoreStepMatchesHop(t *testing.T) {
	cfg := DefaultConfig()
	curve := testScorer().Score(make([]float64, cfg.SampleRate))
	assert.InDelta(t, float64(cfg.HopSize)/float64(cfg.SampleRate), curve.Step, 1e-12)
}

func TestOnsetStrength(t *testing.T) {
	cfg := DefaultConfig()
	env := OnsetStrength(testSignal(cfg.SampleRate, 15, 0.5), cfg.SampleRate, cfg.WindowSize, cfg.HopSize)

	assert.Equal(t, 0.0, env.Values[0], "first frame has no flux")

	best := 0
	for i, v := range env.Values {
		if v > env.Values[best] {
			best = i
		}
	}
	assert.InDelta(t, 15.0, env.Time(best), 1.0)
}

func TestHannWindow(t *testing.T) {
	w := hannWindow(2048)
	assert.InDelta(t, 0, w[0], 1e-12)
	assert.InDelta(t, 0, w[2047], 1e-12)
	assert.InDelta(t, 1, w[1023], 1e-5)

	assert.Equal(t, []float64{1}, hannWindow(1))
}

func TestStftFrameCount(t *testing.T) {
	cfg := DefaultConfig()
	n := 10 * cfg.SampleRate
	mags := stftMagnitudes(make([]float64, n), cfg.WindowSize, cfg.HopSize)
	assert.Equal(t, 1+n/cfg.HopSize, len(mags))
	assert.Equal(t, cfg.WindowSize/2+1, len(mags[0]))
}
