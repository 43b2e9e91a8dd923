package signal

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Curve is a uniformly sampled score-over-time series. The producing stage
// owns the backing slice; consumers must treat it as read-only.
type Curve struct {
	Start  float64 // time of the first sample in seconds
	Step   float64 // spacing between samples in seconds, > 0
	Values []float64
}

// New builds a curve over values starting at start with the given step
func New(start, step float64, values []float64) Curve {
	return Curve{Start: start, Step: step, Values: values}
}

// Constant builds a curve of n identical samples
func Constant(start, step, value float64, n int) Curve {
	values := make([]float64, n)
	for i := range values {
		values[i] = value
	}
	return Curve{Start: start, Step: step, Values: values}
}

// Len returns the number of samples
func (c Curve) Len() int {
	return len(c.Values)
}

// Time returns the timestamp of sample i
func (c Curve) Time(i int) float64 {
	return c.Start + float64(i)*c.Step
}

// Duration returns the time span covered by the curve
func (c Curve) Duration() float64 {
	if len(c.Values) == 0 {
		return 0
	}
	return float64(len(c.Values)-1) * c.Step
}

// IndexOf returns the sample index nearest to t, clamped to the curve
func (c Curve) IndexOf(t float64) int {
	if len(c.Values) == 0 || c.Step <= 0 {
		return 0
	}
	i := int(math.Round((t - c.Start) / c.Step))
	if i < 0 {
		return 0
	}
	if i >= len(c.Values) {
		return len(c.Values) - 1
	}
	return i
}

// Interp linearly interpolates the curve at the given ascending times.
// Times outside the curve hold the nearest edge value.
func (c Curve) Interp(times []float64) []float64 {
	out := make([]float64, len(times))
	if len(c.Values) == 0 {
		return out
	}
	if len(c.Values) == 1 {
		for i := range out {
			out[i] = c.Values[0]
		}
		return out
	}

	j := 0
	last := len(c.Values) - 1
	for i, t := range times {
		switch {
		case t <= c.Start:
			out[i] = c.Values[0]
		case t >= c.Time(last):
			out[i] = c.Values[last]
		default:
			for c.Time(j+1) < t {
				j++
			}
			t0, t1 := c.Time(j), c.Time(j+1)
			frac := (t - t0) / (t1 - t0)
			out[i] = c.Values[j] + frac*(c.Values[j+1]-c.Values[j])
		}
	}
	return out
}

// Sanitize replaces non-finite values with zero, in place
func Sanitize(values []float64) {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			values[i] = 0
		}
	}
}

// Percentile returns the p-th percentile (0-100) of values using the
// empirical quantile, the smallest sample covering fraction p
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p/100, stat.Empirical, sorted, nil)
}

// RobustNormalize rescales values to [0,1] between the pLow and pHigh
// percentiles. A flat percentile window yields all zeros, never NaN.
func RobustNormalize(values []float64, pLow, pHigh float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	lo := stat.Quantile(pLow/100, stat.Empirical, sorted, nil)
	hi := stat.Quantile(pHigh/100, stat.Empirical, sorted, nil)
	if hi <= lo {
		return out
	}

	scale := 1 / (hi - lo)
	for i, v := range values {
		n := (v - lo) * scale
		if n < 0 {
			n = 0
		} else if n > 1 {
			n = 1
		}
		out[i] = n
	}
	return out
}

// MinMaxNormalize rescales values to [0,1] over their full range.
// A constant input yields all zeros.
func MinMaxNormalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return out
	}

	scale := 1 / (hi - lo)
	for i, v := range values {
		out[i] = (v - lo) * scale
	}
	return out
}

// Smooth applies a centered box filter of the given width in samples.
// Output length matches the input; windows truncated at the edges keep the
// full-width divisor, damping the boundary samples.
func Smooth(values []float64, width int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if width < 1 {
		width = 1
	}
	if width == 1 {
		copy(out, values)
		return out
	}

	prefix := make([]float64, n+1)
	for i, v := range values {
		prefix[i+1] = prefix[i] + v
	}

	half := (width - 1) / 2
	for i := 0; i < n; i++ {
		lo := i + half - width + 1
		hi := i + half
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		out[i] = (prefix[hi+1] - prefix[lo]) / float64(width)
	}
	return out
}

// Clip01 clamps values into [0,1] in place
func Clip01(values []float64) {
	for i, v := range values {
		if v < 0 {
			values[i] = 0
		} else if v > 1 {
			values[i] = 1
		}
	}
}
