package peaks

import (
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/hypecut/internal/signal"
)

// ErrInvalidSpacing rejects a non-positive minimum spacing. Spacing is
// never silently clamped.
var ErrInvalidSpacing = errors.New("peak spacing must be positive")

// Peak is a selected candidate timestamp on a score curve
type Peak struct {
	Time   float64
	Score  float64
	Index  int
	Seeded bool
}

// Selector picks spacing-constrained peaks from a score curve
type Selector struct {
	logger     zerolog.Logger
	spacing    int     // minimum distance between peaks, in curve samples
	seedWindow float64 // half-width of the seed search window, seconds
}

// NewSelector creates a peak selector. Spacing is in curve samples.
func NewSelector(logger zerolog.Logger, spacing int, seedWindow float64) (*Selector, error) {
	if spacing <= 0 {
		return nil, ErrInvalidSpacing
	}
	return &Selector{
		logger:     logger.With().Str("component", "peaks").Logger(),
		spacing:    spacing,
		seedWindow: seedWindow,
	}, nil
}

// Select returns up to k peaks in chronological order. Seeds are honored
// first, in the given order; the remaining slots are filled greedily by
// descending score with ties broken by earliest time. Fewer than k peaks
// is a valid outcome.
func (s *Selector) Select(curve signal.Curve, k int, seeds []float64) []Peak {
	if k <= 0 || curve.Len() == 0 {
		return nil
	}

	res := reservations{spacing: s.spacing}
	var out []Peak

	end := curve.Start + curve.Duration()
	for _, seed := range seeds {
		if seed < curve.Start || seed > end {
			s.logger.Debug().Float64("seed", seed).Msg("seed outside curve, ignored")
			continue
		}
		idx := s.seedMax(curve, seed)
		if !res.admissible(idx) {
			s.logger.Debug().Float64("seed", seed).Msg("seed within spacing of an earlier peak, discarded")
			continue
		}
		res.reserve(idx)
		out = append(out, Peak{
			Time:   curve.Time(idx),
			Score:  curve.Values[idx],
			Index:  idx,
			Seeded: true,
		})
	}

	order := make([]int, curve.Len())
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		va, vb := curve.Values[order[a]], curve.Values[order[b]]
		if va != vb {
			return va > vb
		}
		return order[a] < order[b]
	})

	for _, idx := range order {
		if len(out) >= k {
			break
		}
		if !res.admissible(idx) {
			continue
		}
		res.reserve(idx)
		out = append(out, Peak{
			Time:  curve.Time(idx),
			Score: curve.Values[idx],
			Index: idx,
		})
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })

	s.logger.Debug().
		Int("requested", k).
		Int("selected", len(out)).
		Int("seeds", len(seeds)).
		Msg("peak selection complete")

	return out
}

// seedMax locates the highest curve value within the seed search window.
// Ties resolve to the earliest sample.
func (s *Selector) seedMax(curve signal.Curve, seed float64) int {
	lo := curve.IndexOf(seed - s.seedWindow)
	hi := curve.IndexOf(seed + s.seedWindow)

	best := lo
	for i := lo + 1; i <= hi; i++ {
		if curve.Values[i] > curve.Values[best] {
			best = i
		}
	}
	return best
}

// reservations is a sorted set of taken sample indices. A candidate is
// admissible when no reserved index lies closer than the spacing, checked
// against its two nearest neighbors rather than the whole set.
type reservations struct {
	centers []int
	spacing int
}

func (r *reservations) admissible(idx int) bool {
	i := sort.SearchInts(r.centers, idx)
	if i < len(r.centers) && r.centers[i]-idx < r.spacing {
		return false
	}
	if i > 0 && idx-r.centers[i-1] < r.spacing {
		return false
	}
	return true
}

func (r *reservations) reserve(idx int) {
	i := sort.SearchInts(r.centers, idx)
	r.centers = append(r.centers, 0)
	copy(r.centers[i+1:], r.centers[i:])
	r.centers[i] = idx
}
