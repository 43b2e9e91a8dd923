package motion

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"io"
	"math"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/hypecut/internal/signal"
)

// neutralScore is the flat motion value used when frames cannot be read,
// so fusion falls back to the audio ordering
const neutralScore = 0.5

// Frame is one grayscale video frame with its presentation time
type Frame struct {
	Image     *image.Gray
	Timestamp float64
}

// FrameSource yields frames in presentation order. Next returns io.EOF
// when the stream is exhausted.
type FrameSource interface {
	Next() (Frame, error)
	Close() error
}

// Config holds the motion estimation parameters
type Config struct {
	FPS            float64 // frame sampling rate
	MaxWidth       int     // frames wider than this are downscaled
	BlockSize      int
	SearchRadius   int
	SmoothWindow   float64 // seconds
	PercentileLow  float64
	PercentileHigh float64
}

// DefaultConfig returns the standard motion parameters
func DefaultConfig() Config {
	return Config{
		FPS:            4,
		MaxWidth:       320,
		BlockSize:      8,
		SearchRadius:   4,
		SmoothWindow:   0.5,
		PercentileLow:  5,
		PercentileHigh: 95,
	}
}

// Analyzer scores visual activity from sampled frames
type Analyzer struct {
	cfg    Config
	logger zerolog.Logger
}

// NewAnalyzer creates a motion analyzer
func NewAnalyzer(logger zerolog.Logger, cfg Config) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		logger: logger.With().Str("component", "motion").Logger(),
	}
}

// Score estimates per-frame motion magnitude and resamples it onto the
// given axis. It consumes src and closes it. A source that fails or
// yields fewer than two frames produces a flat neutral curve instead of
// an error, so analysis continues on audio alone.
func (a *Analyzer) Score(ctx context.Context, src FrameSource, axis signal.Curve) signal.Curve {
	if src == nil || axis.Len() == 0 {
		return signal.Constant(axis.Start, axis.Step, neutralScore, axis.Len())
	}

	values, start, err := a.collect(ctx, src)
	if err != nil {
		a.logger.Warn().Err(err).Msg("frame stream failed, using neutral motion")
		return signal.Constant(axis.Start, axis.Step, neutralScore, axis.Len())
	}
	if len(values) == 0 {
		a.logger.Warn().Msg("fewer than two frames, using neutral motion")
		return signal.Constant(axis.Start, axis.Step, neutralScore, axis.Len())
	}

	lo := signal.Percentile(values, a.cfg.PercentileLow)
	hi := signal.Percentile(values, a.cfg.PercentileHigh)
	var norm []float64
	if hi-lo > 1e-9 {
		norm = signal.RobustNormalize(values, a.cfg.PercentileLow, a.cfg.PercentileHigh)
	} else {
		norm = signal.MinMaxNormalize(values)
	}

	if width := int(a.cfg.SmoothWindow * a.cfg.FPS); width > 1 {
		norm = signal.Smooth(norm, width)
	}

	curve := signal.New(start, 1/a.cfg.FPS, norm)
	times := make([]float64, axis.Len())
	for i := range times {
		times[i] = axis.Time(i)
	}
	resampled := curve.Interp(times)
	signal.Clip01(resampled)

	a.logger.Debug().
		Int("frame_pairs", len(values)).
		Int("samples", len(resampled)).
		Msg("motion curve estimated")

	return signal.New(axis.Start, axis.Step, resampled)
}

// collect reads all frames and returns the per-pair motion magnitudes
// and the timestamp of the first pair
func (a *Analyzer) collect(ctx context.Context, src FrameSource) ([]float64, float64, error) {
	defer src.Close()

	var (
		prev   *image.Gray
		values []float64
		start  float64
	)
	for {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			return values, start, nil
		}
		if err != nil {
			return nil, 0, err
		}
		if frame.Image == nil {
			continue
		}

		g := a.downscale(frame.Image)
		if prev != nil && g.Bounds().Dx() == prev.Bounds().Dx() && g.Bounds().Dy() == prev.Bounds().Dy() {
			if len(values) == 0 {
				start = frame.Timestamp
			}
			values = append(values, blockFlowMedian(prev, g, a.cfg.BlockSize, a.cfg.SearchRadius))
		}
		prev = g
	}
}

func (a *Analyzer) downscale(img *image.Gray) *image.Gray {
	if a.cfg.MaxWidth <= 0 || img.Bounds().Dx() <= a.cfg.MaxWidth {
		return img
	}
	scaled := resize.Resize(uint(a.cfg.MaxWidth), 0, img, resize.Bilinear)
	if g, ok := scaled.(*image.Gray); ok {
		return g
	}
	g := image.NewGray(scaled.Bounds())
	draw.Draw(g, g.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return g
}

// blockFlowMedian estimates displacement per block by exhaustive SAD
// search within the radius and returns the median magnitude
func blockFlowMedian(prev, cur *image.Gray, blockSize, radius int) float64 {
	w, h := prev.Bounds().Dx(), prev.Bounds().Dy()
	var mags []float64
	for by := 0; by+blockSize <= h; by += blockSize {
		for bx := 0; bx+blockSize <= w; bx += blockSize {
			best := blockSAD(prev, cur, bx, by, bx, by, blockSize)
			bestDx, bestDy := 0, 0
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					tx, ty := bx+dx, by+dy
					if tx < 0 || ty < 0 || tx+blockSize > w || ty+blockSize > h {
						continue
					}
					if sad := blockSAD(prev, cur, bx, by, tx, ty, blockSize); sad < best {
						best = sad
						bestDx, bestDy = dx, dy
					}
				}
			}
			mags = append(mags, math.Hypot(float64(bestDx), float64(bestDy)))
		}
	}
	if len(mags) == 0 {
		return 0
	}
	return signal.Percentile(mags, 50)
}

// blockSAD sums absolute differences between a block at (ax,ay) in a and
// (bx,by) in b, coordinates relative to each image's bounds origin
func blockSAD(a, b *image.Gray, ax, ay, bx, by, n int) int {
	var sum int
	for row := 0; row < n; row++ {
		ao := a.PixOffset(a.Rect.Min.X+ax, a.Rect.Min.Y+ay+row)
		bo := b.PixOffset(b.Rect.Min.X+bx, b.Rect.Min.Y+by+row)
		ar := a.Pix[ao : ao+n]
		br := b.Pix[bo : bo+n]
		for i := 0; i < n; i++ {
			d := int(ar[i]) - int(br[i])
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return sum
}
