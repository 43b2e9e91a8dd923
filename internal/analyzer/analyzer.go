package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/hypecut/internal/beats"
	"github.com/kikiluvv/hypecut/internal/config"
	"github.com/kikiluvv/hypecut/internal/ffmpeg"
	"github.com/kikiluvv/hypecut/internal/metrics"
	"github.com/kikiluvv/hypecut/internal/motion"
	"github.com/kikiluvv/hypecut/internal/novelty"
	"github.com/kikiluvv/hypecut/internal/peaks"
	"github.com/kikiluvv/hypecut/internal/progress"
	"github.com/kikiluvv/hypecut/internal/segments"
	"github.com/kikiluvv/hypecut/internal/signal"
)

// ErrAborted marks a run cut short by context cancellation. The partial
// result returned alongside it covers the stages that finished.
var ErrAborted = errors.New("analysis aborted")

// Engine orchestrates the scoring pipeline for one input at a time
type Engine struct {
	logger zerolog.Logger
	cfg    *config.Config
	media  MediaSource
	sink   progress.Sink
}

// New creates an engine backed by the ffmpeg binaries from cfg
func New(logger zerolog.Logger, cfg *config.Config, sink progress.Sink) (*Engine, error) {
	exe, err := ffmpeg.New(logger, cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}
	return NewWithMedia(logger, cfg, NewFFmpegSource(exe), sink)
}

// NewWithMedia creates an engine with an injected media source
func NewWithMedia(logger zerolog.Logger, cfg *config.Config, media MediaSource, sink progress.Sink) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if media == nil {
		return nil, fmt.Errorf("media source cannot be nil")
	}
	if sink == nil {
		sink = progress.Nop{}
	}
	return &Engine{
		logger: logger.With().Str("component", "analyzer").Logger(),
		cfg:    cfg,
		media:  media,
		sink:   sink,
	}, nil
}

// Analyze runs the full pipeline on input. Cancellation is honored
// between stages and yields the partial result with ErrAborted.
func (e *Engine) Analyze(ctx context.Context, input string) (*Result, error) {
	if input == "" {
		return nil, fmt.Errorf("input path cannot be empty")
	}

	cfg := e.cfg
	col := metrics.NewCollector(e.logger)
	res := &Result{Input: input}

	e.logger.Info().
		Str("input", input).
		Int("clips", cfg.Analysis.Clips).
		Bool("with_motion", cfg.Analysis.WithMotion).
		Bool("align_to_beat", cfg.Analysis.AlignToBeat).
		Msg("starting analysis pipeline")

	// Stage 1: probe input metadata
	e.startStage(col, progress.StageInitialization)
	info, err := e.media.Probe(ctx, input)
	if err != nil {
		return nil, e.fail(col, progress.StageInitialization, fmt.Errorf("failed to probe input: %w", err))
	}
	res.Media = info
	e.finishStage(col, progress.StageInitialization)

	e.logger.Info().
		Dur("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Bool("has_audio", info.HasAudio).
		Msg("input metadata extracted")

	if err := ctx.Err(); err != nil {
		return e.abort(res, col, progress.StageInitialization, err)
	}

	// Stage 2: decode mono PCM
	e.startStage(col, progress.StageAudioExtraction)
	samples, err := e.media.DecodePCM(ctx, input, cfg.Tuning.SampleRate)
	if err != nil {
		return nil, e.fail(col, progress.StageAudioExtraction, fmt.Errorf("failed to decode audio: %w", err))
	}
	duration := float64(len(samples)) / float64(cfg.Tuning.SampleRate)
	e.finishStage(col, progress.StageAudioExtraction)

	res.Summary.Duration = duration
	res.Summary.SampleRate = cfg.Tuning.SampleRate

	if err := ctx.Err(); err != nil {
		return e.abort(res, col, progress.StageAudioExtraction, err)
	}

	// Stage 3: novelty scoring
	e.startStage(col, progress.StageNoveltyDetection)
	scorer := novelty.NewScorer(e.logger, e.noveltyConfig())
	curve := scorer.Score(samples)
	col.Set(metrics.CounterNoveltyFrames, int64(curve.Len()))
	e.finishStage(col, progress.StageNoveltyDetection)

	res.Summary.NoveltyFrames = curve.Len()

	if err := ctx.Err(); err != nil {
		return e.abort(res, col, progress.StageNoveltyDetection, err)
	}

	// Stage 4: beat tracking when alignment is requested
	var grid beats.Grid
	if cfg.Analysis.AlignToBeat {
		e.startStage(col, progress.StageBeatTracking)
		grid = beats.NewTracker(e.logger, e.trackerConfig()).Track(samples)
		e.finishStage(col, progress.StageBeatTracking)

		res.Summary.BPM = grid.BPM
		res.Summary.BeatConfidence = grid.Confidence
		res.Summary.BeatAligned = !grid.Untrackable()

		if err := ctx.Err(); err != nil {
			return e.abort(res, col, progress.StageBeatTracking, err)
		}
	}

	// Stage 5: motion scoring and fusion when requested
	if cfg.Analysis.WithMotion {
		e.startStage(col, progress.StageMotionAnalysis)
		curve = e.fuseMotion(ctx, input, curve, col)
		e.finishStage(col, progress.StageMotionAnalysis)

		res.Summary.MotionUsed = true

		if err := ctx.Err(); err != nil {
			return e.abort(res, col, progress.StageMotionAnalysis, err)
		}
	}

	// Stage 6: peak selection
	e.startStage(col, progress.StagePeakDetection)
	selector, err := peaks.NewSelector(e.logger, cfg.Analysis.PeakSpacing, cfg.Tuning.SeedWindow)
	if err != nil {
		return nil, e.fail(col, progress.StagePeakDetection, err)
	}
	picked := selector.Select(curve, cfg.Analysis.Clips, cfg.Analysis.Seeds)
	col.Set(metrics.CounterPeaksFound, int64(len(picked)))
	e.finishStage(col, progress.StagePeakDetection)

	res.Summary.PeaksFound = len(picked)

	if err := ctx.Err(); err != nil {
		return e.abort(res, col, progress.StagePeakDetection, err)
	}

	// Stage 7: segment building, beat-quantized when the grid is usable
	e.startStage(col, progress.StageSegmentBuilding)
	builder := segments.NewBuilder(e.logger, segments.Config{
		MinLen:  cfg.Analysis.MinLen,
		MaxLen:  cfg.Analysis.MaxLen,
		PreRoll: cfg.Analysis.PreRoll,
	})
	var segs []segments.Segment
	var dropped int
	if cfg.Analysis.AlignToBeat {
		quantizer := beats.NewQuantizer(e.logger, e.quantizerConfig())
		segs, dropped = builder.BuildAligned(picked, duration, quantizer, grid)
	} else {
		segs, dropped = builder.Build(picked, duration)
	}
	col.Set(metrics.CounterSegmentsBuilt, int64(len(segs)))
	col.Set(metrics.CounterSegmentsDropped, int64(dropped))
	e.finishStage(col, progress.StageSegmentBuilding)

	res.Segments = segs
	res.Summary.SegmentsBuilt = len(segs)
	res.Summary.SegmentsDropped = dropped
	res.Metrics = col.Snapshot()
	res.Summary.ElapsedSeconds = res.Metrics.TotalSeconds

	e.logger.Info().
		Int("segments", len(segs)).
		Int("dropped", dropped).
		Float64("elapsed", res.Summary.ElapsedSeconds).
		Msg("analysis pipeline complete")

	return res, nil
}

// fuseMotion scores visual motion on the novelty axis and blends it in.
// Sampling failures degrade to a neutral motion curve, never an error.
func (e *Engine) fuseMotion(ctx context.Context, input string, audio signal.Curve, col *metrics.Collector) signal.Curve {
	src, err := e.media.SampleFrames(ctx, input, e.cfg.Tuning.MotionFPS, e.cfg.Tuning.MotionMaxWidth)
	if err != nil {
		e.logger.Warn().Err(err).Msg("frame sampling failed, motion scores neutral")
		e.sink.Info(progress.StageMotionAnalysis, "frame sampling failed; using neutral motion")
		src = nil
	}
	if src != nil {
		src = &countingSource{FrameSource: src, col: col}
	}

	scored := motion.NewAnalyzer(e.logger, e.motionConfig()).Score(ctx, src, audio)
	return motion.Fuse(audio, scored, e.cfg.Tuning.AudioWeight, e.cfg.Tuning.MotionWeight)
}

func (e *Engine) startStage(col *metrics.Collector, stage progress.Stage) {
	e.sink.StartStage(stage, "")
	col.StartStage(stage)
}

func (e *Engine) finishStage(col *metrics.Collector, stage progress.Stage) {
	col.FinishStage(stage)
	e.sink.CompleteStage(stage, "")
}

// fail closes the stage and reports a hard pipeline error
func (e *Engine) fail(col *metrics.Collector, stage progress.Stage, err error) error {
	col.FinishStage(stage)
	e.sink.Error(stage, err.Error())
	e.logger.Error().Err(err).Str("stage", string(stage)).Msg("analysis pipeline failed")
	return err
}

// abort packages the partial result for a cancelled run
func (e *Engine) abort(res *Result, col *metrics.Collector, after progress.Stage, cause error) (*Result, error) {
	err := fmt.Errorf("%w after %s: %w", ErrAborted, after, cause)
	e.sink.Error(after, "analysis aborted")
	res.Metrics = col.Snapshot()
	res.Summary.ElapsedSeconds = res.Metrics.TotalSeconds
	e.logger.Warn().Str("after", string(after)).Msg("analysis aborted")
	return res, err
}

func (e *Engine) noveltyConfig() novelty.Config {
	t := e.cfg.Tuning
	return novelty.Config{
		SampleRate:     t.SampleRate,
		WindowSize:     t.WindowSize,
		HopSize:        t.HopSize,
		OnsetWeight:    t.OnsetWeight,
		ContrastWeight: t.ContrastWeight,
		SmoothWindow:   t.SmoothWindow,
		PercentileLow:  t.PercentileLow,
		PercentileHigh: t.PercentileHigh,
	}
}

func (e *Engine) trackerConfig() beats.TrackerConfig {
	t := e.cfg.Tuning
	cfg := beats.DefaultTrackerConfig()
	cfg.SampleRate = t.SampleRate
	cfg.WindowSize = t.WindowSize
	cfg.HopSize = t.HopSize
	return cfg
}

func (e *Engine) quantizerConfig() beats.QuantizerConfig {
	cfg := beats.DefaultQuantizerConfig()
	cfg.MinConfidence = e.cfg.Tuning.BeatConfidence
	return cfg
}

func (e *Engine) motionConfig() motion.Config {
	t := e.cfg.Tuning
	cfg := motion.DefaultConfig()
	cfg.FPS = t.MotionFPS
	cfg.MaxWidth = t.MotionMaxWidth
	cfg.SmoothWindow = t.SmoothWindow
	cfg.PercentileLow = t.PercentileLow
	cfg.PercentileHigh = t.PercentileHigh
	return cfg
}

// countingSource tallies frames pulled by the motion analyzer
type countingSource struct {
	motion.FrameSource
	col *metrics.Collector
}

func (c *countingSource) Next() (motion.Frame, error) {
	f, err := c.FrameSource.Next()
	if err == nil {
		c.col.Add(metrics.CounterFramesAnalyzed, 1)
	}
	return f, err
}
