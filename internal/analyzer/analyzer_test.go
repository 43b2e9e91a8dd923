package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/hypecut/internal/config"
	"github.com/kikiluvv/hypecut/internal/ffmpeg"
	"github.com/kikiluvv/hypecut/internal/motion"
	"github.com/kikiluvv/hypecut/internal/progress"
)

// fakeMedia serves canned audio and frames in place of ffmpeg
type fakeMedia struct {
	info      *ffmpeg.MediaInfo
	samples   []float64
	frames    []motion.Frame
	probeErr  error
	decodeErr error
	framesErr error
	onDecode  func()
}

func (f *fakeMedia) Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	if f.info != nil {
		return f.info, nil
	}
	return &ffmpeg.MediaInfo{
		FilePath: path,
		Duration: time.Duration(float64(len(f.samples)) / 8000 * float64(time.Second)),
		Width:    320,
		Height:   240,
		FPS:      30,
		HasVideo: true,
		HasAudio: true,
	}, nil
}

func (f *fakeMedia) DecodePCM(ctx context.Context, path string, sampleRate int) ([]float64, error) {
	if f.onDecode != nil {
		f.onDecode()
	}
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return f.samples, nil
}

func (f *fakeMedia) SampleFrames(ctx context.Context, path string, fps float64, maxWidth int) (motion.FrameSource, error) {
	if f.framesErr != nil {
		return nil, f.framesErr
	}
	return &frameSlice{frames: f.frames}, nil
}

type frameSlice struct {
	frames []motion.Frame
	i      int
}

func (s *frameSlice) Next() (motion.Frame, error) {
	if s.i >= len(s.frames) {
		return motion.Frame{}, io.EOF
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

func (s *frameSlice) Close() error { return nil }

// recordingSink captures progress notifications in order
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) record(kind string, stage progress.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+string(stage))
}

func (r *recordingSink) StartStage(s progress.Stage, _ string)    { r.record("start", s) }
func (r *recordingSink) Update(int, string)                       {}
func (r *recordingSink) CompleteStage(s progress.Stage, _ string) { r.record("done", s) }
func (r *recordingSink) Error(s progress.Stage, _ string)         { r.record("error", s) }
func (r *recordingSink) Info(s progress.Stage, _ string)          { r.record("info", s) }

func (r *recordingSink) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

// testConfig shrinks lengths and rates so tests stay fast
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Analysis.Clips = 3
	cfg.Analysis.MinLen = 2
	cfg.Analysis.MaxLen = 4
	cfg.Analysis.PreRoll = 1
	cfg.Analysis.PeakSpacing = 20
	cfg.Tuning.SampleRate = 8000
	cfg.Tuning.SeedWindow = 5
	return cfg
}

// burstAudio is quiet noise with loud noise bursts at the given times
func burstAudio(sampleRate int, seconds float64, burstTimes ...float64) []float64 {
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)
	state := uint64(1)
	next := func() float64 {
		state = state*6364136223846793005 + 1442695040888963407
		return float64(state>>33)/float64(1<<30) - 1
	}
	for i := range samples {
		samples[i] = 0.01 * next()
	}
	width := int(0.3 * float64(sampleRate))
	for _, t := range burstTimes {
		start := int(t * float64(sampleRate))
		for i := 0; i < width && start+i < n; i++ {
			samples[start+i] = 0.8 * next()
		}
	}
	return samples
}

// clickAudio is a click track at the given tempo, first click at phase
func clickAudio(sampleRate int, seconds, bpm, phase float64) []float64 {
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)
	state := uint64(7)
	next := func() float64 {
		state = state*6364136223846793005 + 1442695040888963407
		return float64(state>>33)/float64(1<<30) - 1
	}
	for i := range samples {
		samples[i] = 0.003 * next()
	}
	period := 60.0 / bpm
	width := int(0.01 * float64(sampleRate))
	for t := phase; t < seconds; t += period {
		start := int(t * float64(sampleRate))
		for i := 0; i < width && start+i < n; i++ {
			samples[start+i] = 0.9 * next()
		}
	}
	return samples
}

func grayImage(w, h int, seed uint64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	state := seed
	for i := range img.Pix {
		state = state*6364136223846793005 + 1442695040888963407
		img.Pix[i] = uint8(state >> 56)
	}
	return img
}

func shiftedImage(src *image.Gray, dx int) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			sx := x - dx
			if sx < 0 {
				sx = 0
			}
			if sx >= b.Dx() {
				sx = b.Dx() - 1
			}
			out.SetGray(x, y, src.GrayAt(sx, y))
		}
	}
	return out
}

func newTestEngine(t *testing.T, cfg *config.Config, media MediaSource, sink progress.Sink) *Engine {
	t.Helper()
	e, err := NewWithMedia(zerolog.Nop(), cfg, media, sink)
	require.NoError(t, err)
	return e
}

func TestAnalyzeBasicFlow(t *testing.T) {
	cfg := testConfig()
	media := &fakeMedia{samples: burstAudio(8000, 60, 10, 25, 40)}
	e := newTestEngine(t, cfg, media, nil)

	res, err := e.Analyze(context.Background(), "song.mp4")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "song.mp4", res.Input)
	require.NotNil(t, res.Media)
	assert.InDelta(t, 60.0, res.Summary.Duration, 0.01)
	assert.Greater(t, res.Summary.NoveltyFrames, 100)
	assert.Equal(t, 3, res.Summary.PeaksFound)
	assert.Equal(t, 3, res.Summary.SegmentsBuilt)
	assert.False(t, res.Summary.MotionUsed)
	assert.False(t, res.Summary.BeatAligned)
	assert.Greater(t, res.Summary.ElapsedSeconds, 0.0)

	require.Len(t, res.Segments, 3)
	for i, s := range res.Segments {
		assert.Equal(t, i, s.ClipID)
		assert.GreaterOrEqual(t, s.Duration(), cfg.Analysis.MinLen-1e-9)
		assert.LessOrEqual(t, s.Duration(), cfg.Analysis.MaxLen+1e-9)
		if i > 0 {
			assert.GreaterOrEqual(t, s.Start, res.Segments[i-1].End)
		}
	}

	// each burst should anchor one segment
	for i, want := range []float64{10, 25, 40} {
		s := res.Segments[i]
		assert.InDelta(t, want, s.Center, 2.0, "segment %d center", i)
	}
}

func TestAnalyzeSeedsForceInclusion(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.Seeds = []float64{45}
	media := &fakeMedia{samples: burstAudio(8000, 60, 10, 25)}
	e := newTestEngine(t, cfg, media, nil)

	res, err := e.Analyze(context.Background(), "song.mp4")
	require.NoError(t, err)

	seeded := 0
	for _, s := range res.Segments {
		if s.Seeded {
			seeded++
			assert.InDelta(t, 45.0, s.Center, cfg.Tuning.SeedWindow+0.5)
		}
	}
	assert.Equal(t, 1, seeded)
}

func TestAnalyzeWithMotion(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.WithMotion = true

	base := grayImage(64, 48, 3)
	var frames []motion.Frame
	for i := 0; i < 24; i++ {
		img := base
		if i >= 12 {
			img = shiftedImage(base, i-11)
		}
		frames = append(frames, motion.Frame{Image: img, Timestamp: float64(i) / cfg.Tuning.MotionFPS})
	}

	media := &fakeMedia{samples: burstAudio(8000, 60, 10, 25, 40), frames: frames}
	e := newTestEngine(t, cfg, media, nil)

	res, err := e.Analyze(context.Background(), "song.mp4")
	require.NoError(t, err)

	assert.True(t, res.Summary.MotionUsed)
	assert.EqualValues(t, 24, res.Metrics.Counters["frames_analyzed"])
	assert.NotEmpty(t, res.Segments)
}

func TestAnalyzeMotionSamplingFailureDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.WithMotion = true
	media := &fakeMedia{
		samples:   burstAudio(8000, 60, 10, 25, 40),
		framesErr: fmt.Errorf("no video stream"),
	}
	sink := &recordingSink{}
	e := newTestEngine(t, cfg, media, sink)

	res, err := e.Analyze(context.Background(), "song.mp4")
	require.NoError(t, err, "sampling failure must not fail the run")

	assert.True(t, res.Summary.MotionUsed)
	_, counted := res.Metrics.Counters["frames_analyzed"]
	assert.False(t, counted)
	assert.Contains(t, sink.all(), "info:motion_analysis")
	assert.NotEmpty(t, res.Segments)
}

func TestAnalyzeWithBeatAlignment(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.AlignToBeat = true
	media := &fakeMedia{samples: clickAudio(8000, 60, 120, 0.25)}
	e := newTestEngine(t, cfg, media, nil)

	res, err := e.Analyze(context.Background(), "song.mp4")
	require.NoError(t, err)

	assert.True(t, res.Summary.BeatAligned)
	assert.InDelta(t, 120.0, res.Summary.BPM, 10)
	assert.Greater(t, res.Summary.BeatConfidence, 0.3)

	aligned := 0
	for _, s := range res.Segments {
		if !s.Aligned {
			continue
		}
		aligned++
		// aligned starts land on a click, modulo envelope resolution
		offset := math.Mod(s.Start-0.25, 0.5)
		if offset > 0.25 {
			offset = 0.5 - offset
		}
		assert.Less(t, math.Abs(offset), 0.16, "start %f not on the beat grid", s.Start)
	}
	assert.Greater(t, aligned, 0, "expected at least one beat-aligned segment")
}

func TestAnalyzeSilence(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.AlignToBeat = true
	media := &fakeMedia{samples: make([]float64, 8000*30)}
	e := newTestEngine(t, cfg, media, nil)

	res, err := e.Analyze(context.Background(), "silent.mp4")
	require.NoError(t, err, "silence is degenerate input, not an error")

	assert.Equal(t, 0.0, res.Summary.BPM)
	assert.False(t, res.Summary.BeatAligned)
	assert.NotEmpty(t, res.Segments, "selection still yields segments on a flat curve")
	for _, s := range res.Segments {
		assert.Equal(t, 0.0, s.Score)
		assert.False(t, s.Aligned)
	}
}

func TestAnalyzeShortAudioAllDropped(t *testing.T) {
	cfg := testConfig()
	media := &fakeMedia{samples: burstAudio(8000, 1.5, 0.5)}
	e := newTestEngine(t, cfg, media, nil)

	res, err := e.Analyze(context.Background(), "tiny.mp4")
	require.NoError(t, err)

	assert.Empty(t, res.Segments)
	assert.Greater(t, res.Summary.SegmentsDropped, 0)
	assert.InDelta(t, 1.5, res.Summary.Duration, 0.01)
}

func TestAnalyzeCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	media := &fakeMedia{samples: burstAudio(8000, 60, 10)}
	e := newTestEngine(t, testConfig(), media, nil)

	res, err := e.Analyze(ctx, "song.mp4")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res, "aborted runs return the partial result")
	assert.NotNil(t, res.Media)
	assert.Empty(t, res.Segments)
}

func TestAnalyzeCancelledMidPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	media := &fakeMedia{samples: burstAudio(8000, 60, 10, 25)}
	media.onDecode = cancel

	sink := &recordingSink{}
	e := newTestEngine(t, testConfig(), media, sink)

	res, err := e.Analyze(ctx, "song.mp4")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	require.NotNil(t, res)
	assert.InDelta(t, 60.0, res.Summary.Duration, 0.01, "completed stages survive in the partial result")
	assert.Contains(t, err.Error(), "audio_extraction")
	assert.Contains(t, sink.all(), "error:audio_extraction")

	// both finished stages are in the snapshot
	names := make([]string, 0, len(res.Metrics.Stages))
	for _, s := range res.Metrics.Stages {
		names = append(names, s.Stage)
	}
	assert.Equal(t, []string{"initialization", "audio_extraction"}, names)
}

func TestAnalyzeProbeError(t *testing.T) {
	media := &fakeMedia{probeErr: fmt.Errorf("no such file")}
	sink := &recordingSink{}
	e := newTestEngine(t, testConfig(), media, sink)

	res, err := e.Analyze(context.Background(), "missing.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to probe input")
	assert.Nil(t, res)
	assert.Contains(t, sink.all(), "error:initialization")
}

func TestAnalyzeDecodeError(t *testing.T) {
	media := &fakeMedia{decodeErr: fmt.Errorf("corrupt stream")}
	e := newTestEngine(t, testConfig(), media, nil)

	res, err := e.Analyze(context.Background(), "bad.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode audio")
	assert.Nil(t, res)
}

func TestAnalyzeEmptyInput(t *testing.T) {
	e := newTestEngine(t, testConfig(), &fakeMedia{}, nil)
	_, err := e.Analyze(context.Background(), "")
	require.Error(t, err)
}

func TestAnalyzeProgressStageOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.WithMotion = true
	cfg.Analysis.AlignToBeat = true
	media := &fakeMedia{samples: clickAudio(8000, 60, 120, 0.25)}
	sink := &recordingSink{}
	e := newTestEngine(t, cfg, media, sink)

	_, err := e.Analyze(context.Background(), "song.mp4")
	require.NoError(t, err)

	var starts []string
	for _, ev := range sink.all() {
		if len(ev) > 6 && ev[:6] == "start:" {
			starts = append(starts, ev[6:])
		}
	}
	assert.Equal(t, []string{
		"initialization",
		"audio_extraction",
		"novelty_detection",
		"beat_tracking",
		"motion_analysis",
		"peak_detection",
		"segment_building",
	}, starts)

	events := sink.all()
	assert.Equal(t, "start:initialization", events[0])
	assert.Equal(t, "done:segment_building", events[len(events)-1])
}

func TestAnalyzeMetricsRecorded(t *testing.T) {
	media := &fakeMedia{samples: burstAudio(8000, 60, 10, 25, 40)}
	e := newTestEngine(t, testConfig(), media, nil)

	res, err := e.Analyze(context.Background(), "song.mp4")
	require.NoError(t, err)

	names := make([]string, 0, len(res.Metrics.Stages))
	for _, s := range res.Metrics.Stages {
		names = append(names, s.Stage)
	}
	assert.Equal(t, []string{
		"initialization",
		"audio_extraction",
		"novelty_detection",
		"peak_detection",
		"segment_building",
	}, names)

	assert.EqualValues(t, res.Summary.NoveltyFrames, res.Metrics.Counters["novelty_frames"])
	assert.EqualValues(t, 3, res.Metrics.Counters["peaks_found"])
	assert.EqualValues(t, 3, res.Metrics.Counters["segments_built"])
	assert.Greater(t, res.Metrics.TotalSeconds, 0.0)
}

func TestAnalyzeDeterministic(t *testing.T) {
	samples := burstAudio(8000, 60, 10, 25, 40)
	run := func() *Result {
		e := newTestEngine(t, testConfig(), &fakeMedia{samples: samples}, nil)
		res, err := e.Analyze(context.Background(), "song.mp4")
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	require.Equal(t, len(a.Segments), len(b.Segments))
	for i := range a.Segments {
		assert.Equal(t, a.Segments[i].Start, b.Segments[i].Start)
		assert.Equal(t, a.Segments[i].End, b.Segments[i].End)
		assert.Equal(t, a.Segments[i].Score, b.Segments[i].Score)
	}
}

func TestNewWithMediaValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.MinLen = 10
	cfg.Analysis.MaxLen = 5
	_, err := NewWithMedia(zerolog.Nop(), cfg, &fakeMedia{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalid))

	_, err = NewWithMedia(zerolog.Nop(), testConfig(), nil, nil)
	require.Error(t, err, "nil media source is rejected")
}
