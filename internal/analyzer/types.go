package analyzer

import (
	"context"

	"github.com/kikiluvv/hypecut/internal/ffmpeg"
	"github.com/kikiluvv/hypecut/internal/metrics"
	"github.com/kikiluvv/hypecut/internal/motion"
	"github.com/kikiluvv/hypecut/internal/segments"
)

// MediaSource decodes one input file for the pipeline. The production
// implementation shells out to ffmpeg; tests provide synthetic media.
type MediaSource interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	DecodePCM(ctx context.Context, path string, sampleRate int) ([]float64, error)
	SampleFrames(ctx context.Context, path string, fps float64, maxWidth int) (motion.FrameSource, error)
}

// Result is the outcome of one analysis run
type Result struct {
	Input    string             `json:"input"`
	Media    *ffmpeg.MediaInfo  `json:"media,omitempty"`
	Segments []segments.Segment `json:"segments"`
	Summary  Summary            `json:"summary"`
	Metrics  metrics.Snapshot   `json:"metrics"`
}

// Summary condenses a run for logs and the result document
type Summary struct {
	Duration        float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	NoveltyFrames   int     `json:"novelty_frames"`
	BPM             float64 `json:"bpm"`
	BeatConfidence  float64 `json:"beat_confidence"`
	BeatAligned     bool    `json:"beat_aligned"`
	MotionUsed      bool    `json:"motion_used"`
	PeaksFound      int     `json:"peaks_found"`
	SegmentsBuilt   int     `json:"segments_built"`
	SegmentsDropped int     `json:"segments_dropped"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}
