package analyzer

import (
	"context"

	"github.com/kikiluvv/hypecut/internal/ffmpeg"
	"github.com/kikiluvv/hypecut/internal/motion"
)

// ffmpegSource adapts the ffmpeg executor to the MediaSource interface
type ffmpegSource struct {
	exe *ffmpeg.Executor
}

// NewFFmpegSource wraps an executor as a MediaSource
func NewFFmpegSource(exe *ffmpeg.Executor) MediaSource {
	return &ffmpegSource{exe: exe}
}

func (s *ffmpegSource) Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error) {
	return s.exe.Probe(ctx, path)
}

func (s *ffmpegSource) DecodePCM(ctx context.Context, path string, sampleRate int) ([]float64, error) {
	return s.exe.DecodePCM(ctx, path, sampleRate)
}

func (s *ffmpegSource) SampleFrames(ctx context.Context, path string, fps float64, maxWidth int) (motion.FrameSource, error) {
	return s.exe.SampleFrames(ctx, path, ffmpeg.FrameOptions{FPS: fps, MaxWidth: maxWidth})
}
