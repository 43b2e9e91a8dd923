package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/kikiluvv/hypecut/internal/motion"
)

// FrameOptions configures low-rate grayscale frame sampling
type FrameOptions struct {
	FPS      float64 // sampling rate, frames per second
	MaxWidth int     // wider sources are scaled down to this
}

// SampleFrames streams grayscale frames from the input at a low rate,
// scaled down for motion analysis. The caller owns the returned stream
// and must drain or close it.
func (e *Executor) SampleFrames(ctx context.Context, input string, opts FrameOptions) (*FrameStream, error) {
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("invalid frame rate %f", opts.FPS)
	}

	info, err := e.Probe(ctx, input)
	if err != nil {
		return nil, err
	}
	if !info.HasVideo || info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("no video stream in %s", input)
	}

	width, height := info.Width, info.Height
	if opts.MaxWidth > 0 && width > opts.MaxWidth {
		height = height * opts.MaxWidth / width
		if height < 1 {
			height = 1
		}
		width = opts.MaxWidth
	}

	filter := NewFilterBuilder().
		FPS(opts.FPS).
		Scale(width, height).
		Custom("format=gray").
		Build()

	args := []string{
		"-v", "error",
		"-i", input,
		"-an",
		"-vf", filter,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"pipe:1",
	}

	e.logger.Debug().
		Str("input", input).
		Int("width", width).
		Int("height", height).
		Float64("fps", opts.FPS).
		Msg("sampling frames")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &FrameStream{
		cmd:    cmd,
		stdout: stdout,
		buf:    make([]byte, width*height),
		width:  width,
		height: height,
		fps:    opts.FPS,
	}, nil
}

// FrameStream reads raw grayscale frames off a running ffmpeg pipe
type FrameStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
	width  int
	height int
	fps    float64
	index  int
	done   bool
}

// Next returns the next frame, or io.EOF once the stream ends cleanly
func (s *FrameStream) Next() (motion.Frame, error) {
	if s.done {
		return motion.Frame{}, io.EOF
	}

	if _, err := io.ReadFull(s.stdout, s.buf); err != nil {
		s.done = true
		waitErr := s.cmd.Wait()
		if errors.Is(err, io.EOF) {
			if waitErr != nil {
				return motion.Frame{}, fmt.Errorf("frame decode failed: %w", waitErr)
			}
			return motion.Frame{}, io.EOF
		}
		return motion.Frame{}, fmt.Errorf("short frame read: %w", err)
	}

	img := image.NewGray(image.Rect(0, 0, s.width, s.height))
	copy(img.Pix, s.buf)

	frame := motion.Frame{
		Image:     img,
		Timestamp: float64(s.index) / s.fps,
	}
	s.index++
	return frame, nil
}

// Close stops the decode and reaps the process. Safe after EOF.
func (s *FrameStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}
