package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// DecodePCM decodes the input's audio track to mono PCM at the given
// sample rate and returns it as float64 samples in [-1, 1]. The decode
// streams over a pipe, nothing is written to disk.
func (e *Executor) DecodePCM(ctx context.Context, input string, sampleRate int) ([]float64, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	e.logger.Info().
		Str("input", input).
		Int("sample_rate", sampleRate).
		Msg("decoding audio")

	args := []string{
		"-v", "error",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	data, readErr := io.ReadAll(stdout)
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if waitErr != nil {
		return nil, fmt.Errorf("audio decode failed: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	if readErr != nil {
		return nil, fmt.Errorf("audio decode read failed: %w", readErr)
	}

	samples := make([]float64, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = float64(math.Float32frombits(bits))
	}

	e.logger.Debug().
		Int("samples", len(samples)).
		Float64("seconds", float64(len(samples))/float64(sampleRate)).
		Msg("audio decoded")

	return samples, nil
}
