package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/kikiluvv/hypecut/pkg/util"
)

// ClipOptions defines clip extraction parameters
type ClipOptions struct {
	Start        time.Duration
	End          time.Duration
	Output       string
	CopyCodec    bool // If true, use -c copy for fast extraction
	VideoCodec   string
	AudioCodec   string
	CRF          int    // Quality (0-51, lower = better)
	Preset       string // x264 speed/size preset
	AudioBitrate string
	VideoFilter  string // optional -vf chain, forces re-encode
	ProgressFunc ProgressFunc
}

// ExtractClip cuts a segment from a video
func (e *Executor) ExtractClip(ctx context.Context, input string, opts ClipOptions) error {
	duration := opts.End - opts.Start
	if duration <= 0 {
		return fmt.Errorf("invalid clip duration: end must be after start")
	}
	if opts.CopyCodec && opts.VideoFilter != "" {
		return fmt.Errorf("stream copy cannot apply filters")
	}

	e.logger.Info().
		Str("input", input).
		Str("output", opts.Output).
		Dur("start", opts.Start).
		Dur("duration", duration).
		Bool("copy_codec", opts.CopyCodec).
		Msg("extracting clip")

	args := []string{
		"-i", input,
		"-ss", util.FormatDuration(opts.Start),
		"-t", util.FormatDuration(duration),
	}

	if opts.CopyCodec {
		args = append(args, "-c", "copy")
	} else {
		if opts.VideoFilter != "" {
			args = append(args, "-vf", opts.VideoFilter)
		}

		codec := opts.VideoCodec
		if codec == "" {
			codec = DefaultVideoCodec
		}
		args = append(args, "-c:v", codec)

		crf := opts.CRF
		if crf == 0 {
			crf = DefaultCRF
		}
		args = append(args, "-crf", fmt.Sprintf("%d", crf))

		preset := opts.Preset
		if preset == "" {
			preset = DefaultPreset
		}
		args = append(args, "-preset", preset, "-pix_fmt", DefaultPixelFormat)

		audioCodec := opts.AudioCodec
		if audioCodec == "" {
			audioCodec = DefaultAudioCodec
		}
		args = append(args, "-c:a", audioCodec)

		bitrate := opts.AudioBitrate
		if bitrate == "" {
			bitrate = DefaultAudioBitrate
		}
		args = append(args, "-b:a", bitrate)
	}

	args = append(args, opts.Output)

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("clip extraction")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("clip extraction failed: %w", err)
	}

	e.logger.Info().Str("output", opts.Output).Msg("clip extraction complete")
	return nil
}
