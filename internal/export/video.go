package export

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/hypecut/internal/ffmpeg"
	"github.com/kikiluvv/hypecut/internal/progress"
	"github.com/kikiluvv/hypecut/internal/segments"
	"github.com/kikiluvv/hypecut/pkg/util"
)

// Format selects the output geometry of exported clips
type Format string

const (
	// FormatOriginal keeps the source geometry and tries stream copy first
	FormatOriginal Format = "original"
	// FormatVertical center-crops and scales to 1080x1920
	FormatVertical Format = "vertical"
	// FormatSquare center-crops and scales to 1080x1080
	FormatSquare Format = "square"
)

// ParseFormat validates a format name from user input
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatOriginal, FormatVertical, FormatSquare:
		return Format(s), nil
	case "":
		return FormatOriginal, nil
	}
	return "", fmt.Errorf("unknown export format %q (expected original, vertical or square)", s)
}

func (f Format) dimensions() (width, height int) {
	switch f {
	case FormatVertical:
		return 1080, 1920
	case FormatSquare:
		return 1080, 1080
	}
	return 0, 0
}

func (f Format) suffix() string {
	if f == FormatOriginal {
		return ""
	}
	return "_" + string(f)
}

// Cutter is the subset of the ffmpeg executor the clip exporter needs
type Cutter interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	ExtractClip(ctx context.Context, input string, opts ffmpeg.ClipOptions) error
	Concat(ctx context.Context, opts ffmpeg.ConcatOptions) error
}

// VideoOptions controls a clip export batch
type VideoOptions struct {
	Dir          string // output directory for clip files
	Format       Format
	ReelPath     string // when set, concatenate exported clips into one file
	CRF          int
	Preset       string
	AudioBitrate string
}

// ClipResult records the outcome of one clip
type ClipResult struct {
	ClipID int    `json:"clip_id"`
	Path   string `json:"path"`
	Method string `json:"method,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ExportSummary reports a finished clip export batch
type ExportSummary struct {
	Total    int          `json:"total"`
	Exported int          `json:"exported"`
	Failed   int          `json:"failed"`
	Clips    []ClipResult `json:"clips"`
	ReelPath string       `json:"reel_path,omitempty"`
}

// ClipExporter renders segments into individual clip files
type ClipExporter struct {
	logger zerolog.Logger
	cutter Cutter
	sink   progress.Sink
}

// NewClipExporter creates a clip exporter. A nil sink disables progress
// reporting.
func NewClipExporter(logger zerolog.Logger, cutter Cutter, sink progress.Sink) *ClipExporter {
	if sink == nil {
		sink = progress.Nop{}
	}
	return &ClipExporter{
		logger: logger.With().Str("component", "export").Logger(),
		cutter: cutter,
		sink:   sink,
	}
}

// ExportClips cuts every segment out of the input video. Clips that fail
// are logged and counted but do not abort the batch; the error return is
// reserved for setup problems, cancellation and batches where nothing
// could be exported.
func (x *ClipExporter) ExportClips(ctx context.Context, input string, segs []segments.Segment, opts VideoOptions) (*ExportSummary, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}

	sum := &ExportSummary{Total: len(segs)}
	if len(segs) == 0 {
		x.logger.Warn().Msg("no segments to export")
		return sum, nil
	}

	if err := util.EnsureDir(opts.Dir); err != nil {
		return nil, fmt.Errorf("failed to create clip directory: %w", err)
	}

	// Geometry conversions share one crop+scale chain computed from the
	// probed input dimensions.
	filter := ""
	if format != FormatOriginal {
		info, err := x.cutter.Probe(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to probe input: %w", err)
		}
		if !info.HasVideo || info.Width <= 0 || info.Height <= 0 {
			return nil, fmt.Errorf("input has no usable video stream")
		}
		w, h := format.dimensions()
		filter = cropScaleFilter(info.Width, info.Height, w, h)
	}

	x.sink.StartStage(progress.StageVideoExport, "")
	x.logger.Info().
		Str("input", input).
		Str("dir", opts.Dir).
		Str("format", string(format)).
		Int("clips", len(segs)).
		Msg("exporting clips")

	sawCopy := false
	sawReencode := false
	var exported []string
	for i, seg := range segs {
		if err := ctx.Err(); err != nil {
			x.sink.Error(progress.StageVideoExport, "export aborted")
			return sum, fmt.Errorf("clip export aborted: %w", err)
		}

		out := filepath.Join(opts.Dir, fmt.Sprintf("clip_%02d%s.mp4", seg.ClipID, format.suffix()))
		method, err := x.exportOne(ctx, input, seg, out, format, filter, opts)
		if err != nil {
			x.logger.Error().
				Err(err).
				Int("clip_id", seg.ClipID).
				Float64("start", seg.Start).
				Msg("clip export failed")
			sum.Failed++
			sum.Clips = append(sum.Clips, ClipResult{ClipID: seg.ClipID, Path: out, Error: err.Error()})
			continue
		}

		sum.Exported++
		sum.Clips = append(sum.Clips, ClipResult{ClipID: seg.ClipID, Path: out, Method: method})
		exported = append(exported, out)
		switch method {
		case "copy":
			sawCopy = true
		default:
			sawReencode = true
		}

		pct := (i + 1) * 100 / len(segs)
		x.sink.Update(pct, fmt.Sprintf("Exported clip %d/%d", i+1, len(segs)))
	}

	if sum.Exported == 0 {
		x.sink.Error(progress.StageVideoExport, "all clips failed")
		return sum, fmt.Errorf("all %d clips failed to export", sum.Total)
	}

	if opts.ReelPath != "" {
		if err := x.buildReel(ctx, exported, opts, sawCopy && sawReencode); err != nil {
			x.logger.Error().Err(err).Msg("reel concatenation failed")
			sum.Failed++
		} else {
			sum.ReelPath = opts.ReelPath
		}
	}

	x.sink.CompleteStage(progress.StageVideoExport, fmt.Sprintf("Exported %d/%d clips", sum.Exported, sum.Total))
	x.logger.Info().
		Int("exported", sum.Exported).
		Int("failed", sum.Failed).
		Msg("clip export complete")
	return sum, nil
}

// exportOne extracts a single segment. Original-format clips attempt
// stream copy first and fall back to re-encoding when the cut points do
// not land on keyframes cleanly.
func (x *ClipExporter) exportOne(ctx context.Context, input string, seg segments.Segment, out string, format Format, filter string, opts VideoOptions) (string, error) {
	start := secondsToDuration(seg.Start)
	end := secondsToDuration(seg.End)

	if format == FormatOriginal {
		copyOpts := ffmpeg.ClipOptions{
			Start:     start,
			End:       end,
			Output:    out,
			CopyCodec: true,
		}
		if err := x.cutter.ExtractClip(ctx, input, copyOpts); err == nil {
			return "copy", nil
		} else if ctx.Err() != nil {
			return "", err
		} else {
			x.logger.Warn().
				Err(err).
				Int("clip_id", seg.ClipID).
				Msg("stream copy failed, re-encoding")
		}
	}

	encodeOpts := ffmpeg.ClipOptions{
		Start:        start,
		End:          end,
		Output:       out,
		VideoFilter:  filter,
		CRF:          opts.CRF,
		Preset:       opts.Preset,
		AudioBitrate: opts.AudioBitrate,
	}
	if err := x.cutter.ExtractClip(ctx, input, encodeOpts); err != nil {
		return "", err
	}
	return "reencode", nil
}

// buildReel concatenates the exported clips in chronological order.
// Stream copy is enough when every clip came out of the same encode
// path; a mixed batch gets re-encoded for codec consistency.
func (x *ClipExporter) buildReel(ctx context.Context, clips []string, opts VideoOptions, mixed bool) error {
	x.logger.Info().
		Int("clips", len(clips)).
		Str("output", opts.ReelPath).
		Bool("re_encode", mixed).
		Msg("building reel")

	return x.cutter.Concat(ctx, ffmpeg.ConcatOptions{
		Inputs:   clips,
		Output:   opts.ReelPath,
		ReEncode: mixed,
		CRF:      opts.CRF,
		Preset:   opts.Preset,
	})
}

// cropScaleFilter builds a center crop to the target aspect ratio
// followed by a scale to the exact output size
func cropScaleFilter(inW, inH, outW, outH int) string {
	target := float64(outW) / float64(outH)
	aspect := float64(inW) / float64(inH)

	var cw, ch, cx, cy int
	if aspect > target {
		// wider than the target: crop the sides
		cw = int(float64(inH) * target)
		ch = inH
		cx = (inW - cw) / 2
	} else {
		// taller than the target: crop top and bottom
		cw = inW
		ch = int(float64(inW) / target)
		cy = (inH - ch) / 2
	}

	return ffmpeg.NewFilterBuilder().
		Crop(cw, ch, cx, cy).
		Scale(outW, outH).
		Build()
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
