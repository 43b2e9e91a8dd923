package main

import (
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/hypecut/internal/config"
	"github.com/kikiluvv/hypecut/internal/export"
	"github.com/kikiluvv/hypecut/internal/ffmpeg"
	"github.com/kikiluvv/hypecut/internal/segments"
)

var exportOpts struct {
	dir    string
	format string
	reel   bool
}

var exportCmd = &cobra.Command{
	Use:   "export [results.json] [video]",
	Short: "Cut clip files from saved analysis results",
	Long:  "Re-cuts clips from a video using a previously written results document, without re-running the analysis.",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportOpts.dir, "dir", "", "directory for exported clips")
	f.StringVar(&exportOpts.format, "format", "", "clip format: original, vertical or square")
	f.BoolVar(&exportOpts.reel, "reel", false, "concatenate exported clips into reel.mp4")
}

func runExport(cmd *cobra.Command, args []string) error {
	c := config.FromContext(cmd.Context())

	doc, err := export.ReadJSON(args[0])
	if err != nil {
		return err
	}
	if len(doc.Segments) == 0 {
		log.Warn().Str("results", args[0]).Msg("results contain no segments")
		return nil
	}

	exe, err := ffmpeg.New(log.Logger, c.FFmpeg.BinaryPath, c.FFmpeg.ProbePath)
	if err != nil {
		return err
	}

	opts := export.VideoOptions{
		Dir:          c.Export.ClipDir,
		Format:       export.Format(c.Export.Format),
		CRF:          c.Export.CRF,
		Preset:       c.Export.Preset,
		AudioBitrate: c.Export.AudioBitrate,
	}
	f := cmd.Flags()
	if f.Changed("dir") {
		opts.Dir = exportOpts.dir
	}
	if f.Changed("format") {
		opts.Format = export.Format(exportOpts.format)
	}
	if exportOpts.reel {
		opts.ReelPath = filepath.Join(opts.Dir, "reel.mp4")
	}

	bars := newBarSink()
	defer bars.Shutdown()

	cutter := export.NewClipExporter(log.Logger, exe, bars)
	sum, err := cutter.ExportClips(cmd.Context(), args[1], toSegments(doc.Segments), opts)
	if err != nil {
		return err
	}

	log.Info().
		Int("exported", sum.Exported).
		Int("failed", sum.Failed).
		Str("dir", opts.Dir).
		Msg("clips exported")
	return nil
}

// toSegments rebuilds builder segments from exported records
func toSegments(records []export.ClipRecord) []segments.Segment {
	segs := make([]segments.Segment, len(records))
	for i, r := range records {
		segs[i] = segments.Segment{
			ClipID:  r.ClipID,
			Start:   r.Start,
			End:     r.End,
			Center:  r.Center,
			Score:   r.Score,
			Seeded:  r.Seeded,
			Aligned: r.Aligned,
		}
	}
	return segs
}
