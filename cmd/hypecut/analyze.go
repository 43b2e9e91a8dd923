package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/hypecut/internal/analyzer"
	"github.com/kikiluvv/hypecut/internal/config"
	"github.com/kikiluvv/hypecut/internal/export"
	"github.com/kikiluvv/hypecut/internal/ffmpeg"
	"github.com/kikiluvv/hypecut/internal/metrics"
	"github.com/kikiluvv/hypecut/internal/progress"
	"github.com/kikiluvv/hypecut/pkg/util"
)

var analyzeOpts struct {
	clips          int
	minLen         float64
	maxLen         float64
	pre            float64
	spacing        int
	seeds          string
	withMotion     bool
	alignToBeat    bool
	outJSON        string
	outCSV         string
	exportVideo    bool
	exportDir      string
	exportFormat   string
	reel           bool
	metricsPath    string
	progressEvents bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [video]",
	Short: "Score a video and select highlight segments",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.IntVarP(&analyzeOpts.clips, "clips", "k", 0, "number of highlights to select")
	f.Float64Var(&analyzeOpts.minLen, "min-len", 0, "minimum segment length in seconds")
	f.Float64Var(&analyzeOpts.maxLen, "max-len", 0, "maximum segment length in seconds")
	f.Float64Var(&analyzeOpts.pre, "pre", 0, "pre-roll seconds before each peak")
	f.IntVar(&analyzeOpts.spacing, "spacing", 0, "minimum peak spacing in analysis frames")
	f.StringVar(&analyzeOpts.seeds, "seeds", "", "comma-separated seed timestamps (90, 1:30, 1:30.5)")
	f.BoolVar(&analyzeOpts.withMotion, "with-motion", false, "fuse visual motion into the score")
	f.BoolVar(&analyzeOpts.alignToBeat, "align-to-beat", false, "snap segment boundaries to the beat grid")
	f.StringVar(&analyzeOpts.outJSON, "out-json", "", "JSON results path")
	f.StringVar(&analyzeOpts.outCSV, "out-csv", "", "CSV results path")
	f.BoolVar(&analyzeOpts.exportVideo, "export-video", false, "cut clip files after analysis")
	f.StringVar(&analyzeOpts.exportDir, "export-dir", "", "directory for exported clips")
	f.StringVar(&analyzeOpts.exportFormat, "export-format", "", "clip format: original, vertical or square")
	f.BoolVar(&analyzeOpts.reel, "reel", false, "concatenate exported clips into reel.mp4")
	f.StringVar(&analyzeOpts.metricsPath, "metrics", "", "write Prometheus textfile metrics to this path")
	f.BoolVar(&analyzeOpts.progressEvents, "progress-events", false, "emit NDJSON progress events on stdout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	c := *config.FromContext(cmd.Context())
	if err := applyAnalyzeFlags(cmd, &c); err != nil {
		return err
	}

	var sink progress.Sink
	var bars *barSink
	if analyzeOpts.progressEvents {
		sink = progress.NewEmitter(os.Stdout)
	} else {
		bars = newBarSink()
		sink = bars
		defer bars.Shutdown()
	}

	engine, err := analyzer.New(log.Logger, &c, sink)
	if err != nil {
		return err
	}

	res, err := engine.Analyze(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if analyzeOpts.exportVideo {
		if err := exportAnalyzedClips(cmd, &c, res, sink, args[0]); err != nil {
			return err
		}
	}

	sink.StartStage(progress.StageResultExport, "")
	writer := export.NewWriter(log.Logger)
	doc := export.BuildDocument(res, c.Analysis)
	if err := writer.WriteJSON(c.Export.JSONPath, doc); err != nil {
		sink.Error(progress.StageResultExport, err.Error())
		return err
	}
	if err := writer.WriteCSV(c.Export.CSVPath, res.Segments); err != nil {
		sink.Error(progress.StageResultExport, err.Error())
		return err
	}
	sink.CompleteStage(progress.StageResultExport, "")

	if analyzeOpts.metricsPath != "" {
		if err := res.Metrics.WriteTextfile(analyzeOpts.metricsPath); err != nil {
			return err
		}
	}

	sink.CompleteStage(progress.StageCompletion,
		fmt.Sprintf("Selected %d highlights in %.1fs", len(res.Segments), res.Metrics.TotalSeconds))

	log.Info().
		Int("segments", len(res.Segments)).
		Str("json", c.Export.JSONPath).
		Str("csv", c.Export.CSVPath).
		Msg("analysis complete")

	if bars != nil {
		bars.Shutdown()
	}
	if !analyzeOpts.progressEvents {
		printSegments(res)
	}
	return nil
}

// applyAnalyzeFlags overlays explicitly set flags onto the loaded config
func applyAnalyzeFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	if f.Changed("clips") {
		c.Analysis.Clips = analyzeOpts.clips
	}
	if f.Changed("min-len") {
		c.Analysis.MinLen = analyzeOpts.minLen
	}
	if f.Changed("max-len") {
		c.Analysis.MaxLen = analyzeOpts.maxLen
	}
	if f.Changed("pre") {
		c.Analysis.PreRoll = analyzeOpts.pre
	}
	if f.Changed("spacing") {
		c.Analysis.PeakSpacing = analyzeOpts.spacing
	}
	if f.Changed("seeds") {
		seeds, err := util.ParseSeeds(analyzeOpts.seeds)
		if err != nil {
			return err
		}
		c.Analysis.Seeds = seeds
	}
	if f.Changed("with-motion") {
		c.Analysis.WithMotion = analyzeOpts.withMotion
	}
	if f.Changed("align-to-beat") {
		c.Analysis.AlignToBeat = analyzeOpts.alignToBeat
	}
	if f.Changed("out-json") {
		c.Export.JSONPath = analyzeOpts.outJSON
	}
	if f.Changed("out-csv") {
		c.Export.CSVPath = analyzeOpts.outCSV
	}
	if f.Changed("export-dir") {
		c.Export.ClipDir = analyzeOpts.exportDir
	}
	if f.Changed("export-format") {
		c.Export.Format = analyzeOpts.exportFormat
	}
	return nil
}

// exportAnalyzedClips cuts the selected segments right after analysis and
// folds the export stage into the result metrics
func exportAnalyzedClips(cmd *cobra.Command, c *config.Config, res *analyzer.Result, sink progress.Sink, input string) error {
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
	if analyzeOpts.reel {
		opts.ReelPath = filepath.Join(opts.Dir, "reel.mp4")
	}

	cutter := export.NewClipExporter(log.Logger, exe, sink)
	start := time.Now()
	sum, err := cutter.ExportClips(cmd.Context(), input, res.Segments, opts)
	if sum != nil {
		res.Metrics.RecordStage(progress.StageVideoExport, start, time.Now())
		res.Metrics.AddCounter(metrics.CounterClipsExported, int64(sum.Exported))
		if sum.Failed > 0 {
			res.Metrics.AddCounter(metrics.CounterClipsFailed, int64(sum.Failed))
		}
	}
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

func printSegments(res *analyzer.Result) {
	if len(res.Segments) == 0 {
		fmt.Println("no highlights selected")
		return
	}
	fmt.Printf("\n%-4s %-9s %-9s %-8s %-6s %s\n", "id", "start", "end", "length", "score", "flags")
	for _, s := range res.Segments {
		var flags []string
		if s.Seeded {
			flags = append(flags, "seed")
		}
		if s.Aligned {
			flags = append(flags, "beat")
		}
		fmt.Printf("%-4d %-9s %-9s %-8s %-6.3f %s\n",
			s.ClipID, clock(s.Start), clock(s.End),
			fmt.Sprintf("%.1fs", s.End-s.Start), s.Score, strings.Join(flags, ","))
	}
}

// clock renders seconds as m:ss.cc
func clock(sec float64) string {
	m := int(sec) / 60
	return fmt.Sprintf("%d:%05.2f", m, sec-float64(m*60))
}
