// Package export persists analysis results as JSON and CSV documents
// and renders the selected segments into clip files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/hypecut/internal/analyzer"
	"github.com/kikiluvv/hypecut/internal/config"
	"github.com/kikiluvv/hypecut/internal/metrics"
	"github.com/kikiluvv/hypecut/internal/segments"
	"github.com/kikiluvv/hypecut/pkg/util"
)

// DocumentVersion identifies the result document schema
const DocumentVersion = "1.0.0"

// csvHeader is the fixed column order of the CSV export
var csvHeader = []string{"clip_id", "start", "end", "center", "score", "seed_based", "aligned", "length"}

// ClipRecord is one segment as it appears in exported documents. Times
// are seconds rounded to millisecond precision.
type ClipRecord struct {
	ClipID  int     `json:"clip_id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Center  float64 `json:"center"`
	Score   float64 `json:"score"`
	Seeded  bool    `json:"seed_based"`
	Aligned bool    `json:"aligned"`
	Length  float64 `json:"length"`
}

// Document is the versioned top-level result structure written to JSON
type Document struct {
	Version     string                `json:"version"`
	GeneratedAt time.Time             `json:"generated_at"`
	Source      string                `json:"source"`
	Config      config.AnalysisConfig `json:"config"`
	Summary     analyzer.Summary      `json:"summary"`
	Metrics     metrics.Snapshot      `json:"metrics"`
	Segments    []ClipRecord          `json:"segments"`
}

// BuildDocument assembles the export document from an analysis result
// and the knobs that produced it
func BuildDocument(res *analyzer.Result, cfg config.AnalysisConfig) Document {
	return Document{
		Version:     DocumentVersion,
		GeneratedAt: time.Now().UTC(),
		Source:      res.Input,
		Config:      cfg,
		Summary:     res.Summary,
		Metrics:     res.Metrics,
		Segments:    toRecords(res.Segments),
	}
}

func toRecords(segs []segments.Segment) []ClipRecord {
	records := make([]ClipRecord, len(segs))
	for i, s := range segs {
		records[i] = ClipRecord{
			ClipID:  s.ClipID,
			Start:   round3(s.Start),
			End:     round3(s.End),
			Center:  round3(s.Center),
			Score:   round3(s.Score),
			Seeded:  s.Seeded,
			Aligned: s.Aligned,
			Length:  round3(s.End - s.Start),
		}
	}
	return records
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Writer persists result documents to disk
type Writer struct {
	logger zerolog.Logger
}

// NewWriter creates a result writer
func NewWriter(logger zerolog.Logger) *Writer {
	return &Writer{
		logger: logger.With().Str("component", "export").Logger(),
	}
}

// WriteJSON writes the full document as indented JSON, creating parent
// directories as needed
func (w *Writer) WriteJSON(path string, doc Document) error {
	if path == "" {
		return fmt.Errorf("json output path is required")
	}
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	w.logger.Info().
		Str("path", path).
		Int("segments", len(doc.Segments)).
		Msg("results written")
	return nil
}

// ReadJSON loads a previously exported document, verifying the schema
// version
func ReadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	if doc.Version != DocumentVersion {
		return nil, fmt.Errorf("unsupported result version %q (expected %s)", doc.Version, DocumentVersion)
	}
	return &doc, nil
}

// WriteCSV writes the segment table with one row per clip. Floats use
// three decimal places to match the JSON document precision.
func (w *Writer) WriteCSV(path string, segs []segments.Segment) error {
	if path == "" {
		return fmt.Errorf("csv output path is required")
	}
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, s := range segs {
		row := []string{
			fmt.Sprintf("%d", s.ClipID),
			fmt.Sprintf("%.3f", s.Start),
			fmt.Sprintf("%.3f", s.End),
			fmt.Sprintf("%.3f", s.Center),
			fmt.Sprintf("%.3f", s.Score),
			fmt.Sprintf("%t", s.Seeded),
			fmt.Sprintf("%t", s.Aligned),
			fmt.Sprintf("%.3f", s.End-s.Start),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	w.logger.Info().
		Str("path", path).
		Int("rows", len(segs)).
		Msg("csv written")
	return nil
}
