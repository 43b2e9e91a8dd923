package progress

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"
)

// EventType classifies progress events
type EventType string

const (
	EventProgress EventType = "progress"
	EventStage    EventType = "stage"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
	EventInfo     EventType = "info"
)

// Stage identifies a pipeline stage
type Stage string

const (
	StageInitialization   Stage = "initialization"
	StageAudioExtraction  Stage = "audio_extraction"
	StageNoveltyDetection Stage = "novelty_detection"
	StagePeakDetection    Stage = "peak_detection"
	StageBeatTracking     Stage = "beat_tracking"
	StageMotionAnalysis   Stage = "motion_analysis"
	StageSegmentBuilding  Stage = "segment_building"
	StageVideoExport      Stage = "video_export"
	StageResultExport     Stage = "result_export"
	StageCompletion       Stage = "completion"
)

// Title returns the stage name in display form, e.g. "Novelty Detection"
func (s Stage) Title() string {
	return titleCase(s)
}

// Event is one NDJSON progress record. Timestamps are epoch seconds so
// SSE consumers can diff them without parsing.
type Event struct {
	Type          EventType `json:"type"`
	Timestamp     float64   `json:"timestamp"`
	Elapsed       float64   `json:"elapsed"`
	Stage         Stage     `json:"stage,omitempty"`
	Progress      *int      `json:"progress,omitempty"`
	Message       string    `json:"message,omitempty"`
	StageDuration *float64  `json:"stage_duration,omitempty"`
}

// Sink receives stage lifecycle notifications from the pipeline. The CLI
// plugs in either the NDJSON emitter or a terminal bar adapter.
type Sink interface {
	StartStage(stage Stage, message string)
	Update(progress int, message string)
	CompleteStage(stage Stage, message string)
	Error(stage Stage, message string)
	Info(stage Stage, message string)
}

// Nop discards all progress notifications
type Nop struct{}

func (Nop) StartStage(Stage, string)    {}
func (Nop) Update(int, string)          {}
func (Nop) CompleteStage(Stage, string) {}
func (Nop) Error(Stage, string)         {}
func (Nop) Info(Stage, string)          {}

// Emitter writes one JSON event per line, suitable for SSE relays
type Emitter struct {
	mu         sync.Mutex
	enc        *json.Encoder
	start      time.Time
	current    Stage
	stageStart time.Time
}

// NewEmitter creates an NDJSON emitter on w
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		enc:   json.NewEncoder(w),
		start: time.Now(),
	}
}

func (e *Emitter) emit(ev Event) {
	now := time.Now()
	ev.Timestamp = float64(now.UnixNano()) / 1e9
	ev.Elapsed = now.Sub(e.start).Seconds()
	// Encode appends the trailing newline. Write errors are dropped.
	_ = e.enc.Encode(ev)
}

// StartStage announces a new pipeline stage
func (e *Emitter) StartStage(stage Stage, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = stage
	e.stageStart = time.Now()
	if message == "" {
		message = "Starting " + titleCase(stage)
	}
	e.emit(Event{Type: EventStage, Stage: stage, Message: message})
}

// Update reports progress within the current stage, clamped to 0..100
func (e *Emitter) Update(progress int, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	e.emit(Event{Type: EventProgress, Stage: e.current, Progress: &progress, Message: message})
}

// CompleteStage announces stage completion with its wall time
func (e *Emitter) CompleteStage(stage Stage, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if message == "" {
		message = "Completed " + titleCase(stage)
	}
	ev := Event{Type: EventComplete, Stage: stage, Message: message}
	if !e.stageStart.IsZero() {
		d := time.Since(e.stageStart).Seconds()
		ev.StageDuration = &d
	}
	e.emit(ev)
}

// Error reports a failure; stage may be empty when the failure is global
func (e *Emitter) Error(stage Stage, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(Event{Type: EventError, Stage: stage, Message: "Error: " + message})
}

// Info emits a freeform informational event
func (e *Emitter) Info(stage Stage, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(Event{Type: EventInfo, Stage: stage, Message: message})
}

func titleCase(stage Stage) string {
	words := strings.Split(string(stage), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
