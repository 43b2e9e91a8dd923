package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/hypecut/internal/progress"
)

// Counter names recorded by the pipeline
const (
	CounterNoveltyFrames   = "novelty_frames"
	CounterFramesAnalyzed  = "frames_analyzed"
	CounterPeaksFound      = "peaks_found"
	CounterSegmentsBuilt   = "segments_built"
	CounterSegmentsDropped = "segments_dropped"
	CounterClipsExported   = "clips_exported"
	CounterClipsFailed     = "clips_failed"
)

// StageTiming is one finished stage interval
type StageTiming struct {
	Stage    string    `json:"stage"`
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
	Duration float64   `json:"duration_seconds"`
}

// Snapshot is the exportable view of a run's metrics, embedded into the
// JSON result document
type Snapshot struct {
	TotalSeconds float64          `json:"total_seconds"`
	Stages       []StageTiming    `json:"stages"`
	Counters     map[string]int64 `json:"counters,omitempty"`
}

// Collector accumulates stage timings and counters over one analysis run.
// Safe for use from ffmpeg progress callbacks, which fire on scanner
// goroutines.
type Collector struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	started  time.Time
	open     map[progress.Stage]time.Time
	order    []progress.Stage
	finished map[progress.Stage]StageTiming
	counters map[string]int64
}

// NewCollector starts a collector; total time runs from this call
func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger:   logger.With().Str("component", "metrics").Logger(),
		started:  time.Now(),
		open:     make(map[progress.Stage]time.Time),
		finished: make(map[progress.Stage]StageTiming),
		counters: make(map[string]int64),
	}
}

// StartStage begins timing a stage. Restarting an open stage resets it.
func (c *Collector) StartStage(stage progress.Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.open[stage]; !seen {
		if _, done := c.finished[stage]; !done {
			c.order = append(c.order, stage)
		}
	}
	c.open[stage] = time.Now()
	c.logger.Debug().Str("stage", string(stage)).Msg("stage started")
}

// FinishStage closes an open stage; unknown stages are ignored
func (c *Collector) FinishStage(stage progress.Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start, ok := c.open[stage]
	if !ok {
		c.logger.Debug().Str("stage", string(stage)).Msg("finish for stage that never started")
		return
	}
	delete(c.open, stage)
	end := time.Now()
	t := StageTiming{
		Stage:    string(stage),
		Start:    start,
		End:      end,
		Duration: end.Sub(start).Seconds(),
	}
	c.finished[stage] = t
	c.logger.Debug().Str("stage", string(stage)).Float64("seconds", t.Duration).Msg("stage finished")
}

// Add increments a named counter
func (c *Collector) Add(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += delta
}

// Set overwrites a named counter
func (c *Collector) Set(name string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] = value
}

// Snapshot returns the finished timings in pipeline order plus counters.
// Stages still open are not included; close them first on abort paths.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		TotalSeconds: time.Since(c.started).Seconds(),
		Stages:       make([]StageTiming, 0, len(c.finished)),
	}
	for _, stage := range c.order {
		if t, ok := c.finished[stage]; ok {
			snap.Stages = append(snap.Stages, t)
		}
	}
	if len(c.counters) > 0 {
		snap.Counters = make(map[string]int64, len(c.counters))
		for k, v := range c.counters {
			snap.Counters[k] = v
		}
	}
	return snap
}

// RecordStage folds an externally timed stage into the snapshot. Used
// for work that happens after the collector's run, like clip export.
func (s *Snapshot) RecordStage(stage progress.Stage, start, end time.Time) {
	d := end.Sub(start).Seconds()
	s.Stages = append(s.Stages, StageTiming{
		Stage:    string(stage),
		Start:    start,
		End:      end,
		Duration: d,
	})
	s.TotalSeconds += d
}

// AddCounter increments a counter directly on the snapshot
func (s *Snapshot) AddCounter(name string, delta int64) {
	if s.Counters == nil {
		s.Counters = make(map[string]int64)
	}
	s.Counters[name] += delta
}

// StageSeconds returns a finished stage's duration, or zero
func (s Snapshot) StageSeconds(stage progress.Stage) float64 {
	for _, t := range s.Stages {
		if t.Stage == string(stage) {
			return t.Duration
		}
	}
	return 0
}

// sortedCounterNames keeps the exposition output deterministic
func (s Snapshot) sortedCounterNames() []string {
	names := make([]string, 0, len(s.Counters))
	for name := range s.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
