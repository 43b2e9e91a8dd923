package main

import (
	"fmt"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/kikiluvv/hypecut/internal/progress"
)

// barSink renders pipeline progress as terminal bars, one bar per stage
type barSink struct {
	mu      sync.Mutex
	p       *mpb.Progress
	current *mpb.Bar
	done    sync.Once
}

func newBarSink() *barSink {
	return &barSink{
		p: mpb.New(mpb.WithWidth(40)),
	}
}

func (b *barSink) StartStage(stage progress.Stage, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishCurrent()
	b.current = b.p.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("%-18s", stage.Title())),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)
}

func (b *barSink) Update(pct int, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	b.current.SetCurrent(int64(pct))
}

func (b *barSink) CompleteStage(stage progress.Stage, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishCurrent()
}

func (b *barSink) Error(stage progress.Stage, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.current.Abort(false)
		b.current = nil
	}
}

func (b *barSink) Info(progress.Stage, string) {}

// Shutdown completes any open bar and waits for the renderer. Safe to
// call more than once.
func (b *barSink) Shutdown() {
	b.done.Do(func() {
		b.mu.Lock()
		b.finishCurrent()
		b.mu.Unlock()
		b.p.Wait()
	})
}

func (b *barSink) finishCurrent() {
	if b.current != nil {
		b.current.SetTotal(100, true)
		b.current = nil
	}
}
