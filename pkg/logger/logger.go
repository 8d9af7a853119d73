// Package logger reports progress of long-running comparisons, one tick per
// item processed.
package logger

import (
	"fmt"
	"io"
	"sync"

	"github.com/yuya-takeyama/dtool-info/internal/log"
)

// Progress receives phase boundaries and per-item ticks. Implementations must
// be safe for concurrent use because items may be processed in parallel.
type Progress interface {
	PhaseStart(phase string, totalItems int)
	ItemProcessed(phase string, item string, action string)
	PhaseComplete(phase string, processedItems int)
}

// VerboseLogger sends phase boundaries to the info log and item ticks to debug.
type VerboseLogger struct{}

func (l *VerboseLogger) PhaseStart(phase string, totalItems int) {
	log.Infof("[%s] Starting phase with %d items", phase, totalItems)
}

func (l *VerboseLogger) ItemProcessed(phase string, item string, action string) {
	log.Debugf("[%s] %s: %s", phase, action, item)
}

func (l *VerboseLogger) PhaseComplete(phase string, processedItems int) {
	log.Infof("[%s] Phase complete. Processed %d items", phase, processedItems)
}

type NullLogger struct{}

func (l *NullLogger) PhaseStart(phase string, totalItems int) {}

func (l *NullLogger) ItemProcessed(phase string, item string, action string) {}

func (l *NullLogger) PhaseComplete(phase string, processedItems int) {}

// BarLogger redraws a single "label [n/total]" line on w for every tick.
type BarLogger struct {
	w      io.Writer
	labels map[string]string

	mu        sync.Mutex
	total     int
	processed int
}

// NewBarLogger writes progress to w. labels maps phase names to display
// labels; phases without a label are shown by name.
func NewBarLogger(w io.Writer, labels map[string]string) *BarLogger {
	return &BarLogger{w: w, labels: labels}
}

func (l *BarLogger) label(phase string) string {
	if label, ok := l.labels[phase]; ok {
		return label
	}
	return phase
}

func (l *BarLogger) PhaseStart(phase string, totalItems int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total = totalItems
	l.processed = 0
	l.draw(phase)
}

func (l *BarLogger) ItemProcessed(phase string, item string, action string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed++
	l.draw(phase)
}

func (l *BarLogger) PhaseComplete(phase string, processedItems int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w)
}

func (l *BarLogger) draw(phase string) {
	percent := 100
	if l.total > 0 {
		percent = l.processed * 100 / l.total
	}
	fmt.Fprintf(l.w, "\r%s  [%d/%d] %3d%%", l.label(phase), l.processed, l.total, percent)
}

// Counter tallies ticks per phase. It is mostly useful in tests.
type Counter struct {
	mu     sync.Mutex
	Totals map[string]int
	Ticks  map[string]int
	Done   map[string]int
}

func NewCounter() *Counter {
	return &Counter{
		Totals: map[string]int{},
		Ticks:  map[string]int{},
		Done:   map[string]int{},
	}
}

func (c *Counter) PhaseStart(phase string, totalItems int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Totals[phase] = totalItems
}

func (c *Counter) ItemProcessed(phase string, item string, action string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ticks[phase]++
}

func (c *Counter) PhaseComplete(phase string, processedItems int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Done[phase] = processedItems
}
