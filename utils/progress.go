package utils

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// ProgressTracker displays the transfer of one video and keeps its statistics.
// It implements internal.ProgressReporter.
type ProgressTracker struct {
	bar       *pb.ProgressBar
	startTime time.Time
	total     int64
	current   int64
	mutex     sync.Mutex
}

// TransferSummary contains final statistics for one transfer
type TransferSummary struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
}

// NewProgressTracker creates a tracker for a transfer of total bytes.
// total <= 0 means the size is unknown.
func NewProgressTracker(label string, total int64, quiet bool) *ProgressTracker {
	return newProgressTracker(label, total, quiet, nil)
}

func newProgressTracker(label string, total int64, quiet bool, output io.Writer) *ProgressTracker {
	tracker := &ProgressTracker{
		startTime: time.Now(),
		total:     total,
	}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`
		if total <= 0 {
			tmpl = `{{string . "prefix"}}{{counters . }} {{speed . }}`
		}
		bar := pb.New64(total).SetTemplateString(tmpl)
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
		bar.Set("prefix", label+" ")
		if output != nil {
			bar.SetWriter(output)
		}
		tracker.bar = bar.Start()
	}

	return tracker
}

// Add records n more bytes written
func (p *ProgressTracker) Add(n int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current += n
	if p.bar != nil {
		p.bar.Add64(n)
	}
}

// Finish stops the bar
func (p *ProgressTracker) Finish() {
	p.Summary()
}

// Summary stops the bar and returns the transfer statistics
func (p *ProgressTracker) Summary() *TransferSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}

	totalTime := time.Since(p.startTime)
	var averageSpeed float64
	if totalTime > 0 {
		averageSpeed = float64(p.current) / totalTime.Seconds()
	}

	return &TransferSummary{
		TotalBytes:   p.current,
		TotalTime:    totalTime,
		AverageSpeed: averageSpeed,
	}
}

// Current returns the number of bytes recorded so far
func (p *ProgressTracker) Current() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.current
}

// FormatBytes formats byte count as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
