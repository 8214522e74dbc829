// Package progress draws file-processing progress on stderr.
package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Tracker is a progress bar over a known number of files.
type Tracker struct {
	bar *progressbar.ProgressBar
}

// NewTracker creates a bar labelled label for total files, drawn on w.
func NewTracker(w io.Writer, label string, total int) *Tracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar}
}

// Tick advances the bar by one file. Safe for concurrent use.
func (t *Tracker) Tick() {
	_ = t.bar.Add(1)
}

// Done finishes and clears the bar.
func (t *Tracker) Done() {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
}

// Factory returns a constructor of stderr progress bars in the shape the
// audit assembler expects. When enabled is false it returns nil, which
// disables progress reporting.
func Factory(enabled bool) func(label string, total int) (tick func(), done func()) {
	if !enabled {
		return nil
	}
	return func(label string, total int) (func(), func()) {
		t := NewTracker(os.Stderr, label, total)
		return t.Tick, t.Done
	}
}
