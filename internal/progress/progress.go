package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/panbanda/acminer/pkg/ir"
)

// Tracker wraps a progress bar for alias initialization and entry point
// mining.
type Tracker struct {
	bar   *progressbar.ProgressBar
	label string
	out   io.Writer
}

// NewSpinner creates a spinner for operations with unknown total count.
func NewSpinner(label string) *Tracker {
	return NewSpinnerTo(os.Stderr, label)
}

// NewSpinnerTo is NewSpinner writing to w.
func NewSpinnerTo(w io.Writer, label string) *Tracker {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &Tracker{bar: bar, label: label, out: w}
}

// NewTracker creates a progress bar with the given label and total count.
func NewTracker(label string, total int) *Tracker {
	return NewTrackerTo(os.Stderr, label, total)
}

// NewTrackerTo is NewTracker writing to w.
func NewTrackerTo(w io.Writer, label string, total int) *Tracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar, label: label, out: w}
}

// Tick increments the progress by 1. Safe for concurrent use.
func (t *Tracker) Tick() {
	_ = t.bar.Add(1)
}

// Method ticks once per method; it matches the alias registry's
// initialization callback.
func (t *Tracker) Method(*ir.Method) {
	t.Tick()
}

// Entry ticks once per finished entry point and shows its signature; it
// matches traverse.ProgressFunc.
func (t *Tracker) Entry(current, total int, entry string) {
	if total > t.bar.GetMax() {
		t.bar.ChangeMax(total)
	}
	t.bar.Describe(fmt.Sprintf("%s %s", t.label, entry))
	_ = t.bar.Set(current)
}

// Count returns the current progress value.
func (t *Tracker) Count() int {
	return int(t.bar.State().CurrentNum)
}

// FinishSuccess clears the bar completely (no output).
func (t *Tracker) FinishSuccess() {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
}

// FinishSkipped clears the bar and prints a skip message.
func (t *Tracker) FinishSkipped(reason string) {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
	fmt.Fprintf(t.out, "  %s skipped (%s)\n", t.label, reason)
}

// FinishError clears the bar and prints an error message.
func (t *Tracker) FinishError(err error) {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
	fmt.Fprintf(t.out, "  %s error: %v\n", t.label, err)
}
