package main

import (
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/vecingest/pkg/pipeline"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// progressBar advances once per document leaving the pipeline, embedded or
// not, and shows the store counters in its description.
type progressBar struct {
	bar     *progressbar.ProgressBar
	tracker *pipeline.Tracker
}

func newProgressBar(total int) *progressBar {
	pb := &progressBar{bar: getProgressBar(total, "Embedding documents...")}
	pb.tracker = pipeline.NewTracker(pb.update)
	return pb
}

func (pb *progressBar) update(counter pipeline.Counter, delta int64) {
	switch counter {
	case pipeline.CounterProcessed, pipeline.CounterEmbedded:
		pb.bar.Add64(delta)
	}
	snap := pb.tracker.Snapshot()
	pb.bar.Describe(color.BlueString("Embedding documents... (stored %d, failed %d)", snap.Stored, snap.Failed))
}

func (pb *progressBar) finish() {
	pb.bar.Finish()
}
