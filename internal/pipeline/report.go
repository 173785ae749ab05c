package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/valpere/scanbook/internal/chunker"
	"github.com/valpere/scanbook/internal/corrector"
	"github.com/valpere/scanbook/internal/cost"
	"github.com/valpere/scanbook/internal/dispatcher"
	"github.com/valpere/scanbook/internal/reassembler"
)

// Failure names a chunk that kept its original text.
type Failure struct {
	Index  int
	Reason corrector.FailureKind
	Err    error
}

// Report summarizes a refinement run.
type Report struct {
	RunID        string
	TotalChunks  int
	Succeeded    int
	Failed       int
	Resumed      int
	Cached       int
	Failures     []Failure
	Cost         cost.Snapshot
	FallbackUsed bool
	Warnings     []string
	Chapters     int
	Text         string
	Duration     time.Duration
}

func newReport(runID string, results []dispatcher.Result, out reassembler.Output, snap cost.Snapshot, chunkWarnings []chunker.Warning, resumed int) *Report {
	r := &Report{
		RunID:        runID,
		TotalChunks:  len(results),
		Resumed:      resumed,
		Cost:         snap,
		FallbackUsed: out.FallbackUsed(),
		Text:         out.Text,
	}
	for _, w := range chunkWarnings {
		r.Warnings = append(r.Warnings, w.Error())
	}
	for _, res := range results {
		if res.Status == dispatcher.Success {
			r.Succeeded++
			if res.Cached {
				r.Cached++
			}
			for _, w := range res.Warnings {
				r.Warnings = append(r.Warnings, fmt.Sprintf("chunk %d: %s", res.ChunkIndex, w))
			}
			continue
		}
		r.Failed++
		r.Failures = append(r.Failures, Failure{Index: res.ChunkIndex, Reason: res.Reason, Err: res.Err})
	}
	return r
}

// Summary writes the human-readable run summary.
func (r *Report) Summary(w io.Writer) {
	fmt.Fprintf(w, "Run:        %s\n", r.RunID)
	fmt.Fprintf(w, "Chunks:     %d total, %d succeeded, %d failed\n", r.TotalChunks, r.Succeeded, r.Failed)
	if r.Resumed > 0 || r.Cached > 0 {
		fmt.Fprintf(w, "Reused:     %d from checkpoint, %d from memory\n", r.Resumed, r.Cached)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  chunk %d: %s\n", f.Index, f.Reason)
	}
	fmt.Fprintf(w, "Tokens:     %d input, %d output\n", r.Cost.TotalInputTokens, r.Cost.TotalOutputTokens)
	fmt.Fprintf(w, "Cost:       $%.4f (%s)\n", r.Cost.TotalCost, r.Cost.Model)
	if r.FallbackUsed {
		fmt.Fprintf(w, "Fallback:   original text kept for %d chunk(s)\n", r.Failed)
	} else {
		fmt.Fprintln(w, "Fallback:   none")
	}
	if r.Chapters > 0 {
		fmt.Fprintf(w, "Chapters:   %d\n", r.Chapters)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(w, "Warnings:   %d\n", len(r.Warnings))
		for _, msg := range r.Warnings {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}
	fmt.Fprintf(w, "Duration:   %s\n", r.Duration.Round(time.Millisecond))
}
