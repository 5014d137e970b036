package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// PhaseStats holds timing information for the phases of a backbone run.
type PhaseStats struct {
	BuildTime      time.Duration
	ImportTime     time.Duration
	PreprocessTime time.Duration
	ForwardTime    time.Duration
}

// PrintPhaseStats prints per-phase timing statistics. Phases that did not
// run are omitted.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintPhaseStats(stats *PhaseStats) {
	if !Verbose {
		return
	}
	total := stats.BuildTime + stats.ImportTime + stats.PreprocessTime + stats.ForwardTime
	if total <= 0 {
		return
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", total)
	fmt.Fprintln(Output, "\nBreakdown by phase:")
	fmt.Fprintf(Output, "  Model build: %v (%.1f%%)\n", stats.BuildTime, float64(stats.BuildTime)/float64(total)*100)
	if stats.ImportTime > 0 {
		fmt.Fprintf(Output, "  Weight import: %v (%.1f%%)\n", stats.ImportTime, float64(stats.ImportTime)/float64(total)*100)
	}
	if stats.PreprocessTime > 0 {
		fmt.Fprintf(Output, "  Preprocessing: %v (%.1f%%)\n", stats.PreprocessTime, float64(stats.PreprocessTime)/float64(total)*100)
	}
	fmt.Fprintf(Output, "  Forward pass: %v (%.1f%%)\n", stats.ForwardTime, float64(stats.ForwardTime)/float64(total)*100)
}
