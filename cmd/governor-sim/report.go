package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/opd-ai/audiogovernor/degradation"
	"github.com/opd-ai/audiogovernor/graph"
	"github.com/opd-ai/audiogovernor/warning"
)

func levelColor(l degradation.Level) *color.Color {
	switch l {
	case degradation.LevelNone:
		return color.New(color.FgGreen)
	case degradation.LevelMinor:
		return color.New(color.FgCyan)
	case degradation.LevelModerate:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func severityColor(s warning.Severity) *color.Color {
	switch s {
	case warning.SeverityInfo:
		return color.New(color.FgHiBlack)
	case warning.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// printReport writes a human-readable summary of res to w.
func printReport(w io.Writer, res *result) {
	header := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	st := res.Stats

	header.Fprintf(w, "\n=== Governor simulation (%s) ===\n", res.Mode)
	fmt.Fprintf(w, "Callbacks:    %d in %v (%d drained, %d dropped at the ring)\n",
		res.Steps, res.Elapsed.Round(time.Microsecond), st.Samples, st.RingOverflows)
	fmt.Fprintf(w, "Iterations:   %d\n", st.Iterations)
	fmt.Fprintf(w, "CPU:          average %.1f%%, peak %.1f%%, latest %.1f%%\n",
		st.CPUAverage*100, st.CPUPeak*100, st.CPULatest*100)
	if res.ControlCPUOK {
		dim.Fprintf(w, "Control CPU:  %v\n", res.ControlCPU)
	}

	fmt.Fprint(w, "Final level:  ")
	levelColor(st.Degradation.Level).Fprintf(w, "%s", st.Degradation.Level)
	fmt.Fprintf(w, " (shed %d of %d voices, reduced quality %t)\n",
		st.Degradation.ReducedVoices, st.ActiveVoices, st.Degradation.ReducedQuality)

	header.Fprintln(w, "\nLevel changes")
	if len(res.Changes) == 0 {
		dim.Fprintln(w, "  none")
	}
	for _, c := range res.Changes {
		fmt.Fprintf(w, "  %10v  ", c.At.Round(time.Microsecond))
		levelColor(c.Level).Fprintf(w, "%-9s", c.Level)
		if len(c.Disabled) > 0 {
			dim.Fprintf(w, " disabled: %s", joinEffects(c.Disabled))
		}
		fmt.Fprintln(w)
	}

	header.Fprintln(w, "\nGraph")
	fmt.Fprintf(w, "  chain:    %s\n", joinNodes(res.ChainNodes))
	fmt.Fprintf(w, "  batches:  %d applied, %d failed, %d live edges\n",
		st.BatchesApplied, st.ApplyFailures, st.LiveEdges)
	fmt.Fprintf(w, "  compiler: %d hits, %d misses, %d cached\n",
		st.Compiler.Hits, st.Compiler.Misses, st.Compiler.Size)

	header.Fprintln(w, "\nGlitches")
	fmt.Fprintf(w, "  %d underruns, %d dropouts in %d checks\n",
		st.Glitches.Underruns, st.Glitches.Dropouts, st.Glitches.Checks)

	header.Fprintln(w, "\nAudio context")
	fmt.Fprintf(w, "  state %s after %d resume calls (%d failed)\n",
		res.ContextState, res.Resumes, st.Lifecycle.Failures)

	header.Fprintf(w, "\nRecent warnings (%d total)\n", st.WarningsTotal)
	if len(res.Warnings) == 0 {
		dim.Fprintln(w, "  none")
	}
	for _, wn := range res.Warnings {
		fmt.Fprint(w, "  ")
		severityColor(wn.Severity).Fprintf(w, "%-8s", wn.Severity)
		fmt.Fprintf(w, " [%s] %s\n", wn.Type, wn.Message)
	}
}

func joinEffects(es []degradation.EffectID) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = string(e)
	}
	return strings.Join(parts, ", ")
}

func joinNodes(ns []graph.NodeID) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = string(n)
	}
	return strings.Join(parts, " -> ")
}
