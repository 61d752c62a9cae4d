package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"datahandler/internal/inventory"
)

// tone groups lifecycle states by how far along the work is.
type tone int

const (
	toneNeutral tone = iota
	toneWaiting
	toneRunning
	toneDone
	toneFailed
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

const (
	labelWidth = 14
	lineIndent = "  "
)

var toneStyles = map[tone]struct{ marker, color string }{
	toneNeutral: {"  ", ""},
	toneWaiting: {"..", ansiCyan},
	toneRunning: {">>", ansiYellow},
	toneDone:    {"ok", ansiGreen},
	toneFailed:  {"!!", ansiRed},
}

// jobTone places a job status on the waiting/running/done/failed scale.
// Unknown statuses, including "does not exist", read as failed.
func jobTone(status string) tone {
	switch inventory.JobStatus(status) {
	case inventory.JobRequested:
		return toneWaiting
	case inventory.JobInitializing, inventory.JobInProgress, inventory.JobPostProcessing:
		return toneRunning
	case inventory.JobComplete:
		return toneDone
	default:
		return toneFailed
	}
}

// workTone does the same for asset, product, and chunk statuses.
func workTone(status inventory.WorkStatus) tone {
	switch status {
	case inventory.StatusRequested:
		return toneWaiting
	case inventory.StatusScheduled, inventory.StatusInProgress, inventory.StatusRetry:
		return toneRunning
	case inventory.StatusComplete:
		return toneDone
	default:
		return toneFailed
	}
}

// renderStatusLine formats "  Label:  mk message", coloring the whole line
// by tone when colorize is set.
func renderStatusLine(label string, t tone, message string, colorize bool) string {
	style := toneStyles[t]
	line := fmt.Sprintf("%s%-*s %s %s", lineIndent, labelWidth, label+":", style.marker, message)
	line = strings.TrimRight(line, " ")
	if colorize && style.color != "" {
		return style.color + line + ansiReset
	}
	return line
}

// progressLine condenses per-status work counts into
// "done/total complete" plus any failed and outstanding items.
func progressLine(detail map[string]int) string {
	var total, done, failed, outstanding int
	for _, status := range inventory.AllWorkStatuses() {
		n := detail[string(status)]
		total += n
		switch workTone(status) {
		case toneDone:
			done += n
		case toneFailed:
			failed += n
		default:
			outstanding += n
		}
	}
	if total == 0 {
		return "no products"
	}
	parts := []string{fmt.Sprintf("%d/%d complete", done, total)}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	if outstanding > 0 {
		parts = append(parts, fmt.Sprintf("%d outstanding", outstanding))
	}
	return strings.Join(parts, ", ")
}

// progressTone is done only when nothing is outstanding and nothing failed.
func progressTone(detail map[string]int) tone {
	result := toneDone
	for _, status := range inventory.AllWorkStatuses() {
		if detail[string(status)] == 0 {
			continue
		}
		switch workTone(status) {
		case toneFailed:
			return toneFailed
		case toneWaiting, toneRunning:
			result = toneRunning
		}
	}
	return result
}

// renderCycleHeader titles one scheduling cycle with its id and duration.
func renderCycleHeader(cycleID string, took time.Duration, colorize bool) []string {
	title := "Cycle " + strings.TrimSpace(cycleID)
	if took > 0 {
		title += " (" + took.Round(time.Millisecond).String() + ")"
	}
	rule := strings.Repeat("=", len(title))
	if colorize {
		title = ansiCyan + title + ansiReset
	}
	return []string{title, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
