package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"discflow/internal/pipeline"
	"discflow/internal/progress"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// plainBucketPercent is the progress step between lines when stdout is not
// a terminal.
const plainBucketPercent = 25

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// lineRenderer prints pipeline events as text. On a terminal the active
// plugin's progress is redrawn in place; otherwise one line is written per
// progress bucket.
type lineRenderer struct {
	out      io.Writer
	terminal bool

	mu         sync.Mutex
	lineWidth  int
	lastBucket int
}

func newLineRenderer(out io.Writer) *lineRenderer {
	return &lineRenderer{out: out, terminal: isTerminal(out), lastBucket: -1}
}

func (r *lineRenderer) OnEvent(e pipeline.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Kind {
	case pipeline.EventStageStarted:
		r.println(r.colorize(ansiBlue, fmt.Sprintf("==> %s", stageTitle(e.Stage))))
	case pipeline.EventPluginStarted:
		r.lastBucket = -1
		if !r.terminal {
			r.println(fmt.Sprintf("  [%d/%d] %s: %s", e.Index, e.Total, e.Capability.Label(), e.Plugin))
		}
	case pipeline.EventProgress:
		line := progressLine(e)
		if r.terminal {
			r.redraw(line)
			return
		}
		bucket := int(e.Percent) / plainBucketPercent
		if bucket > r.lastBucket {
			r.lastBucket = bucket
			r.println(line)
		}
	case pipeline.EventPluginFinished:
		r.clear()
		r.println(pluginResultLine(e, r.colorize))
	case pipeline.EventStageFinished:
		r.clear()
		color := ansiGreen
		switch e.State {
		case pipeline.StateFailed:
			color = ansiRed
		case pipeline.StateCanceled:
			color = ansiYellow
		}
		r.println(r.colorize(color, fmt.Sprintf("%s %s", stageTitle(e.Stage), e.State)))
	}
}

func (r *lineRenderer) redraw(line string) {
	pad := ""
	if n := r.lineWidth - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(r.out, "\r%s%s", line, pad)
	r.lineWidth = len(line)
}

func (r *lineRenderer) clear() {
	if !r.terminal || r.lineWidth == 0 {
		return
	}
	fmt.Fprintf(r.out, "\r%s\r", strings.Repeat(" ", r.lineWidth))
	r.lineWidth = 0
}

func (r *lineRenderer) println(line string) {
	fmt.Fprintln(r.out, line)
}

func (r *lineRenderer) colorize(color, text string) string {
	if !r.terminal {
		return text
	}
	return color + text + ansiReset
}

func progressLine(e pipeline.Event) string {
	parts := []string{fmt.Sprintf("  [%d/%d] %s %5.1f%%", e.Index, e.Total, e.Plugin, e.Percent)}
	if status := strings.TrimSpace(e.Status); status != "" {
		parts = append(parts, status)
	}
	parts = append(parts, fmt.Sprintf("stage %3.0f%%", e.Aggregate))
	if e.RemainingKnown {
		if eta := progress.FormatETA(e.Remaining); eta != "" {
			parts = append(parts, "ETA "+eta)
		}
	}
	return strings.Join(parts, " · ")
}

func pluginResultLine(e pipeline.Event, colorize func(string, string) string) string {
	mark, color := "✓", ansiGreen
	switch e.PluginState {
	case progress.StateFailed:
		mark, color = "✗", ansiRed
	case progress.StateCanceled:
		mark, color = "-", ansiYellow
	}
	line := fmt.Sprintf("  %s %s (%s)", mark, e.Plugin, e.Capability.Label())
	if e.Err != nil {
		line += ": " + e.Err.Error()
	}
	return colorize(color, line)
}

func stageTitle(stage pipeline.Stage) string {
	s := string(stage)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
