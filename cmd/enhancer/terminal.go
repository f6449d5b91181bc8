package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

const barWidth = 30

// TerminalView renders the controller in a terminal. On a TTY the progress
// line is redrawn in place; otherwise every change is printed on its own line.
type TerminalView struct {
	mu       sync.Mutex
	out      io.Writer
	redraw   bool
	lastLine string
	pct      float64
	result   string
}

// NewTerminalView creates a view writing to out
func NewTerminalView(out io.Writer) *TerminalView {
	return &TerminalView{
		out:    out,
		redraw: isTerminal(out),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetProgress redraws the bar at pct with label
func (v *TerminalView) SetProgress(pct float64, label string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pct = pct
	v.drawLocked(label)
}

// SetLabel redraws the bar with a new label at the current percentage
func (v *TerminalView) SetLabel(label string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.drawLocked(label)
}

// ShowFile prints the selected file's metadata line
func (v *TerminalView) ShowFile(meta string) {
	if meta == "" {
		return
	}
	v.println("Selected: " + meta)
}

// ClearFileInput is a no-op; the terminal has no file input
func (v *TerminalView) ClearFileInput() {}

// SetTriggerEnabled is a no-op; enhancement starts from the command line
func (v *TerminalView) SetTriggerEnabled(bool) {}

// ShowResult records url and prints it when non-empty
func (v *TerminalView) ShowResult(url string) {
	v.mu.Lock()
	v.result = url
	v.mu.Unlock()
	if url != "" {
		v.println("Result: " + url)
	}
}

// Notify prints a user-facing message
func (v *TerminalView) Notify(msg string) {
	v.println("Error: " + msg)
}

// Result returns the last displayed result URL
func (v *TerminalView) Result() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.result
}

func (v *TerminalView) println(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.redraw && v.lastLine != "" {
		fmt.Fprintln(v.out)
		v.lastLine = ""
	}
	fmt.Fprintln(v.out, s)
}

func (v *TerminalView) drawLocked(label string) {
	line := renderBar(v.pct, label)
	if line == v.lastLine {
		return
	}
	if v.redraw {
		// pad so a shorter line fully covers the previous one
		pad := len(v.lastLine) - len(line)
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(v.out, "\r%s%s", line, strings.Repeat(" ", pad))
	} else {
		fmt.Fprintln(v.out, line)
	}
	v.lastLine = line
}

// renderBar draws "[#####.....]  50% label"
func renderBar(pct float64, label string) string {
	filled := int(pct / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	return fmt.Sprintf("[%s%s] %3.0f%% %s",
		strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), pct, label)
}
