package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/codebuildervaibhav/video-enhancer/internal/controller"
	"github.com/codebuildervaibhav/video-enhancer/internal/remote"
)

func TestRenderBar(t *testing.T) {
	tests := []struct {
		pct   float64
		label string
		want  string
	}{
		{0, "Idle", "[" + strings.Repeat(".", 30) + "]   0% Idle"},
		{50, "Processing… 50%", "[" + strings.Repeat("#", 15) + strings.Repeat(".", 15) + "]  50% Processing… 50%"},
		{100, "Done", "[" + strings.Repeat("#", 30) + "] 100% Done"},
	}

	for _, tt := range tests {
		if got := renderBar(tt.pct, tt.label); got != tt.want {
			t.Errorf("renderBar(%v, %q): expected %q, got %q", tt.pct, tt.label, tt.want, got)
		}
	}
}

func TestTerminalView_LineMode(t *testing.T) {
	var buf bytes.Buffer
	v := NewTerminalView(&buf)
	if v.redraw {
		t.Fatal("expected line mode for a non-terminal writer")
	}

	v.ShowFile("clip.mp4 • video/mp4 • 1.0 MB")
	v.SetProgress(3, "Uploading…")
	v.SetProgress(3, "Uploading…")
	v.SetLabel("Denoising")
	v.ShowResult("http://localhost:3000/results/a.mp4")
	v.Notify("Status failed: 500")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(lines), lines)
	}
	if lines[0] != "Selected: clip.mp4 • video/mp4 • 1.0 MB" {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.HasSuffix(lines[2], "3% Denoising") {
		t.Errorf("expected label change to keep the percentage, got %q", lines[2])
	}
	if lines[4] != "Error: Status failed: 500" {
		t.Errorf("unexpected notification %q", lines[4])
	}
	if v.Result() != "http://localhost:3000/results/a.mp4" {
		t.Errorf("unexpected result %q", v.Result())
	}
}

func TestTerminalView_Redraw(t *testing.T) {
	var buf bytes.Buffer
	v := &TerminalView{out: &buf, redraw: true}

	v.SetProgress(10, "Processing… 10%")
	v.SetProgress(20, "Done")
	v.Notify("boom")

	out := buf.String()
	if strings.Count(out, "\r") != 2 {
		t.Errorf("expected 2 carriage returns, got %q", out)
	}
	if !strings.HasSuffix(out, "\nError: boom\n") {
		t.Errorf("expected notification on a fresh line, got %q", out)
	}
}

func TestLogBuffer(t *testing.T) {
	lb := NewLogBuffer()
	for i := 0; i < maxLogLines+5; i++ {
		fmt.Fprintf(lb, "line %d\n", i)
	}

	logs := lb.GetLogs()
	if len(logs) != maxLogLines {
		t.Fatalf("expected %d lines, got %d", maxLogLines, len(logs))
	}
	if logs[0] != "line 5\n" {
		t.Errorf("expected oldest lines to be dropped, got %q", logs[0])
	}

	logs[0] = "changed"
	if lb.GetLogs()[0] == "changed" {
		t.Error("expected GetLogs to return a copy")
	}
}

func TestExitCode(t *testing.T) {
	interrupted := &remote.NetworkError{Op: "upload", Err: context.Canceled}

	tests := []struct {
		name  string
		state controller.State
		err   error
		want  int
	}{
		{"completed", controller.StateCompleted, nil, 0},
		{"failed", controller.StateFailed, nil, 1},
		{"upload error", controller.StateFailed, errors.New("boom"), 1},
		{"interrupted upload", controller.StateFailed, interrupted, 130},
		{"interrupted wait", controller.StatePolling, context.Canceled, 130},
	}

	for _, tt := range tests {
		if got := exitCode(tt.state, tt.err); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}
