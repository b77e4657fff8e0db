package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetLevel("info")
	})

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden 1") {
		t.Errorf("info message should be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("warn message missing, got %q", out)
	}
}

func TestSetLevel_Invalid(t *testing.T) {
	if err := SetLevel("loud"); err == nil {
		t.Error("SetLevel(\"loud\") should fail")
	}
}

func TestTUIModeRoutesToSink(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	var levels, messages []string
	SetSink(func(level, message string) {
		levels = append(levels, level)
		messages = append(messages, message)
	})
	SetTUIMode(true)
	t.Cleanup(func() {
		SetTUIMode(false)
		SetSink(nil)
	})

	Error("poll failed: %s", "timeout")
	WithField("component", "daemon").Info("tick")

	if buf.Len() != 0 {
		t.Errorf("stderr output in TUI mode: %q", buf.String())
	}
	if len(messages) != 2 || messages[0] != "poll failed: timeout" || messages[1] != "tick" {
		t.Errorf("sink messages = %v", messages)
	}
	if levels[0] != "error" {
		t.Errorf("level = %q, want error", levels[0])
	}
}

func TestWithFieldWritesFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	WithField("component", "antiblock").Info("resolved %s", "https://api.example.com")

	out := buf.String()
	if !strings.Contains(out, "component=antiblock") {
		t.Errorf("missing field in %q", out)
	}
	if !strings.Contains(out, "resolved https://api.example.com") {
		t.Errorf("missing message in %q", out)
	}
}

func TestDebugWriterRoutesLines(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetLevel("info")
	})

	w := DebugWriter()
	w.Write([]byte("[ERR] yamux: hidden\n"))
	if buf.Len() != 0 {
		t.Errorf("debug line written at info level: %q", buf.String())
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	n, err := w.Write([]byte("[ERR] yamux: first\n[WARN] yamux: second\n"))
	if err != nil || n != len("[ERR] yamux: first\n[WARN] yamux: second\n") {
		t.Fatalf("Write() = %d, %v", n, err)
	}

	out := buf.String()
	if !strings.Contains(out, "level=debug") {
		t.Errorf("missing debug level in %q", out)
	}
	if !strings.Contains(out, "yamux: first") || !strings.Contains(out, "yamux: second") {
		t.Errorf("missing lines in %q", out)
	}
}
