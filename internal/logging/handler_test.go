package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandlerLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, slog.LevelInfo))

	logger.Info("step dispatched", "workflow", "run-1", "node", "arm")

	line := buf.String()
	if !strings.Contains(line, "INF") {
		t.Errorf("line %q missing level tag", line)
	}
	if !strings.Contains(line, "step dispatched") {
		t.Errorf("line %q missing message", line)
	}
	for _, want := range []string{"workflow", "run-1", "node", "arm"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestPrettyHandlerLevelGate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, slog.LevelWarn))

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record passed a warn-level handler")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record missing")
	}
}

func TestPrettyHandlerGroupsAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, slog.LevelInfo))

	logger.WithGroup("http").Info("request", "path", "/api/v1/workflows", "agent", "curl 8.5")

	line := buf.String()
	if !strings.Contains(line, "http.path") {
		t.Errorf("line %q missing dotted group prefix", line)
	}
	if !strings.Contains(line, `"curl 8.5"`) {
		t.Errorf("line %q: value with spaces not quoted", line)
	}
}

func TestPrettyHandlerWithAttrsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewPrettyHandler(&buf, slog.LevelInfo)
	child := parent.WithAttrs([]slog.Attr{slog.String("component", "scheduler")})

	slog.New(parent).Info("plain")
	if strings.Contains(buf.String(), "component") {
		t.Error("child attrs leaked into the parent handler")
	}
	buf.Reset()
	slog.New(child).Info("tagged")
	if !strings.Contains(buf.String(), "component") {
		t.Error("child attrs not rendered")
	}
}
