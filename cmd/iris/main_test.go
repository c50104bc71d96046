package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"iris/internal/app"
)

func TestReportStartupErrorPanel(t *testing.T) {
	t.Setenv("IRIS_LANG", "en")
	var buf bytes.Buffer
	reportError(&buf, &app.StartupError{Stage: "state", Err: errors.New("parse state: bad json")})
	out := buf.String()
	if !strings.Contains(out, "Application failed to start") || !strings.Contains(out, "bad json") {
		t.Fatalf("unexpected panel: %q", out)
	}
}

func TestReportPlainError(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, errors.New("boom"))
	if buf.String() != "error: boom\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
