package main

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/service/lgr"
)

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	saved := lgr.Logger
	lgr.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	defer func() { lgr.Logger = saved }()

	if code := exitCode(nil); code != 0 {
		t.Fatalf("exitCode(nil) = %d, want 0", code)
	}
	if buf.Len() != 0 {
		t.Fatalf("a clean exit must not log, got %q", buf.String())
	}

	err := &model.ModelExecutionError{Backend: "fake", Err: errors.New("timeout")}
	if code := exitCode(err); code != 1 {
		t.Fatalf("exitCode(err) = %d, want 1", code)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"ERROR"`) || !strings.Contains(out, "timeout") {
		t.Fatalf("failed mode must be logged at error level, got %q", out)
	}
}

func TestModeProcessors(t *testing.T) {
	for _, name := range []string{"server", "local"} {
		if _, ok := modeProcessors[name]; !ok {
			t.Fatalf("mode %q is not registered", name)
		}
	}
}
