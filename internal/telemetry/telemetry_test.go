package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestInit_ExportWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	tp, shutdown, err := Init(ctx, Config{ServiceVersion: "test", Export: true, Writer: &buf, RunID: "run-1"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, span := tp.Tracer("test").Start(ctx, "fetch")
	span.End()

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"Name": "fetch"`) {
		t.Errorf("span not exported:\n%s", out)
	}
	if !strings.Contains(out, "run-1") {
		t.Errorf("run id missing from resource:\n%s", out)
	}
}

func TestInit_NoExport(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	tp, shutdown, err := Init(ctx, Config{Writer: &buf})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	_, span := tp.Tracer("test").Start(ctx, "fetch")
	span.End()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
