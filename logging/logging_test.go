package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestCorrelatedLoggerAddsRunAndWorkerID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{AddSource: false}))
	log := New(base)

	ctx := WithWorkerID(WithRunID(context.Background(), "run-42"), 3)
	log.InfoCtx(ctx, "hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "run_id=run-42") || !strings.Contains(out, "worker_id=3") {
		t.Fatalf("expected run_id/worker_id in log: %s", out)
	}
}

func TestCorrelatedLoggerNoCorrelation(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.New(slog.NewTextHandler(&buf, nil)))
	log.InfoCtx(context.Background(), "plain")
	out := buf.String()
	if strings.Contains(out, "run_id=") || strings.Contains(out, "worker_id=") {
		t.Fatalf("unexpected correlation fields present: %s", out)
	}
}

func TestCorrelatedLoggerWarnAndErrorCtx(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := WithRunID(context.Background(), "run-7")

	log.WarnCtx(ctx, "careful")
	log.ErrorCtx(ctx, "broken")

	out := buf.String()
	if strings.Count(out, "run_id=run-7") != 2 {
		t.Fatalf("expected run_id on both warn and error lines: %s", out)
	}
}

func TestDefaultLoggerWhenBaseNil(t *testing.T) {
	log := New(nil)
	log.InfoCtx(context.Background(), "noop-check-no-panic")
}
