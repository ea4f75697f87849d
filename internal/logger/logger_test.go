package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("dropped")
	log.Debug("dropped")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}

	log.Warn("kept", "key", "value")
	out := buf.String()
	for _, want := range []string{`"msg":"kept"`, `"key":"value"`, `"level":"WARN"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestWithAndGroupJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	JSON(&buf, slog.LevelInfo).With(ComponentKey, "runtime").WithGroup("load").Info("done", "layers", 2)

	out := buf.String()
	if !strings.Contains(out, `"component":"runtime"`) || !strings.Contains(out, `"load":{"layers":2}`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"loud":    slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	for _, format := range []string{"", "pretty", "json", "text"} {
		var buf bytes.Buffer
		log, err := Open(format, &buf, slog.LevelInfo)
		if err != nil {
			t.Fatalf("Open(%q): %v", format, err)
		}
		log.Info("hello")
		if !strings.Contains(buf.String(), "hello") {
			t.Fatalf("Open(%q) wrote %q", format, buf.String())
		}
	}
	if _, err := Open("xml", io.Discard, slog.LevelInfo); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNopDiscards(t *testing.T) {
	t.Parallel()
	log := Nop()
	log.Error("nothing")
	log.With("a", 1).WithGroup("g").Warn("still nothing")
}

// TestSetDefault mutates process state and must not run in parallel.
func TestSetDefault(t *testing.T) {
	prev := L()
	t.Cleanup(func() { SetDefault(prev) })

	var buf bytes.Buffer
	SetDefault(JSON(&buf, slog.LevelInfo))
	L().Info("via default")
	FromContext(context.Background()).Info("via context fallback")

	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("expected two lines, got %d: %s", n, buf.String())
	}
}

func prettyLine(t *testing.T, h slog.Handler, msg string, args ...any) string {
	t.Helper()
	r := slog.NewRecord(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC), slog.LevelInfo, msg, 0)
	r.Add(args...)
	var buf bytes.Buffer
	ph := h.(*PrettyHandler)
	ph.out.w = &buf
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	return buf.String()
}

func TestPrettyFormat(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(io.Discard, nil, false)

	tests := []struct {
		name    string
		handler slog.Handler
		args    []any
		want    string
	}{
		{"bare", h, nil, "[2026-03-04 05:06:07] INFO  msg\n"},
		{"attrs", h, []any{"a", 1, "b", true}, "[2026-03-04 05:06:07] INFO  msg a=1 b=true\n"},
		{"quoted", h, []any{"path", "my model.st", "empty", ""}, `[2026-03-04 05:06:07] INFO  msg path="my model.st" empty=""` + "\n"},
		{"component", h, []any{ComponentKey, "ffi", "op", "load"}, "[2026-03-04 05:06:07] INFO  ffi: msg op=load\n"},
		{"handler-component", h.WithAttrs([]slog.Attr{slog.String(ComponentKey, "api")}), nil, "[2026-03-04 05:06:07] INFO  api: msg\n"},
		{"group", h.WithGroup("req"), []any{"id", "x"}, "[2026-03-04 05:06:07] INFO  msg req.id=x\n"},
		{"nested", h.WithGroup("a").WithGroup("b"), []any{"k", 1}, "[2026-03-04 05:06:07] INFO  msg a.b.k=1\n"},
		{"attrs-before-group", h.WithAttrs([]slog.Attr{slog.Int("n", 1)}).WithGroup("g"), []any{"k", 2}, "[2026-03-04 05:06:07] INFO  msg n=1 g.k=2\n"},
		{"group-value", h, []any{slog.Group("state", "len", 6)}, "[2026-03-04 05:06:07] INFO  msg state.len=6\n"},
		{"inline-group", h, []any{slog.Group("", "x", 1)}, "[2026-03-04 05:06:07] INFO  msg x=1\n"},
		{"component-in-group", h.WithGroup("g"), []any{ComponentKey, "c"}, "[2026-03-04 05:06:07] INFO  msg g.component=c\n"},
		{"error", h, []any{"err", errors.New("bad input")}, `[2026-03-04 05:06:07] INFO  msg err="bad input"` + "\n"},
		{"duration", h, []any{"took", 1500 * time.Millisecond}, "[2026-03-04 05:06:07] INFO  msg took=1.5s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prettyLine(t, tt.handler, "msg", tt.args...); got != tt.want {
				t.Fatalf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestPrettyEnabled(t *testing.T) {
	t.Parallel()
	var lv slog.LevelVar
	lv.Set(slog.LevelWarn)
	h := NewPrettyHandler(io.Discard, &lv, false)
	ctx := context.Background()
	if h.Enabled(ctx, slog.LevelInfo) || !h.Enabled(ctx, slog.LevelError) {
		t.Fatal("level filter not applied")
	}
	lv.Set(slog.LevelDebug)
	if !h.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("level var change not observed")
	}
}

func TestPrettyColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, slog.LevelInfo, true)).With(ComponentKey, "runtime")
	log.Error("failed", "op", "infer")

	out := buf.String()
	if !strings.Contains(out, ansi.error+ansi.bold+"ERROR") {
		t.Fatalf("level not coloured: %q", out)
	}
	if !strings.Contains(out, ansi.component+"runtime"+ansi.reset+": failed") {
		t.Fatalf("component not coloured: %q", out)
	}

	buf.Reset()
	Pretty(&buf, slog.LevelInfo).Info("plain")
	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("non-terminal writer got colour: %q", buf.String())
	}
}

func TestPrettyDerivedHandlersShareWriter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	root := New(NewPrettyHandler(&buf, slog.LevelInfo, false))
	a := root.With("a", 1)
	b := root.WithGroup("b")

	done := make(chan struct{})
	for _, l := range []Logger{a, b} {
		go func() {
			defer func() { done <- struct{}{} }()
			for range 50 {
				l.Info("line")
			}
		}()
	}
	<-done
	<-done
	if n := strings.Count(buf.String(), "\n"); n != 100 {
		t.Fatalf("expected 100 lines, got %d", n)
	}
}
