package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		l, err := New(in)
		if err != nil {
			t.Fatalf("New(%q): %v", in, err)
		}
		if !l.Core().Enabled(want) || (want > zapcore.DebugLevel && l.Core().Enabled(want-1)) {
			t.Fatalf("New(%q): expected level %s", in, want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	fallback := zap.NewNop()
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatal("expected fallback logger")
	}

	l := zap.NewExample()
	ctx := WithContext(context.Background(), l)
	if got := FromContext(ctx, fallback); got != l {
		t.Fatal("expected logger from context")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("abcd1234"); got != "ab******" {
		t.Fatalf("unexpected redaction %q", got)
	}
	if got := Redact("a"); got != "**" {
		t.Fatalf("unexpected redaction %q", got)
	}
}
