package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestParseEnv(t *testing.T) {
	tests := []struct {
		raw     string
		want    Env
		backend Backend
	}{
		{"", EnvDev, BackendStd},
		{"local", EnvDev, BackendStd},
		{" Staging ", EnvStage, BackendZap},
		{"production", EnvProd, BackendZap},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			req := require.New(t)
			got, err := ParseEnv(tt.raw)
			req.NoError(err)
			req.Equal(tt.want, got)
			req.Equal(tt.backend, got.DefaultBackend())
		})
	}

	_, err := ParseEnv("qa")
	require.Error(t, err)
}

func TestInit_ProcessAttrs(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	Init(Config{
		Service:    "chat-service",
		Env:        EnvStage,
		InstanceID: "chat-0",
		Attrs:      ProcessAttrs("sqlite", ":8080", ""),
		Output:     &buf,
	})
	slog.Info("ready")

	// stage without an explicit backend logs JSON through zap
	var m map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &m), "expected one JSON line, got %s", buf.String())
	req.Equal("chat-0", m["instance_id"])
	req.Equal("sqlite", m["storage"])
	req.Equal(":8080", m["http_addr"])
	req.NotContains(m, "grpc_addr")
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	Init(Config{
		Service: "chat-service",
		Version: "v0.0.1",
		Env:     EnvDev,
		Backend: BackendStd,
		Level:   slog.LevelDebug,
		Output:  &buf,
	})
	slog.Info("hello world")

	out := buf.String()
	req.False(strings.HasPrefix(out, "{"), "expected text output, got %s", out)
	req.Contains(out, "hello world")
	req.Contains(out, "service=chat-service")
	req.Contains(out, "env=dev")
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	Init(Config{
		Service:          "chat-service",
		Version:          "1.2.3",
		Env:              EnvProd,
		Backend:          BackendZap,
		Level:            slog.LevelInfo,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})
	slog.Info("booted", slog.String("k", "v"))

	var m map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &m), "expected one JSON line, got %s", buf.String())
	req.Equal("booted", m["msg"])
	req.Equal("chat-service", m["service"])
	req.Equal("prod", m["env"])
	req.Equal("1.2.3", m["version"])
	req.Equal("INFO", m["level"])
	req.Equal("v", m["k"])
}

func TestAttrsFromCtx(t *testing.T) {
	req := require.New(t)

	// Given a context without a span
	req.Nil(AttrsFromCtx(context.Background()))

	// When a valid span context is attached
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	// Then trace and span ids are exposed as attributes
	attrs := AttrsFromCtx(ctx)
	req.Len(attrs, 2)
	req.Equal("trace_id", attrs[0].Key)
	req.Equal(sc.TraceID().String(), attrs[0].Value.String())
	req.Equal("span_id", attrs[1].Key)
	req.Equal(sc.SpanID().String(), attrs[1].Value.String())
}
