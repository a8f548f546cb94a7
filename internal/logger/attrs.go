package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// instanceID prefers the configured id (pod name in k8s) over hostname+uuid.
func instanceID(v string) string {
	if v != "" {
		return v
	}
	hn, _ := os.Hostname()
	return hn + "-" + uuid.NewString()[:8]
}

func commonAttrs(cfg Config) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
	return append(attrs, cfg.Attrs...)
}

// ProcessAttrs describes how this chat node is wired: storage driver and
// listen addresses. Empty values are skipped.
func ProcessAttrs(storage, httpAddr, grpcAddr string) []slog.Attr {
	var attrs []slog.Attr
	for _, kv := range [][2]string{{"storage", storage}, {"http_addr", httpAddr}, {"grpc_addr", grpcAddr}} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	return attrs
}
