package logger

import (
	"fmt"
	"strings"
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

// ParseEnv normalises the deployment env from config. Empty means dev.
func ParseEnv(raw string) (Env, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "dev", "development", "local":
		return EnvDev, nil
	case "stage", "staging", "preprod":
		return EnvStage, nil
	case "prod", "production":
		return EnvProd, nil
	default:
		return "", fmt.Errorf("unknown env %q (want dev|stage|prod)", raw)
	}
}

// DefaultBackend is zap everywhere but dev.
func (e Env) DefaultBackend() Backend {
	if e == EnvDev {
		return BackendStd
	}
	return BackendZap
}
