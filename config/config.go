package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/cwrk-planet/chat-service/internal/logger"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr         string        `yaml:"addr" env:"CHAT_GRPC_ADDR"`
	UnaryTimeout time.Duration `yaml:"unaryTimeout" env:"CHAT_GRPC_UNARY_TIMEOUT"`
}

type HTTP struct {
	Addr           string        `yaml:"addr" env:"CHAT_HTTP_ADDR"`
	ReadTimeout    time.Duration `yaml:"readTimeout" env:"CHAT_HTTP_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" env:"CHAT_HTTP_WRITE_TIMEOUT"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" env:"CHAT_HTTP_IDLE_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"requestTimeout" env:"CHAT_HTTP_REQUEST_TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowedOrigins" env:"CHAT_HTTP_ALLOWED_ORIGINS" envSeparator:","`
}

type Logging struct {
	Env        string `yaml:"env" env:"APP_ENV"`                 // dev|stage|prod
	Service    string `yaml:"service" env:"CHAT_LOG_SERVICE"`    // chat-service
	Version    string `yaml:"version" env:"CHAT_VERSION"`        // v0.1.0
	InstanceID string `yaml:"instanceId" env:"CHAT_INSTANCE_ID"` // pod name; hostname+uuid when empty
	Backend    string `yaml:"backend" env:"CHAT_LOG_BACKEND"`    // std|zap; zap outside dev when empty
	AddSource  bool   `yaml:"addSource" env:"CHAT_LOG_SOURCE"`   // false|true
	Debug      bool   `yaml:"debug" env:"CHAT_LOG_DEBUG"`        // false|true
}

type Storage struct {
	Driver string `yaml:"driver" env:"CHAT_STORAGE_DRIVER"` // postgres|sqlite
}

type Postgres struct {
	DSN             string        `yaml:"dsn" env:"CHAT_POSTGRES_DSN"`
	MaxConns        int32         `yaml:"maxConns" env:"CHAT_POSTGRES_MAX_CONNS"`
	MinConns        int32         `yaml:"minConns" env:"CHAT_POSTGRES_MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" env:"CHAT_POSTGRES_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime" env:"CHAT_POSTGRES_MAX_CONN_IDLE_TIME"`
	ApplicationName string        `yaml:"applicationName" env:"CHAT_POSTGRES_APPLICATION_NAME"`
}

type SQLite struct {
	Path string `yaml:"path" env:"CHAT_SQLITE_PATH"`
}

type Auth struct {
	PublicKeyPath string        `yaml:"publicKeyPath" env:"CHAT_AUTH_PUBLIC_KEY"`
	Issuer        string        `yaml:"issuer" env:"CHAT_AUTH_ISSUER"`
	Audience      string        `yaml:"audience" env:"CHAT_AUTH_AUDIENCE"`
	ClockSkew     time.Duration `yaml:"clockSkew" env:"CHAT_AUTH_CLOCK_SKEW"`
}

type Chat struct {
	MaxMessageLength int           `yaml:"maxMessageLength" env:"CHAT_MAX_MESSAGE_LENGTH"`
	DefaultPageSize  int           `yaml:"defaultPageSize" env:"CHAT_DEFAULT_PAGE_SIZE"`
	MaxPageSize      int           `yaml:"maxPageSize" env:"CHAT_MAX_PAGE_SIZE"`
	SendQueueSize    int           `yaml:"sendQueueSize" env:"CHAT_SEND_QUEUE_SIZE"`
	PingInterval     time.Duration `yaml:"pingInterval" env:"CHAT_PING_INTERVAL"`
	WriteTimeout     time.Duration `yaml:"writeTimeout" env:"CHAT_WRITE_TIMEOUT"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Storage  Storage  `yaml:"storage"`
	Postgres Postgres `yaml:"postgres"`
	SQLite   SQLite   `yaml:"sqlite"`
	Auth     Auth     `yaml:"auth"`
	Chat     Chat     `yaml:"chat"`
}

const defaultPath = "./config/config.yaml"

// LoadConfig reads CONFIG_PATH (or ./config/config.yaml) and applies CHAT_*
// environment overrides. Without CONFIG_PATH a missing default file is not an error.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = defaultPath
	}
	cfg, err := Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return Load("")
	}
	return cfg, err
}

// Load reads the YAML file at path (skipped when empty), then the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.Auth.PublicKeyPath == "" {
		return errors.New("auth.publicKeyPath is required")
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			c.SQLite.Path = "chat.db"
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}

	// defaults
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
	}
	logEnv, err := logger.ParseEnv(c.Logging.Env)
	if err != nil {
		return fmt.Errorf("logging.env: %w", err)
	}
	c.Logging.Env = string(logEnv)
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	switch logger.Backend(c.Logging.Backend) {
	case "", logger.BackendStd, logger.BackendZap:
	default:
		return fmt.Errorf("logging.backend %q is not supported", c.Logging.Backend)
	}
	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.WriteTimeout = durationOr(c.HTTP.WriteTimeout, 15*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	c.HTTP.RequestTimeout = durationOr(c.HTTP.RequestTimeout, 30*time.Second)
	c.GRPC.UnaryTimeout = durationOr(c.GRPC.UnaryTimeout, 10*time.Second)
	c.Auth.ClockSkew = durationOr(c.Auth.ClockSkew, 30*time.Second)
	c.Chat.PingInterval = durationOr(c.Chat.PingInterval, 15*time.Second)
	c.Chat.WriteTimeout = durationOr(c.Chat.WriteTimeout, 5*time.Second)
	if c.Chat.SendQueueSize <= 0 {
		c.Chat.SendQueueSize = 64
	}
	return nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
