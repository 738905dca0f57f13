package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"

	"nfviz.dev/core/journal"
)

type Server struct {
	ListenAddr string `env:"LISTEN_ADDR, default=127.0.0.1:6580"`
	Dev        bool   `env:"DEV, default=false"`
}

type Backend struct {
	URL          string        `env:"URL, default=http://localhost:5000"`
	ReadyTimeout time.Duration `env:"READY_TIMEOUT, default=30s"`
}

type Poll struct {
	Interval time.Duration `env:"INTERVAL, default=5s"`
}

type Registry struct {
	// optional YAML definition; the built-in pipeline is used when empty
	Path string `env:"PATH"`
}

type Journal struct {
	Provider   string `env:"PROVIDER, default=memory"`
	SQLitePath string `env:"SQLITE_PATH, default=nfviz.db"`
	RedisAddr  string `env:"REDIS_ADDR, default=localhost:6379"`
	RedisKey   string `env:"REDIS_KEY, default=nfviz:changes"`
}

func (j Journal) Config() journal.Config {
	return journal.Config{
		Provider:   j.Provider,
		SQLitePath: j.SQLitePath,
		RedisAddr:  j.RedisAddr,
		RedisKey:   j.RedisKey,
	}
}

type Telemetry struct {
	Enabled bool `env:"ENABLED, default=false"`
}

type Posthog struct {
	ApiKey   string `env:"API_KEY"`
	Endpoint string `env:"ENDPOINT, default=https://eu.i.posthog.com"`
}

type Log struct {
	Level string `env:"LEVEL, default=info"`
}

type Config struct {
	Server    Server    `env:",prefix=NFVIZ_SERVER_"`
	Backend   Backend   `env:",prefix=NFVIZ_BACKEND_"`
	Poll      Poll      `env:",prefix=NFVIZ_POLL_"`
	Registry  Registry  `env:",prefix=NFVIZ_REGISTRY_"`
	Journal   Journal   `env:",prefix=NFVIZ_JOURNAL_"`
	Telemetry Telemetry `env:",prefix=NFVIZ_TELEMETRY_"`
	Posthog   Posthog   `env:",prefix=NFVIZ_POSTHOG_"`
	Log       Log       `env:",prefix=NFVIZ_LOG_"`
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	err := envconfig.Process(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFrom is Load with an explicit lookuper, for tests.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	})
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
