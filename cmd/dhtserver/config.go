package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/dht_transport/src/kvstore"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// serverConfig is the dhtserver TOML file:
//
//	addr = ":8080"
//	backend = "memory"           # or "redis"
//
//	[memory]
//	put_policy = "overwrite"     # or "reject"
//	snapshot_path = "local/dht.toml"
//
//	[redis]
//	url = "redis://localhost:6379/0"
//	namespace = "dht:"
//	put_policy = "reject"
type serverConfig struct {
	Addr    string               `toml:"addr"`
	Backend string               `toml:"backend"`
	Memory  kvstore.MemoryConfig `toml:"memory"`
	Redis   kvstore.RedisConfig  `toml:"redis"`

	LogConfig string `toml:"-"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:    ":8080",
		Backend: BackendMemory,
		Memory:  kvstore.MemoryConfig{Policy: kvstore.Overwrite},
		Redis:   kvstore.RedisConfig{URL: "redis://localhost:6379/0"},
	}
}

// Environment overrides, applied between the config file and the flags.
const (
	EnvAddr     = "DHT_ADDR"
	EnvStore    = "DHT_STORE"
	EnvPolicy   = "DHT_PUT_POLICY"
	EnvSnapshot = "DHT_SNAPSHOT"
	EnvRedisURL = "DHT_REDIS_URL"
)

// parseCLI layers defaults, the -config file, the DHT_* environment and
// finally any flags given explicitly.
func parseCLI(args []string, getenv func(string) string) (serverConfig, error) {
	cfg := defaultServerConfig()

	fs := flag.NewFlagSet("dhtserver", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML server config")
	addr := fs.String("addr", cfg.Addr, "HTTP listen address")
	backend := fs.String("store", cfg.Backend, "key-value backend: memory or redis")
	policy := fs.String("policy", string(kvstore.Overwrite), "duplicate key policy: overwrite or reject")
	snapshot := fs.String("snapshot", "", "memory backend TOML snapshot file")
	redisURL := fs.String("redis-url", cfg.Redis.URL, "redis backend URL")
	logConfig := fs.String("log-config", "", "smplog TOML config")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if *configPath != "" {
		md, err := toml.DecodeFile(*configPath, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("failed to decode config %s: %w", *configPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("config %s: unknown key %s", *configPath, undecoded[0])
		}
	}

	if v := getenv(EnvAddr); v != "" {
		cfg.Addr = v
	}
	if v := getenv(EnvStore); v != "" {
		cfg.Backend = v
	}
	if v := getenv(EnvPolicy); v != "" {
		cfg.Memory.Policy = kvstore.PutPolicy(v)
		cfg.Redis.Policy = kvstore.PutPolicy(v)
	}
	if v := getenv(EnvSnapshot); v != "" {
		cfg.Memory.SnapshotPath = v
	}
	if v := getenv(EnvRedisURL); v != "" {
		cfg.Redis.URL = v
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "store":
			cfg.Backend = *backend
		case "policy":
			cfg.Memory.Policy = kvstore.PutPolicy(*policy)
			cfg.Redis.Policy = kvstore.PutPolicy(*policy)
		case "snapshot":
			cfg.Memory.SnapshotPath = *snapshot
		case "redis-url":
			cfg.Redis.URL = *redisURL
		}
	})
	cfg.LogConfig = *logConfig

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend != BackendMemory && cfg.Backend != BackendRedis {
		return cfg, fmt.Errorf("unknown store %q (want %s or %s)", cfg.Backend, BackendMemory, BackendRedis)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg serverConfig) (kvstore.Store, error) {
	switch cfg.Backend {
	case BackendRedis:
		return kvstore.NewRedis(ctx, cfg.Redis)
	default:
		return kvstore.NewMemoryWithConfig(cfg.Memory)
	}
}
