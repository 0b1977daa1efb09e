package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/dht_transport/src/keys"
	"github.com/danmuck/dht_transport/src/message"
)

const (
	DefaultTimeout         = 10 * time.Second
	DefaultSendConcurrency = 1
)

// Config controls a DHTTransport.
//
//	address = "http://127.0.0.1:80"
//	timeout = "10s"
//	codec = "json"           # or "proto"
//	send_concurrency = 1     # > 1 issues puts in parallel
//
//	[keys]
//	width = 0                # zero-pad ids to this many digits
//	max_length = 0           # reject longer keys; 20 for bittorrent-backed nodes
type Config struct {
	Address         string        `toml:"address"`
	Timeout         time.Duration `toml:"timeout"`
	Codec           string        `toml:"codec"`
	SendConcurrency int           `toml:"send_concurrency"`
	Keys            keys.Scheme   `toml:"keys"`

	// HTTPClient replaces the default client; Timeout is ignored when set.
	HTTPClient *http.Client `toml:"-"`
}

// DefaultConfig returns a sequential JSON transport for address.
func DefaultConfig(address string) Config {
	return Config{
		Address:         address,
		Timeout:         DefaultTimeout,
		Codec:           "json",
		SendConcurrency: DefaultSendConcurrency,
		Keys:            keys.DefaultScheme,
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are an
// error so typos do not silently fall back to defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig("")
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		names := make([]string, len(undecoded))
		for i, k := range undecoded {
			names[i] = k.String()
		}
		return cfg, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(names, ", "))
	}
	return cfg, nil
}

// Validate checks cfg and returns the normalized base URL.
func (cfg Config) Validate() (string, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.Address))
	if err != nil {
		return "", fmt.Errorf("invalid dht address %q: %w", cfg.Address, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid dht address %q: scheme must be http or https", cfg.Address)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid dht address %q: missing host", cfg.Address)
	}
	if cfg.Timeout < 0 {
		return "", fmt.Errorf("timeout %s is negative", cfg.Timeout)
	}
	if cfg.SendConcurrency < 0 {
		return "", fmt.Errorf("send_concurrency %d is negative", cfg.SendConcurrency)
	}
	if _, err := message.CoderByName(cfg.Codec); err != nil {
		return "", err
	}
	if err := cfg.Keys.Validate(); err != nil {
		return "", err
	}

	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}
