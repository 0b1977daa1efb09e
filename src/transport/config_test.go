package transport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/dht_transport/src/keys"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transport.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
address = "http://dht.local:8080/"
timeout = "2s"
codec = "proto"
send_concurrency = 4

[keys]
width = 6
max_length = 64
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := Config{
		Address:         "http://dht.local:8080/",
		Timeout:         2 * time.Second,
		Codec:           "proto",
		SendConcurrency: 4,
		Keys:            keys.Scheme{Width: 6, MaxKeyLength: 64},
	}
	if cfg != want {
		t.Fatalf("LoadConfig = %+v, want %+v", cfg, want)
	}

	base, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if base != "http://dht.local:8080" {
		t.Fatalf("base URL = %q", base)
	}
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `address = "http://127.0.0.1"`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Timeout != DefaultTimeout || cfg.Codec != "json" || cfg.SendConcurrency != DefaultSendConcurrency || cfg.Keys != keys.DefaultScheme {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
address = "http://127.0.0.1"
tiemout = "1s"

[keys]
padding = 3
`))
	if err == nil {
		t.Fatal("expected error for unknown keys")
	}
	for _, name := range []string{"tiemout", "keys.padding"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q does not name %s", err, name)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		base string
		ok   bool
	}{
		{"default", DefaultConfig("http://127.0.0.1:80"), "http://127.0.0.1:80", true},
		{"https with path", DefaultConfig("https://dht.example/node/"), "https://dht.example/node", true},
		{"query dropped", DefaultConfig("http://h?x=1"), "http://h", true},
		{"no scheme", DefaultConfig("127.0.0.1:80"), "", false},
		{"ftp", DefaultConfig("ftp://h"), "", false},
		{"no host", DefaultConfig("http://"), "", false},
		{"negative timeout", Config{Address: "http://h", Timeout: -time.Second}, "", false},
		{"negative concurrency", Config{Address: "http://h", SendConcurrency: -1}, "", false},
		{"unknown codec", Config{Address: "http://h", Codec: "xml"}, "", false},
		{"bad width", Config{Address: "http://h", Keys: keys.Scheme{Width: keys.MaxWidth + 1}}, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base, err := tc.cfg.Validate()
			if tc.ok != (err == nil) {
				t.Fatalf("Validate() error = %v, want ok=%v", err, tc.ok)
			}
			if base != tc.base {
				t.Fatalf("Validate() base = %q, want %q", base, tc.base)
			}
			if _, err := New(tc.cfg); tc.ok != (err == nil) {
				t.Fatalf("New() error = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}
