package chatcli

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAsk(t *testing.T) {
	r := Reader(strings.NewReader("  first \nsecond"))

	for _, want := range []string{"first", "second"} {
		got, err := Ask(r, "Type text")
		if err != nil {
			t.Fatalf("Ask failed: %v", err)
		}
		if got != want {
			t.Fatalf("Ask = %q, want %q", got, want)
		}
	}
	if _, err := Ask(r, "Type text"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Ask at EOF = %v, want ErrClosed", err)
	}
}

func TestCompletePromptsForMissingValues(t *testing.T) {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	var opts Options
	opts.Register(fs, true)
	if err := fs.Parse([]string{"-channel", "lobby"}); err != nil {
		t.Fatal(err)
	}

	// blank answers are asked again
	r := Reader(strings.NewReader("\n127.0.0.1:8080\nnnv-nick\n"))
	if err := opts.Complete(r, true); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if opts.Address != "127.0.0.1:8080" || opts.Channel != "lobby" || opts.User != "nnv-nick" {
		t.Fatalf("Complete = %+v", opts)
	}

	tr, err := opts.Dial()
	if err != nil || tr == nil {
		t.Fatalf("Dial failed: %v", err)
	}
}

func TestCompleteUsesConfigAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transport.toml")
	if err := os.WriteFile(path, []byte("address = \"http://dht:80\"\ncodec = \"proto\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := Options{ConfigPath: path}
	if err := opts.Complete(Reader(strings.NewReader("general\n")), false); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if opts.Address != "http://dht:80" || opts.Channel != "general" {
		t.Fatalf("Complete = %+v", opts)
	}
}

func TestCompleteStopsAtEOF(t *testing.T) {
	var opts Options
	if err := opts.Complete(Reader(strings.NewReader("")), false); !errors.Is(err, ErrClosed) {
		t.Fatalf("Complete = %v, want ErrClosed", err)
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:80":         "http://127.0.0.1:80",
		" localhost:5000 ":     "http://localhost:5000",
		"https://dht.example":  "https://dht.example",
		"http://127.0.0.1:80/": "http://127.0.0.1:80/",
		"":                     "",
	}
	for in, want := range tests {
		if got := NormalizeAddress(in); got != want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
