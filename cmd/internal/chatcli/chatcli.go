// Package chatcli holds the flag and prompt plumbing shared by the send and
// receive binaries.
package chatcli

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/dht_transport/src/transport"
	logs "github.com/danmuck/smplog"
)

// ErrClosed is returned once the input is exhausted.
var ErrClosed = errors.New("input closed")

// Options are the connection settings common to both binaries. Empty
// values are prompted for.
type Options struct {
	Address    string
	Channel    string
	User       string
	ConfigPath string
	LogConfig  string
}

// Register binds Options to fs. The user flag is only added when withUser
// is set.
func (o *Options) Register(fs *flag.FlagSet, withUser bool) {
	fs.StringVar(&o.Address, "dht-address", "", "DHT node address, e.g. http://127.0.0.1:8080")
	fs.StringVar(&o.Channel, "channel", "", "channel id")
	if withUser {
		fs.StringVar(&o.User, "user", "", "user id")
	}
	fs.StringVar(&o.ConfigPath, "config", "", "transport TOML config")
	fs.StringVar(&o.LogConfig, "log-config", "", "smplog TOML config")
}

// Reader reuses input when it is already buffered.
func Reader(input io.Reader) *bufio.Reader {
	if r, ok := input.(*bufio.Reader); ok {
		return r
	}
	return bufio.NewReader(input)
}

// Ask prints label and reads one trimmed line. A final line without a
// newline is still returned; after that Ask reports ErrClosed.
func Ask(r *bufio.Reader, label string) (string, error) {
	logs.Promptf("%s: ", label)
	line, err := r.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
		}
		if line == "" {
			return "", ErrClosed
		}
	}
	return strings.TrimSpace(line), nil
}

// Require fills *value by prompting until a non-empty answer is given.
func Require(r *bufio.Reader, value *string, label string) error {
	for *value == "" {
		answer, err := Ask(r, label)
		if err != nil {
			return err
		}
		*value = answer
	}
	return nil
}

// Complete prompts for whatever Register left empty.
func (o *Options) Complete(r *bufio.Reader, withUser bool) error {
	if o.Address == "" && o.ConfigPath != "" {
		cfg, err := transport.LoadConfig(o.ConfigPath)
		if err != nil {
			return err
		}
		o.Address = cfg.Address
	}
	if err := Require(r, &o.Address, "Enter dht_address"); err != nil {
		return err
	}
	if err := Require(r, &o.Channel, "Enter channel_id"); err != nil {
		return err
	}
	if withUser {
		return Require(r, &o.User, "Enter user_id")
	}
	return nil
}

// Dial builds a transport from the config file, if any, with Address
// taking precedence over the file's address.
func (o *Options) Dial() (*transport.DHTTransport, error) {
	cfg := transport.DefaultConfig("")
	if o.ConfigPath != "" {
		loaded, err := transport.LoadConfig(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.Address != "" {
		cfg.Address = NormalizeAddress(o.Address)
	}
	return transport.New(cfg)
}

// NormalizeAddress accepts a bare host:port, as the original test clients
// did, and assumes http.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr != "" && !strings.Contains(addr, "://") {
		return "http://" + addr
	}
	return addr
}
