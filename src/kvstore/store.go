// Package kvstore holds the key-value backends served by the development
// DHT API. Production deployments talk to a real DHT instead; these exist
// so the channel transport can run end to end without one.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrKeyExists is returned by Put when the store keeps first writes.
var ErrKeyExists = errors.New("key already exists")

// Item is one key-value pair as exchanged over the DHT API.
type Item struct {
	Key   string `json:"key" toml:"key"`
	Value string `json:"value" toml:"value"`
}

// Store is the two-operation surface of the DHT.
type Store interface {
	// Put writes value under key.
	Put(ctx context.Context, key, value string) error
	// GetMany returns every item whose key starts with prefix.
	GetMany(ctx context.Context, prefix string) ([]Item, error)
	Close() error
}

// PutPolicy decides what happens when a key is written twice.
type PutPolicy string

const (
	// Overwrite keeps the most recent write.
	Overwrite PutPolicy = "overwrite"
	// RejectExisting keeps the first write and fails later ones with
	// ErrKeyExists, as the bittorrent-backed DHT nodes do.
	RejectExisting PutPolicy = "reject"
)

// ParsePutPolicy accepts the names used in config files and flags.
func ParsePutPolicy(s string) (PutPolicy, error) {
	switch PutPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Overwrite:
		return Overwrite, nil
	case RejectExisting, "reject-existing", "first-write-wins":
		return RejectExisting, nil
	default:
		return "", fmt.Errorf("unknown put policy %q", s)
	}
}
