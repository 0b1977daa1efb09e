package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	logs "github.com/danmuck/smplog"
)

var _ Store = &Memory{}

// MemoryConfig controls a Memory store.
type MemoryConfig struct {
	Policy PutPolicy `toml:"put_policy"`
	// SnapshotPath, when set, is loaded on start and rewritten after every
	// successful Put.
	SnapshotPath string `toml:"snapshot_path"`
}

// snapshot is the on-disk TOML layout.
type snapshot struct {
	Items []Item `toml:"items"`
}

// Memory is a map-backed Store.
type Memory struct {
	config MemoryConfig
	mu     sync.RWMutex
	m      map[string]string
}

// NewMemory returns an empty overwrite-on-put store.
func NewMemory() *Memory {
	m, _ := NewMemoryWithConfig(MemoryConfig{Policy: Overwrite})
	return m
}

// NewMemoryWithConfig returns a store using cfg, loading its snapshot if one
// exists.
func NewMemoryWithConfig(cfg MemoryConfig) (*Memory, error) {
	policy, err := ParsePutPolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	m := &Memory{
		config: cfg,
		m:      make(map[string]string),
	}
	if cfg.SnapshotPath == "" {
		return m, nil
	}

	var snap snapshot
	_, err = toml.DecodeFile(cfg.SnapshotPath, &snap)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logs.Debugf("NewMemory(%s): no snapshot, starting empty", cfg.SnapshotPath)
		return m, nil
	case err != nil:
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", cfg.SnapshotPath, err)
	}

	for _, item := range snap.Items {
		m.m[item.Key] = item.Value
	}
	logs.Debugf("NewMemory(%s): loaded %d item(s)", cfg.SnapshotPath, len(m.m))
	return m, nil
}

func (m *Memory) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, existed := m.m[key]
	if existed && m.config.Policy == RejectExisting {
		return fmt.Errorf("%w: %s", ErrKeyExists, key)
	}
	m.m[key] = value

	if m.config.SnapshotPath == "" {
		return nil
	}
	if err := m.writeSnapshot(); err != nil {
		// keep memory and disk in step
		if existed {
			m.m[key] = prev
		} else {
			delete(m.m, key)
		}
		return err
	}
	return nil
}

// GetMany returns matching items sorted by key.
func (m *Memory) GetMany(ctx context.Context, prefix string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]Item, 0)
	for k, v := range m.m {
		if strings.HasPrefix(k, prefix) {
			items = append(items, Item{Key: k, Value: v})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

func (m *Memory) Close() error { return nil }

// writeSnapshot must be called with the write lock held.
func (m *Memory) writeSnapshot() error {
	snap := snapshot{Items: make([]Item, 0, len(m.m))}
	for k, v := range m.m {
		snap.Items = append(snap.Items, Item{Key: k, Value: v})
	}
	sort.Slice(snap.Items, func(i, j int) bool { return snap.Items[i].Key < snap.Items[j].Key })

	dir := filepath.Dir(m.config.SnapshotPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := toml.NewEncoder(tmp)
	encoder.Indent = "    "
	if err := encoder.Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.config.SnapshotPath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
