package kvstore

import (
	"context"
	"fmt"
	"strings"

	logs "github.com/danmuck/smplog"
	"github.com/redis/go-redis/v9"
)

var _ Store = &Redis{}

const (
	defaultRedisNamespace = "dht:"
	scanBatch             = 256
)

// RedisConfig controls a Redis store.
type RedisConfig struct {
	URL       string    `toml:"url"`
	Namespace string    `toml:"namespace"` // prepended to every key, default "dht:"
	Policy    PutPolicy `toml:"put_policy"`
}

// Redis keeps items as plain string keys under a namespace. GetMany walks
// the namespace with SCAN, so results arrive in Redis' iteration order.
type Redis struct {
	client    *redis.Client
	namespace string
	policy    PutPolicy
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	policy, err := ParsePutPolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.Addr, err)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = defaultRedisNamespace
	}
	logs.Debugf("NewRedis(%s): namespace %q, policy %s", opts.Addr, ns, policy)
	return &Redis{client: client, namespace: ns, policy: policy}, nil
}

func (s *Redis) Put(ctx context.Context, key, value string) error {
	if s.policy == RejectExisting {
		ok, err := s.client.SetNX(ctx, s.namespace+key, value, 0).Result()
		if err != nil {
			return fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrKeyExists, key)
		}
		return nil
	}

	if err := s.client.Set(ctx, s.namespace+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Redis) GetMany(ctx context.Context, prefix string) ([]Item, error) {
	pattern := escapeGlob(s.namespace+prefix) + "*"

	var names []string
	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	seen := make(map[string]struct{})
	for iter.Next(ctx) {
		// SCAN may repeat keys across cursor steps
		if _, dup := seen[iter.Val()]; dup {
			continue
		}
		seen[iter.Val()] = struct{}{}
		names = append(names, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", prefix, err)
	}

	items := make([]Item, 0, len(names))
	for start := 0; start < len(names); start += scanBatch {
		end := min(start+scanBatch, len(names))
		values, err := s.client.MGet(ctx, names[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget: %w", err)
		}
		for i, v := range values {
			str, ok := v.(string)
			if !ok {
				// deleted between SCAN and MGET
				continue
			}
			items = append(items, Item{
				Key:   strings.TrimPrefix(names[start+i], s.namespace),
				Value: str,
			})
		}
	}
	return items, nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
