// Package redis implements storage.KeyValueStore over Redis, for
// deployments that run the gateway as more than one process and need the
// Caching interceptor and MCP tool-discovery cache to share state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vllora/gateway/storage"
)

// Options configures Store's connection to a single node or a cluster.
type Options struct {
	// Addrs is one address for a single node, or more than one for cluster
	// mode.
	Addrs    []string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyPrefix namespaces every key this store touches, so one Redis
	// instance can back multiple gateway deployments.
	KeyPrefix string
}

func (o *Options) withDefaults() *Options {
	out := *o
	if len(out.Addrs) == 0 {
		out.Addrs = []string{"localhost:6379"}
	}
	if out.PoolSize == 0 {
		out.PoolSize = 10
	}
	if out.MinIdleConns == 0 {
		out.MinIdleConns = 5
	}
	if out.DialTimeout == 0 {
		out.DialTimeout = 5 * time.Second
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = 3 * time.Second
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = 3 * time.Second
	}
	if out.KeyPrefix == "" {
		out.KeyPrefix = "vllora-gateway"
	}
	return &out
}

// Store implements storage.KeyValueStore over a redis.UniversalClient,
// which transparently covers both single-node and cluster deployments.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Open connects to Redis per opts and verifies the connection with a Ping.
func Open(ctx context.Context, opts Options) (*Store, error) {
	o := opts.withDefaults()

	var client redis.UniversalClient
	if len(o.Addrs) == 1 {
		client = redis.NewClient(&redis.Options{
			Addr:         o.Addrs[0],
			Password:     o.Password,
			DB:           o.DB,
			PoolSize:     o.PoolSize,
			MinIdleConns: o.MinIdleConns,
			DialTimeout:  o.DialTimeout,
			ReadTimeout:  o.ReadTimeout,
			WriteTimeout: o.WriteTimeout,
		})
	} else {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        o.Addrs,
			Password:     o.Password,
			PoolSize:     o.PoolSize,
			MinIdleConns: o.MinIdleConns,
			DialTimeout:  o.DialTimeout,
			ReadTimeout:  o.ReadTimeout,
			WriteTimeout: o.WriteTimeout,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client, prefix: o.KeyPrefix}, nil
}

var _ storage.KeyValueStore = (*Store)(nil)

func (s *Store) key(k string) string {
	return s.prefix + ":" + k
}

// Get implements storage.KeyValueStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Set implements storage.KeyValueStore. A zero ttl stores the value
// without expiration, matching Redis's own SET semantics.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements storage.KeyValueStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close releases the underlying client's connections.
func (s *Store) Close() error {
	return s.client.Close()
}
