// Package redis persists the kolcrm state as one JSON value per bucket in Redis,
// the server-side counterpart of the browser's local storage.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kolcrm/internal/infra/persistence/memory"
	"kolcrm/pkg/domain"

	goredis "github.com/redis/go-redis/v9"
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPrefix namespaces bucket keys.
const DefaultPrefix = "kolcrm:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// kv is the slice of Redis behaviour the store relies on.
type kv interface {
	Load(ctx context.Context, keys []string) (map[string][]byte, error)
	Save(ctx context.Context, values map[string][]byte) error
	Close() error
}

// Store persists state to Redis while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	kv       kv
	prefix   string
	mu       sync.Mutex
	problems []memory.BucketError
}

// NewStore connects to Redis, verifies the connection and hydrates the
// in-memory state from the bucket keys.
func NewStore(ctx context.Context, opts Options, engine *domain.RulesEngine, memOpts ...memory.Option) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return newStore(ctx, clientKV{client: client}, opts.Prefix, engine, memOpts...)
}

func newStore(ctx context.Context, backend kv, prefix string, engine *domain.RulesEngine, memOpts ...memory.Option) (*Store, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{Store: memory.NewStore(engine, memOpts...), kv: backend, prefix: prefix}
	keys := make([]string, 0, len(memory.Buckets()))
	for _, bucket := range memory.Buckets() {
		keys = append(keys, s.key(bucket))
	}
	values, err := backend.Load(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load redis state: %w", err)
	}
	raw := make(map[string][]byte, len(values))
	for _, bucket := range memory.Buckets() {
		if payload, ok := values[s.key(bucket)]; ok {
			raw[bucket] = payload
		}
	}
	if len(raw) > 0 {
		snapshot, problems := memory.DecodeBuckets(raw)
		s.problems = problems
		s.ImportState(snapshot)
	}
	return s, nil
}

func (s *Store) key(bucket string) string { return s.prefix + bucket }

// RunInTransaction applies fn within a transaction, then writes every bucket
// to Redis atomically. A failed write returns an error wrapping domain.ErrPersistence.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, fmt.Errorf("%w: redis: %w", domain.ErrPersistence, err)
	}
	return res, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payloads, err := memory.EncodeBuckets(s.ExportState())
	if err != nil {
		return err
	}
	values := make(map[string][]byte, len(payloads))
	for bucket, payload := range payloads {
		values[s.key(bucket)] = payload
	}
	return s.kv.Save(ctx, values)
}

// LoadProblems reports buckets that were malformed at startup and loaded empty.
func (s *Store) LoadProblems() []memory.BucketError {
	return append([]memory.BucketError(nil), s.problems...)
}

// Close releases the Redis connection.
func (s *Store) Close() error { return s.kv.Close() }

type clientKV struct {
	client *goredis.Client
}

func (c clientKV) Load(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		payload, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		out[key] = payload
	}
	return out, nil
}

func (c clientKV) Save(ctx context.Context, values map[string][]byte) error {
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for key, payload := range values {
			pipe.Set(ctx, key, payload, 0)
		}
		return nil
	})
	return err
}

func (c clientKV) Close() error { return c.client.Close() }
