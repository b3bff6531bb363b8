// Package redis provides a Store on Redis, for deployments where several
// processes share one user's entitlement state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/store"
)

var (
	_ store.Store             = (*Store)(nil)
	_ store.CompareAndSwapper = (*Store)(nil)
)

var errMismatch = errors.New("value changed")

// Options configures the Redis connection.
type Options struct {
	Addr        string        `json:"addr" yaml:"addr"`
	Username    string        `json:"username" yaml:"username"`
	Password    string        `json:"password" yaml:"password"`
	DB          int           `json:"db" yaml:"db"`
	MaxRetries  int           `json:"max_retries" yaml:"max_retries"`
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	// Prefix is prepended to every key, e.g. "user:42:".
	Prefix string `json:"prefix" yaml:"prefix"`
}

// Store implements store.Store on a go-redis client.
type Store struct {
	client *goredis.Client
	prefix string
}

// Open dials Redis and pings it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   opts.MaxRetries,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("entitle/redis: ping %s: %w", opts.Addr, err)
	}
	return &Store{client: client, prefix: opts.Prefix}, nil
}

// New wraps an existing client.
func New(client *goredis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Client returns the underlying client.
func (s *Store) Client() *goredis.Client { return s.client }

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("entitle/redis: get %s: %w", key, err)
	}
	return v, true, nil
}

// Set implements store.Store. Values never expire; the usage record resets
// by overwrite.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("entitle/redis: set %s: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements store.CompareAndSwapper with WATCH/MULTI.
func (s *Store) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	k := s.prefix + key
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, k).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if cur != old {
			return errMismatch
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, k, value, 0)
			return nil
		})
		return err
	}, k)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errMismatch), errors.Is(err, goredis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("entitle/redis: compare-and-swap %s: %w: %w", key, entitle.ErrTransactionFailed, err)
	}
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.client.Close()
}
