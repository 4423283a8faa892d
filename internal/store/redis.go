package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a Store backed by Redis. Each collection keeps a set index of its
// keys; updates use WATCH/MULTI and retry when the watched key changes.
type Redis struct {
	rdb        *goredis.Client
	logger     *zap.Logger
	namespace  string
	maxRetries int
	backoff    time.Duration
}

var _ Store = (*Redis)(nil)

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	Namespace  string
	MaxRetries int
	Backoff    time.Duration
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address required")
	}
	if opts.Namespace == "" {
		opts.Namespace = "coachd"
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{
		rdb:        rdb,
		logger:     logger,
		namespace:  opts.Namespace,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
	}, nil
}

func (r *Redis) docKey(collection, key string) string {
	return r.namespace + ":doc:" + collection + ":" + key
}

func (r *Redis) indexKey(collection string) string {
	return r.namespace + ":idx:" + collection
}

func (r *Redis) Get(ctx context.Context, collection, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, r.docKey(collection, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return v, nil
}

func (r *Redis) Put(ctx context.Context, collection, key string, value []byte) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.docKey(collection, key), value, 0)
		pipe.SAdd(ctx, r.indexKey(collection), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, key, err)
	}
	return nil
}

func (r *Redis) Update(ctx context.Context, collection, key string, fn UpdateFunc) error {
	docKey := r.docKey(collection, key)

	txf := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, docKey).Bytes()
		exists := true
		if errors.Is(err, goredis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}

		next, err := fn(current, exists)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, docKey, next, 0)
			pipe.SAdd(ctx, r.indexKey(collection), key)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.rdb.Watch(ctx, txf, docKey)
		switch {
		case err == nil, errors.Is(err, ErrSkip):
			return nil
		case errors.Is(err, goredis.TxFailedErr):
			r.logger.Debug("redis update conflict, retrying",
				zap.String("collection", collection),
				zap.String("key", key),
				zap.Int("attempt", attempt+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff * time.Duration(attempt+1)):
			}
		default:
			return err
		}
	}
	return fmt.Errorf("update %s/%s: %w", collection, key, ErrConflict)
}

func (r *Redis) List(ctx context.Context, collection, prefix string) ([][]byte, error) {
	members, err := r.rdb.SMembers(ctx, r.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		if strings.HasPrefix(m, prefix) {
			keys = append(keys, m)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	docKeys := make([]string, len(keys))
	for i, k := range keys {
		docKeys[i] = r.docKey(collection, k)
	}
	vals, err := r.rdb.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, []byte(s))
		}
	}
	return out, nil
}

func (r *Redis) Delete(ctx context.Context, collection, key string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, r.docKey(collection, key))
		pipe.SRem(ctx, r.indexKey(collection), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
