package kv

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const defaultKeyPrefix = "fetchr:kv:"

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	// URL is a redis:// URL; it defaults to redis://localhost:6379.
	URL string
	// KeyPrefix is prepended to every id; it defaults to "fetchr:kv:".
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// RedisStore is a Store that keeps each value as a JSON string under its own key.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse Redis URL")
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisStore{client: client, keyPrefix: opts.KeyPrefix}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (ldvalue.Value, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+id).Bytes()
	if err == redis.Nil {
		return ldvalue.Null(), ErrNotFound
	}
	if err != nil {
		return ldvalue.Null(), errors.Wrapf(err, "failed to get item %q", id)
	}
	return ldvalue.Parse(data), nil
}

func (s *RedisStore) Put(ctx context.Context, id string, value ldvalue.Value) error {
	if err := s.client.Set(ctx, s.keyPrefix+id, value.JSONString(), 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to put item %q", id)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.keyPrefix+id).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete item %q", id)
	}
	return n > 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
