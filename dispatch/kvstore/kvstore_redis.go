package kvstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

var redisKVPrefix = "ember/"

type RedisKVStore struct {
	Client *redis.Client
}

var _ KVStore = (*RedisKVStore)(nil)

func NewRedisKVStore(redisURL string) (*RedisKVStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisKVStore{
		Client: rdb,
	}, nil
}

func (s *RedisKVStore) Get(ctx context.Context, path string) (string, error) {
	val, err := s.Client.Get(ctx, redisKVPrefix+path).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", unavailable("get", path, err)
	}
	return val, nil
}

// Values never expire: cooldown records and config must survive restarts.
func (s *RedisKVStore) Set(ctx context.Context, path, val string) error {
	if err := s.Client.Set(ctx, redisKVPrefix+path, val, 0).Err(); err != nil {
		return unavailable("set", path, err)
	}
	return nil
}
