package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore 把快照存在单个 Redis key 里。
//
// 适合多实例读同一份数据的小规模部署；写仍然必须是单写者
// （本服务用进程内互斥锁保证，见 repo 包），Redis 只负责持久化。
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "shortd:snapshot"
	}
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Load(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return data, nil
}

func (r *RedisStore) Save(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	// 不设 TTL：快照就是权威数据，不是缓存。
	return r.client.Set(ctx, r.key, data, 0).Err()
}
