package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore хранит состояния в Redis, чтобы они переживали перезапуск
type RedisStore struct {
	client *redis.Client
}

// RedisOptions параметры подключения
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func stateKey(userID int64) string {
	return fmt.Sprintf("loyalty:state:%d", userID)
}

func historyKey(userID int64) string {
	return fmt.Sprintf("loyalty:history:%d", userID)
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (string, error) {
	value, err := r.client.Get(ctx, stateKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return value, err
}

func (r *RedisStore) Set(ctx context.Context, userID int64, state string, ttl time.Duration) error {
	return r.client.Set(ctx, stateKey(userID), state, ttl).Err()
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, stateKey(userID)).Err()
}

func (r *RedisStore) AppendHistory(ctx context.Context, userID int64, ex Exchange, limit int) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return err
	}

	key := historyKey(userID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if limit > 0 {
		pipe.LTrim(ctx, key, int64(-limit), -1)
	}
	pipe.Expire(ctx, key, historyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) History(ctx context.Context, userID int64, limit int) ([]Exchange, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := r.client.LRange(ctx, historyKey(userID), start, -1).Result()
	if err != nil {
		return nil, err
	}

	items := make([]Exchange, 0, len(raw))
	for _, s := range raw {
		var ex Exchange
		if err := json.Unmarshal([]byte(s), &ex); err != nil {
			continue
		}
		items = append(items, ex)
	}
	return items, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
