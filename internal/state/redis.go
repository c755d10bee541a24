package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"rezme/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "rezme:state:"
	stateField = "__state"
)

// NewRedisClient создает клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// RedisStore хранит состояние пользователя в hash rezme:state:<id>.
// Шаг лежит в служебном поле __state, собранные ответы - в остальных полях.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore: ttl <= 0 - ключи живут без срока.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) write(ctx context.Context, userID int64, values map[string]any) error {
	k := key(userID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, values)
		if r.ttl > 0 {
			pipe.Expire(ctx, k, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write state %d: %w", userID, err)
	}
	return nil
}

func (r *RedisStore) SetState(ctx context.Context, userID int64, tag string) error {
	return r.write(ctx, userID, map[string]any{stateField: tag})
}

func (r *RedisStore) GetState(ctx context.Context, userID int64) (string, error) {
	tag, err := r.client.HGet(ctx, key(userID), stateField).Result()
	if errors.Is(err, redis.Nil) {
		return None, nil
	}
	if err != nil {
		return None, fmt.Errorf("redis get state %d: %w", userID, err)
	}
	return tag, nil
}

func (r *RedisStore) UpdateFields(ctx context.Context, userID int64, fields map[string]string) error {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == stateField {
			continue
		}
		values[k] = v
	}
	if len(values) == 0 {
		return nil
	}
	return r.write(ctx, userID, values)
}

func (r *RedisStore) GetFields(ctx context.Context, userID int64) (map[string]string, error) {
	all, err := r.client.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get fields %d: %w", userID, err)
	}
	delete(all, stateField)
	return all, nil
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("redis clear state %d: %w", userID, err)
	}
	return nil
}
