package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Floor reports the highest number already issued for a key. Counters call it
// when they create the key, so a fresh counter never reissues a stored number.
type Floor func(ctx context.Context) (int64, error)

// SequenceRepository hands out increasing counters per key.
type SequenceRepository interface {
	Next(ctx context.Context, key string, ttl time.Duration, floor Floor) (int64, error)
}

func floorValue(ctx context.Context, floor Floor) (int64, error) {
	if floor == nil {
		return 0, nil
	}
	n, err := floor(ctx)
	if err != nil {
		return 0, fmt.Errorf("sequence floor: %w", err)
	}
	return n, nil
}

type redisSequenceRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisSequenceRepository stores counters in Redis under prefix.
func NewRedisSequenceRepository(client *redis.Client, prefix string) SequenceRepository {
	return &redisSequenceRepository{client: client, prefix: prefix}
}

// Next increments key. The TTL is set on first use so day keys clean themselves up.
func (r *redisSequenceRepository) Next(ctx context.Context, key string, ttl time.Duration, floor Floor) (int64, error) {
	fullKey := r.prefix + key
	if floor != nil {
		exists, err := r.client.Exists(ctx, fullKey).Result()
		if err != nil {
			return 0, fmt.Errorf("redis exists %s: %w", fullKey, err)
		}
		if exists == 0 {
			n, err := floorValue(ctx, floor)
			if err != nil {
				return 0, err
			}
			if err := r.client.SetNX(ctx, fullKey, n, ttl).Err(); err != nil {
				return 0, fmt.Errorf("redis setnx %s: %w", fullKey, err)
			}
		}
	}

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	if ttl > 0 {
		pipe.ExpireNX(ctx, fullKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", fullKey, err)
	}
	return incr.Val(), nil
}

type postgresSequenceRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSequenceRepository keeps counters in the number_sequences table.
// The ttl argument is ignored; there is one small row per day or year.
func NewPostgresSequenceRepository(pool *pgxpool.Pool) SequenceRepository {
	return &postgresSequenceRepository{pool: pool}
}

func (r *postgresSequenceRepository) Next(ctx context.Context, key string, _ time.Duration, floor Floor) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`UPDATE number_sequences SET value = value + 1 WHERE key = $1 RETURNING value`, key).Scan(&n)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("next sequence %s: %w", key, err)
	}

	start, err := floorValue(ctx, floor)
	if err != nil {
		return 0, err
	}
	const upsert = `
        INSERT INTO number_sequences (key, value) VALUES ($1, $2::bigint + 1)
        ON CONFLICT (key) DO UPDATE SET value = GREATEST(number_sequences.value, $2::bigint) + 1
        RETURNING value`
	if err := r.pool.QueryRow(ctx, upsert, key, start).Scan(&n); err != nil {
		return 0, fmt.Errorf("create sequence %s: %w", key, err)
	}
	return n, nil
}

type memorySequenceRepository struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemorySequenceRepository keeps counters in process memory.
func NewMemorySequenceRepository() SequenceRepository {
	return &memorySequenceRepository{counters: make(map[string]int64)}
}

func (r *memorySequenceRepository) Next(ctx context.Context, key string, _ time.Duration, floor Floor) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counters[key]; !ok {
		n, err := floorValue(ctx, floor)
		if err != nil {
			return 0, err
		}
		r.counters[key] = n
	}
	r.counters[key]++
	return r.counters[key], nil
}
