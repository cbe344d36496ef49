package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/farmbot/core/logger"
	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 3 * time.Second

// Redis keeps processed update ids in Redis so restarts and replicas share them.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedis builds a Redis-backed ledger and checks connectivity.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("ledger: redis addr is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "farmbot"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ledger: redis ping: %w", err)
	}
	logger.Info(ctx, logger.CompLedger, "ledger.ready",
		slog.String("backend", "redis"),
		slog.Duration("ttl", opts.TTL),
	)
	return &Redis{client: client, prefix: prefix, ttl: opts.TTL}, nil
}

func (r *Redis) key(updateID int) string {
	return r.prefix + ":update:" + strconv.Itoa(updateID)
}

// Seen reports whether updateID was marked within the ttl.
func (r *Redis) Seen(ctx context.Context, updateID int) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	n, err := r.client.Exists(opCtx, r.key(updateID)).Result()
	if err != nil {
		return false, fmt.Errorf("ledger: exists: %w", err)
	}
	return n > 0, nil
}

// Mark records updateID as processed. Marking twice keeps the first expiry.
func (r *Redis) Mark(ctx context.Context, updateID int) error {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := r.client.SetNX(opCtx, r.key(updateID), "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("ledger: setnx: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
