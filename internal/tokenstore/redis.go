package tokenstore

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/saudemunicipal/console/internal/auth"
)

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore guarda o token em uma chave do Redis, compartilhada entre
// instâncias do console.
type RedisStore struct {
	redis redisCommander
	key   string
	now   func() time.Time
}

// NewRedisStore cria store usando o cliente e a chave informados.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{redis: client, key: key, now: time.Now}
}

func (r *RedisStore) Get(ctx context.Context) string {
	val, err := r.redis.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		log.Warn().Err(err).Str("key", r.key).Msg("tokenstore: falha ao ler redis")
		return ""
	}
	return val
}

// Set grava o token; quando é um JWT com exp, a chave expira junto.
func (r *RedisStore) Set(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}

	var ttl time.Duration
	if info, err := auth.Inspect(strings.TrimSpace(token)); err == nil && info.HasExpiry() {
		ttl = info.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			ttl = time.Second
		}
	}

	return r.redis.Set(ctx, r.key, token, ttl).Err()
}

func (r *RedisStore) Clear(ctx context.Context) {
	if err := r.redis.Del(ctx, r.key).Err(); err != nil && err != redis.Nil {
		log.Warn().Err(err).Str("key", r.key).Msg("tokenstore: falha ao remover chave")
	}
}
