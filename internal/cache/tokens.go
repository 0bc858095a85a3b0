package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Типы одноразовых токенов; входят в ключ, чтобы verification-токен
// нельзя было предъявить как reset и наоборот.
const (
	KindVerification = "verify"
	KindReset        = "reset"
)

const (
	revokedPrefix = "auth:revoked:"
	oneTimePrefix = "auth:ott:"
)

// TokenCache — контракт кэша токенов: denylist отозванных refresh-jti
// и одноразовые verification/reset-токены.
type TokenCache interface {
	// RevokeJTI помечает jti refresh-токена отозванным до истечения его срока.
	RevokeJTI(ctx context.Context, jti string, ttl time.Duration) error
	// IsJTIRevoked проверяет jti по denylist.
	IsJTIRevoked(ctx context.Context, jti string) (bool, error)
	// PutOneTime сохраняет дайджест одноразового токена с TTL.
	PutOneTime(ctx context.Context, kind, digest string, userID uuid.UUID, ttl time.Duration) error
	// TakeOneTime атомарно забирает (и удаляет) дайджест одноразового токена.
	TakeOneTime(ctx context.Context, kind, digest string) (uuid.UUID, bool, error)
}

type redisTokenCache struct {
	rdb        *redis.Client
	cmdTimeout time.Duration
}

// NewTokenCache создаёт кэш токенов поверх готового клиента Redis.
func NewTokenCache(rdb *redis.Client, cmdTimeout time.Duration) TokenCache {
	return &redisTokenCache{rdb: rdb, cmdTimeout: cmdTimeout}
}

func (c *redisTokenCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cmdTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.cmdTimeout)
}

func (c *redisTokenCache) RevokeJTI(ctx context.Context, jti string, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if ttl <= 0 {
		// Токен уже истёк — отзывать нечего.
		return nil
	}

	return c.rdb.Set(ctx, revokedPrefix+jti, "1", ttl).Err()
}

func (c *redisTokenCache) IsJTIRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.rdb.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func oneTimeKey(kind, digest string) string {
	return oneTimePrefix + kind + ":" + digest
}

func (c *redisTokenCache) PutOneTime(ctx context.Context, kind, digest string, userID uuid.UUID, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.rdb.Set(ctx, oneTimeKey(kind, digest), userID.String(), ttl).Err()
}

func (c *redisTokenCache) TakeOneTime(ctx context.Context, kind, digest string) (uuid.UUID, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	val, err := c.rdb.GetDel(ctx, oneTimeKey(kind, digest)).Result()
	if err != nil {
		if err == redis.Nil {
			return uuid.Nil, false, nil
		}

		return uuid.Nil, false, err
	}

	uid, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, err
	}

	return uid, true, nil
}
