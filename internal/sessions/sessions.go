// sessions реализует серверный учёт активных сессий пользователей
// поверх Redis: хэш на сессию плюс множество сессий пользователя.
//
// Оба ключа живут не дольше refresh-токена (TTL задаёт вызывающая сторона),
// поэтому протухшие записи исчезают без фоновой очистки. Запись двух ключей
// не транзакционна по отношению к конкурентному invalidate: возможная
// «висящая» запись в множестве самоизлечивается по TTL — валидность сессии
// определяет существование хэша, а не членство в множестве.
package sessions

import (
	"context"
	"strconv"
	"time"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix = "sess:"
	userSetPrefix = "user_sessions:"
)

// Store — контракт хранилища сессий.
type Store interface {
	// Create регистрирует сессию и добавляет её в множество сессий пользователя.
	Create(ctx context.Context, session *models.Session, ttl time.Duration) error
	// Get возвращает сессию и признак её наличия.
	Get(ctx context.Context, token string) (*models.Session, bool, error)
	// Invalidate удаляет сессию; отсутствующая сессия — silent no-op.
	Invalidate(ctx context.Context, token string) error
	// InvalidateAll удаляет все сессии пользователя.
	InvalidateAll(ctx context.Context, userID uuid.UUID) error
	// List возвращает активные сессии пользователя.
	List(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
}

type redisStore struct {
	rdb        *redis.Client
	cmdTimeout time.Duration
}

// NewRedisStore создаёт хранилище сессий поверх готового клиента Redis.
// cmdTimeout ограничивает каждую команду к store; значение <=0 отключает лимит.
func NewRedisStore(rdb *redis.Client, cmdTimeout time.Duration) Store {
	return &redisStore{rdb: rdb, cmdTimeout: cmdTimeout}
}

func (s *redisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cmdTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, s.cmdTimeout)
}

func sessionKey(token string) string { return sessionPrefix + token }

func userSetKey(userID uuid.UUID) string { return userSetPrefix + userID.String() }

// Храним сессию как Redis Hash с полями: uid, dev, iat (unix).
func (s *redisStore) Create(ctx context.Context, session *models.Session, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	kv := map[string]string{
		"uid": session.UserID.String(),
		"dev": session.DeviceInfo,
		"iat": strconv.FormatInt(session.CreatedAt.Unix(), 10),
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, sessionKey(session.Token), kv)
	pipe.Expire(ctx, sessionKey(session.Token), ttl)
	pipe.SAdd(ctx, userSetKey(session.UserID), session.Token)
	pipe.Expire(ctx, userSetKey(session.UserID), ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Get(ctx context.Context, token string) (*models.Session, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	m, err := s.rdb.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return nil, false, err
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	session, err := sessionFromHash(token, m)
	if err != nil {
		return nil, false, err
	}

	return session, true, nil
}

func (s *redisStore) Invalidate(ctx context.Context, token string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// Сначала узнаём владельца, чтобы убрать токен из его множества.
	uid, err := s.rdb.HGet(ctx, sessionKey(token), "uid").Result()
	if err != nil {
		if err == redis.Nil {
			// Сессии уже нет — идемпотентный no-op.
			return nil
		}

		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, userSetPrefix+uid, token)
	pipe.Del(ctx, sessionKey(token))

	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) InvalidateAll(ctx context.Context, userID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tokens, err := s.rdb.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, token := range tokens {
		pipe.Del(ctx, sessionKey(token))
	}
	pipe.Del(ctx, userSetKey(userID))

	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) List(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tokens, err := s.rdb.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.Session, 0, len(tokens))
	for _, token := range tokens {
		m, err := s.rdb.HGetAll(ctx, sessionKey(token)).Result()
		if err != nil {
			return nil, err
		}

		if len(m) == 0 {
			// Хэш истёк раньше множества — пропускаем висящую запись.
			continue
		}

		session, err := sessionFromHash(token, m)
		if err != nil {
			return nil, err
		}

		out = append(out, *session)
	}

	return out, nil
}

func sessionFromHash(token string, m map[string]string) (*models.Session, error) {
	uid, err := uuid.Parse(m["uid"])
	if err != nil {
		return nil, err
	}

	iatUnix, err := strconv.ParseInt(m["iat"], 10, 64)
	if err != nil {
		return nil, err
	}

	return &models.Session{
		Token:      token,
		UserID:     uid,
		DeviceInfo: m["dev"],
		CreatedAt:  time.Unix(iatUnix, 0).UTC(),
		IsActive:   true,
	}, nil
}
