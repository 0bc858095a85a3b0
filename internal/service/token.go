package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/models"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/pkg/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Типы подписанных токенов. Тип зашивается в claims и обязан совпадать
// с ожидаемым на операции: access не принимается вместо refresh и наоборот.
const (
	tokenTypeAccess      = "access"
	tokenTypeRefresh     = "refresh"
	tokenTypeExamSession = "exam_session"
)

type authClaims struct {
	UserID    string `json:"uid"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	ExamID    string `json:"exam_id,omitempty"`
	jwt.RegisteredClaims
}

// generateToken подписывает токен заданного типа и срока жизни.
// jti обязателен для refresh-токенов (по нему работает denylist),
// для остальных типов допустим пустой.
func (s *Service) generateToken(ctx context.Context, user *models.User, typ string, ttl time.Duration, jti, examID string, now time.Time) (string, error) {
	const op = "service.token.generateToken"

	claims := authClaims{
		UserID:    user.ID.String(),
		TokenType: typ,
		ExamID:    examID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
			ID:        jti,
		},
	}

	// Роль и e-mail несут только токены, предъявляемые API:
	// refresh-токен — одноцелевой, ему достаточно subject+jti.
	if typ != tokenTypeRefresh {
		claims.Email = user.Email
		claims.Role = string(user.Role)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		log.From(ctx).Error("token_sign_failed",
			slog.String("op", op),
			slog.String("typ", typ),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// validateToken проверяет подпись/срок и тип токена.
// Срок сверяется по UTC без leeway: токен валиден строго при now < exp.
func (s *Service) validateToken(tokenStr, wantType string) (*authClaims, error) {
	const op = "service.token.validateToken"

	token, err := jwt.ParseWithClaims(tokenStr, &authClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*authClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	// Токен валидный, но семантически чужой — это тоже ErrInvalidToken.
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims, nil
}

// validateRefreshToken проверяет refresh-токен, включая denylist отозванных jti.
// Недоступность denylist трактуется как отказ (fail closed): выпускать новую
// пару в условиях неопределённости нельзя.
func (s *Service) validateRefreshToken(ctx context.Context, tokenStr string) (*authClaims, error) {
	const op = "service.token.validateRefreshToken"

	lg := log.From(ctx)

	claims, err := s.validateToken(tokenStr, tokenTypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	revoked, err := s.tokens.IsJTIRevoked(ctx, claims.ID)
	if err != nil {
		lg.Error("revocation_check_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if revoked {
		lg.Warn("refresh_revoked",
			slog.String("op", op),
			slog.String("user_id", claims.UserID),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	return claims, nil
}

// revokeJTI кладёт jti в denylist на остаток срока жизни токена.
func (s *Service) revokeJTI(ctx context.Context, claims *authClaims) error {
	const op = "service.token.revokeJTI"

	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.tokens.RevokeJTI(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// newOpaqueToken генерирует одноразовый токен (verification/reset).
// Возвращает открытое значение для клиента и SHA-256 дайджест для хранения:
// в store попадает только дайджест.
func newOpaqueToken() (plain, digest string, err error) {
	const op = "service.token.newOpaqueToken"

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, opaqueDigest(plain), nil
}

// opaqueDigest считает дайджест открытого одноразового токена.
func opaqueDigest(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
