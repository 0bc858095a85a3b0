package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/cache"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/models"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/pkg/log"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/pkg/redact"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterUser регистрирует нового пользователя.
// Учётная запись создаётся неактивной; вход возможен после подтверждения
// e-mail одноразовым verification-токеном, который возвращается вызывающей
// стороне для доставки пользователю.
func (s *Service) RegisterUser(ctx context.Context, email, password string, role models.Role) (uuid.UUID, string, error) {
	const op = "service.auth.RegisterUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if role == "" {
		role = models.RoleStudent
	}
	if !role.Valid() {
		return uuid.Nil, "", fmt.Errorf("%s: %q: %w", op, role, ErrInvalidRole)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		PasswordHash: hashedPassword,
		Role:         role,
		IsActive:     false,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	verifyToken, err := s.issueOneTimeToken(ctx, cache.KindVerification, user.ID, s.cfg.VerificationTokenTTL)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_registered",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(user.Email)),
	)

	return user.ID, verifyToken, nil
}

// LoginUser выполняет вход по email+пароль и создаёт сессию.
// «Нет такого пользователя», «неверный пароль» и «не подтверждён e-mail»
// наружу неразличимы — все три сводятся к ErrInvalidCredentials.
func (s *Service) LoginUser(ctx context.Context, email, password, deviceInfo string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.LoginUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !user.IsActive {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.issueTokenPair(ctx, user, deviceInfo)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// RefreshToken обновляет пару токенов по refresh-токену (ротация).
// Старый refresh-токен отзывается через denylist по jti, его сессия
// заменяется новой.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RefreshToken"

	claims, err := s.validateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	uid := uuid.MustParse(claims.UserID)

	user, err := s.storage.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInactiveUser)
	}

	// Девайс наследуется от старой сессии, если она ещё жива.
	deviceInfo := ""
	if old, ok, err := s.sessions.Get(ctx, claims.ID); err == nil && ok {
		deviceInfo = old.DeviceInfo
	}

	if err := s.revokeJTI(ctx, claims); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sessions.Invalidate(ctx, claims.ID); err != nil {
		// Сессия зачищается по TTL; ротацию из-за этого не роняем.
		log.From(ctx).Warn("session_invalidate_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}

	pair, err := s.issueTokenPair(ctx, user, deviceInfo)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// Logout завершает сессию предъявленного refresh-токена.
// Повторный logout по тому же токену завершится ErrTokenRevoked.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.auth.Logout"

	claims, err := s.validateRefreshToken(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.revokeJTI(ctx, claims); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sessions.Invalidate(ctx, claims.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LogoutAll завершает все сессии пользователя («выйти на всех устройствах»).
// Каждый jti попадает в denylist на полный срок refresh-токена: остаток
// срока конкретного токена на этом пути неизвестен, берём верхнюю границу.
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	const op = "service.auth.LogoutAll"

	active, err := s.sessions.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, session := range active {
		if err := s.tokens.RevokeJTI(ctx, session.Token, s.cfg.RefreshTokenTTL); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.sessions.InvalidateAll(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("sessions_revoked",
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.Int("count", len(active)),
	)

	return nil
}

// Sessions возвращает активные сессии пользователя.
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	const op = "service.auth.Sessions"

	active, err := s.sessions.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return active, nil
}

// CurrentUser проверяет access-токен и возвращает его владельца.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	const op = "service.auth.CurrentUser"

	claims, err := s.validateToken(accessToken, tokenTypeAccess)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, uuid.MustParse(claims.UserID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrInactiveUser)
	}

	return user, nil
}

// CheckPermission проверяет, что роль пользователя не ниже требуемой.
func (s *Service) CheckPermission(user *models.User, required models.Role) bool {
	if user == nil {
		return false
	}

	return user.Role.AtLeast(required)
}

// RequireRole комбинирует проверку access-токена с проверкой роли.
// Ошибки токена остаются «401-семейством», нехватка привилегий —
// отдельный ErrPermissionDenied (403).
func (s *Service) RequireRole(ctx context.Context, accessToken string, required models.Role) (*models.User, error) {
	const op = "service.auth.RequireRole"

	user, err := s.CurrentUser(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.CheckPermission(user, required) {
		log.From(ctx).Warn("permission_denied",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
			slog.String("role", string(user.Role)),
			slog.String("required", string(required)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrPermissionDenied)
	}

	return user, nil
}

// UserByID возвращает пользователя по ID (административные сценарии).
func (s *Service) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "service.auth.UserByID"

	user, err := s.storage.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// StartExamSession выпускает exam-session-токен: он ограничивает носителя
// одной экзаменационной сессией и живёт не дольше настроенного таймаута
// экзамена, а не стандартного срока access-токена.
func (s *Service) StartExamSession(ctx context.Context, accessToken, examID string) (string, time.Time, error) {
	const op = "service.auth.StartExamSession"

	user, err := s.RequireRole(ctx, accessToken, models.RoleStudent)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	if strings.TrimSpace(examID) == "" {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrEmptyExamID)
	}

	now := time.Now().UTC()
	token, err := s.generateToken(ctx, user, tokenTypeExamSession, s.cfg.ExamSessionTTL, "", examID, now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return token, now.Add(s.cfg.ExamSessionTTL), nil
}

// ValidateExamSession проверяет exam-session-токен и возвращает
// владельца и идентификатор экзамена.
func (s *Service) ValidateExamSession(ctx context.Context, token string) (uuid.UUID, string, error) {
	const op = "service.auth.ValidateExamSession"

	claims, err := s.validateToken(token, tokenTypeExamSession)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	return uuid.MustParse(claims.UserID), claims.ExamID, nil
}

// VerifyEmail активирует учётную запись по одноразовому verification-токену.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	const op = "service.auth.VerifyEmail"

	userID, ok, err := s.tokens.TakeOneTime(ctx, cache.KindVerification, opaqueDigest(token))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !ok {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if err := s.storage.ActivateUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("email_verified",
		slog.String("op", op),
		slog.String("user_id", userID.String()),
	)

	return nil
}

// ForgotPassword выписывает одноразовый reset-токен.
// Для неизвестного e-mail возвращает пустой токен без ошибки: ответ
// обязан быть неотличим от успешного, чтобы исключить перебор адресов.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	const op = "service.auth.ForgotPassword"

	normEmail, err := validateEmail(email)
	if err != nil {
		return "", nil
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	resetToken, err := s.issueOneTimeToken(ctx, cache.KindReset, user.ID, s.cfg.ResetTokenTTL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("password_reset_requested",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(user.Email)),
	)

	return resetToken, nil
}

// ResetPassword меняет пароль по одноразовому reset-токену
// и завершает все сессии пользователя.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "service.auth.ResetPassword"

	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	userID, ok, err := s.tokens.TakeOneTime(ctx, cache.KindReset, opaqueDigest(token))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !ok {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return s.replacePassword(ctx, userID, newPassword)
}

// ChangePassword меняет пароль аутентифицированного пользователя
// и завершает все его сессии.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	const op = "service.auth.ChangePassword"

	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, oldPassword) {
		return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return s.replacePassword(ctx, userID, newPassword)
}

// replacePassword записывает новый хэш и отзывает все сессии:
// смена пароля обнуляет доверие ко всем выданным refresh-токенам.
func (s *Service) replacePassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	const op = "service.auth.replacePassword"

	hashed, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.UpdatePassword(ctx, userID, hashed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.LogoutAll(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// issueOneTimeToken генерирует одноразовый токен и сохраняет его дайджест.
func (s *Service) issueOneTimeToken(ctx context.Context, kind string, userID uuid.UUID, ttl time.Duration) (string, error) {
	const op = "service.auth.issueOneTimeToken"

	plain, digest, err := newOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := s.tokens.PutOneTime(ctx, kind, digest, userID, ttl); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return plain, nil
}

// issueTokenPair выпускает пару access+refresh и регистрирует сессию.
// jti refresh-токена служит идентификатором сессии.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, deviceInfo string) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	now := time.Now().UTC()
	jti := uuid.New().String()

	accessToken, err := s.generateToken(ctx, user, tokenTypeAccess, s.cfg.AccessTokenTTL, "", "", now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.generateToken(ctx, user, tokenTypeRefresh, s.cfg.RefreshTokenTTL, jti, "", now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session := &models.Session{
		Token:      jti,
		UserID:     user.ID,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		IsActive:   true,
	}

	if err := s.sessions.Create(ctx, session, s.cfg.RefreshTokenTTL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
// Любой битый хэш — это false, а не ошибка наружу.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
