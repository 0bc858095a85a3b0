package storage

import (
	"context"
	"errors"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над учётными записями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (точное совпадение).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// ActivateUser помечает пользователя активным после подтверждения e-mail.
	ActivateUser(ctx context.Context, id uuid.UUID) error
	// UpdatePassword заменяет хэш пароля пользователя.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	UserStorage
	Close()
}
