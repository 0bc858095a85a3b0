package models

import (
	"time"

	"github.com/google/uuid"
)

// User — учётная запись платформы.
//
// PasswordHash — bcrypt-хэш пароля; в открытом виде пароль нигде не хранится.
// IsActive — false до подтверждения e-mail; неактивный пользователь не может
// войти в систему и не проходит проверку access-токена.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
