package models

import (
	"time"

	"github.com/google/uuid"
)

// Session — серверная запись об активной сессии пользователя.
//
// Хранится в key-value store с TTL, равным времени жизни refresh-токена:
// просроченная сессия исчезает сама, без фоновой очистки.
// Token — jti refresh-токена, по которому сессия ищется при logout.
type Session struct {
	Token      string
	UserID     uuid.UUID
	DeviceInfo string
	CreatedAt  time.Time
	IsActive   bool
}
