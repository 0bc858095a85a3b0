package models

import "fmt"

// Role — роль пользователя в платформе.
// Иерархия строгая: каждая старшая роль включает права младших.
type Role string

const (
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// roleLevels — порядок ролей для сравнения привилегий.
var roleLevels = map[Role]int{
	RoleStudent:    1,
	RoleTeacher:    2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// ParseRole возвращает роль по строковому значению.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleLevels[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}

	return r, nil
}

// Level возвращает числовой уровень роли (0 для неизвестной).
func (r Role) Level() int {
	return roleLevels[r]
}

// Valid сообщает, известна ли роль.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast проверяет, что роль r не ниже required.
// Неизвестные роли никогда не проходят проверку.
func (r Role) AtLeast(required Role) bool {
	have, ok := roleLevels[r]
	if !ok {
		return false
	}

	need, ok := roleLevels[required]
	if !ok {
		return false
	}

	return have >= need
}
