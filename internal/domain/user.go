package domain

import "time"

// UserRole — роль пользователя.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// AdminEmail получает роль администратора при регистрации.
const AdminEmail = "admin@admin.com"

// User — зарегистрированный покупатель.
type User struct {
	ID           int64
	FullName     string
	Email        string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
}
