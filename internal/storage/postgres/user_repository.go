package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type userRepository struct {
	q queryer
}

func (r *userRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	user.CreatedAt = time.Now().UTC()
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO users (full_name, email, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, user.FullName, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		user domain.User
		role string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, full_name, email, password_hash, role, created_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	user.Role = domain.UserRole(role)
	return user, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
