package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// MinPasswordLength — минимальная длина пароля при регистрации.
const MinPasswordLength = 6

var (
	// Ошибка незаполненных полей регистрации.
	ErrFieldsRequired = fmt.Errorf("%w: full name, email and password are required", domain.ErrInvalidArgument)
	// Ошибка слишком короткого пароля.
	ErrPasswordTooShort = fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidArgument, MinPasswordLength)
)

// Service регистрирует и аутентифицирует покупателей.
type Service struct {
	users  domain.UserRepository
	cost   int
	logger *log.Entry
}

// NewService создаёт сервис пользователей. cost <= 0 означает bcrypt.DefaultCost.
func NewService(users domain.UserRepository, cost int, logger *log.Entry) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = log.New().WithField("component", "users")
	}
	return &Service{users: users, cost: cost, logger: logger}
}

// Register создаёт пользователя. Email приводится к нижнему регистру; хэш пароля наружу не возвращается.
func (s *Service) Register(ctx context.Context, fullName, email, password string) (domain.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = normalizeEmail(email)
	if fullName == "" || email == "" || password == "" {
		return domain.User{}, ErrFieldsRequired
	}
	if len(password) < MinPasswordLength {
		return domain.User{}, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	role := domain.UserRoleUser
	if email == domain.AdminEmail {
		role = domain.UserRoleAdmin
	}

	user, err := s.users.Create(ctx, domain.User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			s.logger.WithField("email", email).Info("registration rejected: email taken")
		}
		return domain.User{}, err
	}

	s.logger.WithFields(log.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("user registered")
	user.PasswordHash = ""
	return user, nil
}

// Login проверяет email и пароль. Неизвестный email и неверный пароль неразличимы: ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WithField("user_id", user.ID).Debug("password mismatch")
		return domain.User{}, domain.ErrInvalidCredentials
	}

	user.PasswordHash = ""
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
