package memory

import (
	"context"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type userRepository struct {
	s  *Store
	tx *state
}

func (r *userRepository) Create(_ context.Context, user domain.User) (domain.User, error) {
	err := r.s.write(r.tx, func(st *state) error {
		for _, existing := range st.users {
			if strings.EqualFold(existing.Email, user.Email) {
				return domain.ErrEmailTaken
			}
		}
		st.nextUserID++
		user.ID = st.nextUserID
		user.CreatedAt = time.Now().UTC()
		st.users[user.ID] = user
		return nil
	})
	return user, err
}

func (r *userRepository) GetByEmail(_ context.Context, email string) (domain.User, error) {
	var user domain.User
	err := r.s.read(r.tx, func(st *state) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, email) {
				user = u
				return nil
			}
		}
		return domain.ErrUserNotFound
	})
	return user, err
}

var _ domain.UserRepository = (*userRepository)(nil)
