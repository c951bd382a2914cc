package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-live/backend/internal/auth"
	"github.com/aura-live/backend/internal/models"
)

// Users keeps accounts keyed by lower-cased email.
type Users struct {
	mu      sync.RWMutex
	byEmail map[string]*models.User
}

// NewUsers creates an empty user store.
func NewUsers() *Users {
	return &Users{byEmail: make(map[string]*models.User)}
}

// GetByID returns the user or auth.ErrUserNotFound.
func (u *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, user := range u.byEmail {
		if user.ID == id {
			c := *user
			return &c, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

// GetByEmail returns the user or auth.ErrUserNotFound.
func (u *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	c := *user
	return &c, nil
}

// Create stores a new user.
func (u *Users) Create(_ context.Context, email, passwordHash, displayName string, role models.Role) (*models.User, error) {
	now := time.Now()
	user := &models.User{
		ID:          uuid.New(),
		Email:       email,
		Password:    passwordHash,
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.byEmail[strings.ToLower(email)] = user
	c := *user
	return &c, nil
}
