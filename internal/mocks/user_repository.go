package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/repository"
	"github.com/google/uuid"
)

// UserRepository is an in-memory user store for testing
type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*models.User
}

// NewUserRepository creates a repository seeded with users
func NewUserRepository(users ...*models.User) *UserRepository {
	r := &UserRepository{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		c := *u
		r.users[u.ID] = &c
	}
	return r
}

// Create stores a new user, rejecting duplicate usernames and emails
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return fmt.Errorf("user %s: %w", user.Username, repository.ErrDuplicate)
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	c := *user
	r.users[user.ID] = &c
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
	}
	c := *u
	return &c, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
}

// ListByRole returns the active users holding role
func (r *UserRepository) ListByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.User
	for _, u := range r.users {
		if u.Role == role && u.IsActive {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
