package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/storage"
)

// UserService keeps the local author projection in sync with the identity
// carried by access tokens.
type UserService struct {
	users storage.Users

	mu   sync.Mutex
	seen map[string]domain.User
}

func NewUserService(users storage.Users) *UserService {
	return &UserService{users: users, seen: make(map[string]domain.User)}
}

// Sync upserts u unless the same projection was already written by this process.
// Users without an email are left alone.
func (s *UserService) Sync(ctx context.Context, u domain.User) error {
	if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Email) == "" {
		return nil
	}

	s.mu.Lock()
	prev, ok := s.seen[u.ID]
	s.mu.Unlock()
	if ok && sameUser(prev, u) {
		return nil
	}

	if err := s.users.UpsertUser(ctx, &u); err != nil {
		return fmt.Errorf("%w: upsert user: %v", domain.ErrPersistence, err)
	}

	s.mu.Lock()
	s.seen[u.ID] = u
	s.mu.Unlock()
	return nil
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetUser(ctx, id)
}

func sameUser(a, b domain.User) bool {
	return a.ID == b.ID && a.Email == b.Email && eqPtr(a.Name, b.Name) && eqPtr(a.Image, b.Image)
}

func eqPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
