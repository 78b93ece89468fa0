package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and by the server when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]UserAuth
	byEmail map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]UserAuth),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(in.Email) == "" || in.PasswordHash == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email and password hash are required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewID(now)
	if err != nil {
		return User{}, err
	}

	key := EmailKey(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[key]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{
		ID:        id,
		Email:     in.Email,
		EmailNorm: key,
		Username:  in.Username,
		IsActive:  true,
		IsAdmin:   in.IsAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[id] = UserAuth{User: u, PasswordHash: in.PasswordHash}
	s.byEmail[key] = id
	return u, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	ua, err := s.GetUserAuthByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	return ua.User, nil
}

func (s *MemoryStore) GetUserAuthByID(ctx context.Context, id string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ua, ok := s.users[id]
	if !ok {
		return UserAuth{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return ua, nil
}

func (s *MemoryStore) GetUserAuthByEmail(ctx context.Context, emailNorm string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailNorm]
	if !ok {
		return UserAuth{}, NotFoundError{Op: "identity.GetUserByEmail", Resource: "user"}
	}
	return s.users[id], nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: "identity.UpdatePasswordHash", Resource: "user"}
	}
	ua.PasswordHash = hash
	ua.UpdatedAt = now
	s.users[userID] = ua
	return nil
}

func (s *MemoryStore) SetActive(ctx context.Context, userID string, active bool, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.users[userID]
	if !ok {
		return NotFoundError{Op: "identity.SetActive", Resource: "user"}
	}
	ua.IsActive = active
	ua.UpdatedAt = now
	s.users[userID] = ua
	return nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.users[id]
	if !ok {
		return NotFoundError{Op: "identity.DeleteUser", Resource: "user"}
	}
	delete(s.byEmail, ua.EmailNorm)
	delete(s.users, id)
	return nil
}

// Len reports the number of stored users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
