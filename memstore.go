package authcore

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCredentialStore is a mutex-guarded in-memory CredentialStore for
// tests, examples, and prototyping. Production deployments implement
// CredentialStore against their own database; the mutex here is what a SQL
// implementation replaces with a transactional UPDATE.
type MemoryCredentialStore struct {
	mu      sync.Mutex
	byID    map[string]*User
	byEmail map[string]string
	byName  map[string]string
}

// NewMemoryCredentialStore returns an empty store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		byName:  make(map[string]string),
	}
}

func cloneUser(u *User) *User {
	out := *u
	out.PasswordHistory = append([]string(nil), u.PasswordHistory...)
	return &out
}

func (m *MemoryCredentialStore) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := m.byEmail[email]; ok {
		return ErrUserExists
	}
	if user.Username != "" {
		if _, ok := m.byName[user.Username]; ok {
			return ErrUserExists
		}
	}

	m.byID[user.ID] = cloneUser(user)
	m.byEmail[email] = user.ID
	if user.Username != "" {
		m.byName[user.Username] = user.ID
	}
	return nil
}

func (m *MemoryCredentialStore) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryCredentialStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(m.byID[id]), nil
}

func (m *MemoryCredentialStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(m.byID[id]), nil
}

// RecordLoginFailure performs the whole lockout update under one lock: an
// expired lock is cleared, the counter advances, and reaching threshold
// stamps the deadline. Concurrent failures therefore never under-count.
func (m *MemoryCredentialStore) RecordLoginFailure(_ context.Context, userID string, threshold int, lockout time.Duration) (LockoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return LockoutState{}, ErrUserNotFound
	}

	now := time.Now()
	if !u.LockedUntil.IsZero() && !u.LockedUntil.After(now) {
		u.LockedUntil = time.Time{}
		u.FailedLoginCount = 0
	}

	u.FailedLoginCount++
	if u.FailedLoginCount >= threshold && u.LockedUntil.IsZero() {
		u.LockedUntil = now.Add(lockout)
	}

	return LockoutState{FailedCount: u.FailedLoginCount, LockedUntil: u.LockedUntil}, nil
}

func (m *MemoryCredentialStore) ResetLoginFailures(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.FailedLoginCount = 0
	u.LockedUntil = time.Time{}
	return nil
}

func (m *MemoryCredentialStore) RecordLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLoginAt = at
	return nil
}

func (m *MemoryCredentialStore) UpdatePassword(_ context.Context, userID, newHash string, changedAt time.Time, historyLimit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}

	u.PasswordHistory = append([]string{u.PasswordHash}, u.PasswordHistory...)
	if historyLimit >= 0 && len(u.PasswordHistory) > historyLimit {
		u.PasswordHistory = u.PasswordHistory[:historyLimit]
	}
	u.PasswordHash = newHash
	u.PasswordChangedAt = changedAt
	return nil
}

func (m *MemoryCredentialStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (m *MemoryCredentialStore) PasswordHistory(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return append([]string(nil), u.PasswordHistory...), nil
}

func (m *MemoryCredentialStore) SetEmailVerified(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.EmailVerified = true
	return nil
}

// SetActive flips the activation flag. Admin tooling lives outside this
// module; the method exists so tests and examples can exercise the
// deactivated-account paths.
func (m *MemoryCredentialStore) SetActive(userID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Active = active
	return nil
}
