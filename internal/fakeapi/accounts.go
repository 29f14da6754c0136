package fakeapi

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/2beens/cutroom-admin/pkg"
)

const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"

	minPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
)

// LockedError is returned while an account sits out its lockout period.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return "account locked until " + e.Until.Format(time.RFC3339)
}

type SeedAccount struct {
	ID       string
	Name     string
	Email    string
	Role     string
	Password string
}

// DefaultAccounts are the two admins the development backend starts with.
func DefaultAccounts(password string) []SeedAccount {
	return []SeedAccount{
		{ID: "1", Name: "Cutroom Admin", Email: "admin@cutroom.io", Role: RoleAdmin, Password: password},
		{ID: "2", Name: "Cutroom Root", Email: "root@cutroom.io", Role: RoleSuperAdmin, Password: password},
	}
}

// AdminView is the identity shape the admin api returns.
type AdminView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

type account struct {
	view           AdminView
	passwordHash   string
	failedAttempts int
	lockedUntil    time.Time
}

type AccountStore struct {
	mu        sync.Mutex
	byEmail   map[string]*account
	byID      map[string]*account
	maxFailed int
	lockout   time.Duration
	hashCost  int
	now       func() time.Time
}

func NewAccountStore(maxFailed int, lockout time.Duration, hashCost int) *AccountStore {
	return &AccountStore{
		byEmail:   map[string]*account{},
		byID:      map[string]*account{},
		maxFailed: maxFailed,
		lockout:   lockout,
		hashCost:  hashCost,
		now:       time.Now,
	}
}

func (s *AccountStore) Add(seed SeedAccount) error {
	if seed.Role != RoleAdmin && seed.Role != RoleSuperAdmin {
		return fmt.Errorf("account %s: unknown role [%s]", seed.Email, seed.Role)
	}
	if len(seed.Password) < minPasswordLength {
		return fmt.Errorf("account %s: %w", seed.Email, ErrWeakPassword)
	}

	hash, err := pkg.HashPassword(seed.Password, s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password for %s: %w", seed.Email, err)
	}

	email := normalizeEmail(seed.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return ErrAccountExists
	}
	if _, ok := s.byID[seed.ID]; ok {
		return ErrAccountExists
	}

	acc := &account{
		view: AdminView{
			ID:    seed.ID,
			Name:  seed.Name,
			Email: email,
			Role:  seed.Role,
		},
		passwordHash: hash,
	}
	s.byEmail[email] = acc
	s.byID[seed.ID] = acc
	return nil
}

// Authenticate checks the credentials and records the outcome: maxFailed
// consecutive failures lock the account, a success resets the counter. A
// locked account is rejected without looking at the password.
func (s *AccountStore) Authenticate(email, password string) (AdminView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return AdminView{}, ErrInvalidCredentials
	}

	now := s.now()
	if now.Before(acc.lockedUntil) {
		return AdminView{}, &LockedError{Until: acc.lockedUntil}
	}

	if !pkg.CheckPasswordHash(password, acc.passwordHash) {
		acc.failedAttempts++
		if s.maxFailed > 0 && acc.failedAttempts >= s.maxFailed {
			acc.failedAttempts = 0
			acc.lockedUntil = now.Add(s.lockout).Truncate(time.Second)
			return AdminView{}, &LockedError{Until: acc.lockedUntil}
		}
		return AdminView{}, ErrInvalidCredentials
	}

	acc.failedAttempts = 0
	acc.lockedUntil = time.Time{}
	lastLogin := now.UTC().Truncate(time.Second)
	acc.view.LastLogin = &lastLogin

	return acc.view, nil
}

func (s *AccountStore) Get(id string) (AdminView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byID[id]
	if !ok {
		return AdminView{}, false
	}
	return acc.view, true
}

func (s *AccountStore) ChangePassword(id, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	s.mu.Lock()
	acc, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrAccountNotFound
	}
	currentHash := acc.passwordHash
	s.mu.Unlock()

	if !pkg.CheckPasswordHash(currentPassword, currentHash) {
		return ErrInvalidCredentials
	}

	// bcrypt is slow, hash outside the lock
	newHash, err := pkg.HashPassword(newPassword, s.hashCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc.passwordHash = newHash
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
