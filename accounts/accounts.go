// Package accounts implements the NickServ-backed account store: registered
// nicknames, bcrypt-hashed credentials, and linked virtual hosts, behind a
// small repository interface so callers can swap in a persistent backend
// without this package's callers changing.
package accounts

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound is returned when a lookup finds no matching account.
var ErrNotFound = errors.New("accounts: account not found")

// ErrAlreadyRegistered is returned by Register when the name is taken.
var ErrAlreadyRegistered = errors.New("accounts: name already registered")

// ErrBadCredentials is returned by Authenticate on a password mismatch.
var ErrBadCredentials = errors.New("accounts: invalid credentials")

// Account is one registered identity.
type Account struct {
	Name         string
	PasswordHash string
	Email        string
	VHost        string
	RegisteredAt time.Time
	LastSeen     time.Time
}

// Repository is the storage contract for accounts, satisfied by the
// in-memory Store below or by an external persistence layer.
type Repository interface {
	Get(name string) (Account, error)
	Put(account Account) error
	Delete(name string) error
	All() ([]Account, error)
}

// Store is an in-memory Repository implementation, the reference adapter
// used by tests and standalone deployments without external persistence.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]Account
	cost     int
}

// NewStore builds an empty in-memory account store. cost is the bcrypt
// work factor; 0 selects bcrypt.DefaultCost.
func NewStore(cost int) *Store {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Store{accounts: make(map[string]Account), cost: cost}
}

func key(name string) string { return strings.ToLower(name) }

// Get implements Repository.
func (s *Store) Get(name string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[key(name)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

// Put implements Repository.
func (s *Store) Put(account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[key(account.Name)] = account
	return nil
}

// Delete implements Repository.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, key(name))
	return nil
}

// All implements Repository.
func (s *Store) All() ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, nil
}

// Register creates a new account with a bcrypt-hashed password. Returns
// ErrAlreadyRegistered if the name is taken.
func (s *Store) Register(name, password, email string) (Account, error) {
	if _, err := s.Get(name); err == nil {
		return Account{}, ErrAlreadyRegistered
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Account{}, err
	}

	acct := Account{
		Name:         name,
		PasswordHash: string(hash),
		Email:        email,
		RegisteredAt: time.Now(),
		LastSeen:     time.Now(),
	}

	return acct, s.Put(acct)
}

// Authenticate verifies a password against the stored bcrypt hash.
func (s *Store) Authenticate(name, password string) (Account, error) {
	acct, err := s.Get(name)
	if err != nil {
		return Account{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return Account{}, ErrBadCredentials
	}

	return acct, nil
}
