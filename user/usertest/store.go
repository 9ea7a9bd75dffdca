// Package usertest provides an in-memory user.Store.
package usertest

import (
	"context"
	"strings"
	"sync"

	"github.com/semanticallynull/rideledger-backend/user"
)

// Store enforces the same uniqueness rules as the users table.
type Store struct {
	mu    sync.Mutex
	users []user.User
}

var _ user.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{}
}

func (s *Store) find(match func(user.User) bool) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *Store) GetByUsername(_ context.Context, username string) (*user.User, error) {
	return s.find(func(u user.User) bool { return u.Username == username })
}

func (s *Store) GetByAddress(_ context.Context, address string) (*user.User, error) {
	return s.find(func(u user.User) bool { return strings.EqualFold(u.Address, address) })
}

func (s *Store) Create(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return user.ErrDuplicateUsername
		}
		if strings.EqualFold(existing.Address, u.Address) {
			return user.ErrDuplicateAddress
		}
	}
	u.ID = int64(len(s.users) + 1)
	s.users = append(s.users, *u)
	return nil
}

func (s *Store) ListAddresses(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Address)
	}
	return out, nil
}

// Len reports how many users are stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
