package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/semanticallynull/rideledger-backend/internal/ethaddr"
)

// Store is the persistence the registry needs. *Repository implements it.
type Store interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByAddress(ctx context.Context, address string) (*User, error)
	Create(ctx context.Context, u *User) error
	ListAddresses(ctx context.Context) ([]string, error)
}

type Registry struct {
	store  Store
	logger *slog.Logger
	cost   int

	dummyOnce sync.Once
	dummyHash []byte
}

// maxPasswordBytes is the most bcrypt will hash.
const maxPasswordBytes = 72

func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		logger: logger,
		cost:   bcrypt.DefaultCost,
	}
}

// Register stores a new identity. The pre-checks give precise errors in the common case; the
// store's unique constraints still decide when two registrations race.
func (r *Registry) Register(ctx context.Context, username, address, password string, role Role) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || address == "" {
		return nil, ErrMissingField.WithReason("username, ethereumAddress, password and role are required")
	}
	if len(password) > maxPasswordBytes {
		return nil, ErrInvalidPassword.WithReason("got %d bytes", len(password))
	}
	if !role.Valid() {
		return nil, ErrInvalidRole.WithReason("%q", role)
	}
	address, err := ethaddr.Normalize(address)
	if err != nil {
		return nil, err
	}

	if _, err := r.store.GetByAddress(ctx, address); err == nil {
		return nil, ErrDuplicateAddress
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := r.store.GetByUsername(ctx, username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrInvalidPassword
		}
		return nil, ErrStorage.Wrap(err)
	}

	u := &User{
		Username:     username,
		Address:      address,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := r.store.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateUsername) || errors.Is(err, ErrDuplicateAddress) {
			r.logger.WarnContext(ctx, "registration lost uniqueness race", "username", username, "address", address, "error", err)
		}
		return nil, err
	}

	r.logger.InfoContext(ctx, "user registered", "user_id", u.ID, "address", address, "role", role)
	return u, nil
}

// Authenticate checks a password. Unknown usernames and wrong passwords give the same error,
// and both pay for one bcrypt comparison.
func (r *Registry) Authenticate(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingField.WithReason("username and password are required")
	}

	u, err := r.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(r.dummy(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (r *Registry) dummy() []byte {
	r.dummyOnce.Do(func() {
		r.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), r.cost)
	})
	return r.dummyHash
}

// Lookup returns the identity registered for address.
func (r *Registry) Lookup(ctx context.Context, address string) (*User, error) {
	address, err := ethaddr.Normalize(address)
	if err != nil {
		return nil, err
	}
	return r.store.GetByAddress(ctx, address)
}

// ListUnassignedAddresses returns candidates that no user has registered yet, in their
// original order.
func (r *Registry) ListUnassignedAddresses(ctx context.Context, candidates []string) ([]string, error) {
	used, err := r.store.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]struct{}, len(used))
	for _, a := range used {
		taken[strings.ToLower(a)] = struct{}{}
	}

	free := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := taken[strings.ToLower(c)]; !ok {
			free = append(free, c)
		}
	}
	return free, nil
}

// ValidateAddress checks that address is well formed, is one of the ledger's known accounts and
// is not registered yet.
func (r *Registry) ValidateAddress(ctx context.Context, address string, known []string) error {
	address, err := ethaddr.Normalize(address)
	if err != nil {
		return err
	}

	found := false
	for _, k := range known {
		if ethaddr.Equal(k, address) {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownAddress.WithReason("%s", address)
	}

	if _, err := r.store.GetByAddress(ctx, address); err == nil {
		return ErrDuplicateAddress
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
