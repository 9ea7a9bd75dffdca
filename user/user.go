// Package user is the identity registry: usernames, password hashes and roles mapped to ledger
// addresses. It never stores ride state.
package user

import (
	"github.com/semanticallynull/rideledger-backend/internal/apperr"
)

type Role string

const (
	Rider  Role = "rider"
	Driver Role = "driver"
)

func (r Role) Valid() bool {
	return r == Rider || r == Driver
}

// User is immutable after registration.
type User struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	// Address is stored in EIP-55 checksummed form.
	Address string `db:"ethereum_address"`
	Role    Role   `db:"role"`
}

var (
	ErrNotFound           = apperr.New(apperr.NotFound, "USER_NOT_FOUND", "user not found")
	ErrDuplicateUsername  = apperr.New(apperr.Conflict, "DUPLICATE_USERNAME", "username is already taken")
	ErrDuplicateAddress   = apperr.New(apperr.Conflict, "DUPLICATE_ADDRESS", "ethereum address is already registered")
	ErrInvalidRole        = apperr.New(apperr.Validation, "INVALID_ROLE", `role must be "rider" or "driver"`)
	ErrMissingField       = apperr.New(apperr.Validation, "MISSING_FIELD", "required field missing")
	ErrInvalidPassword    = apperr.New(apperr.Validation, "INVALID_PASSWORD", "password must be at most 72 bytes")
	ErrInvalidCredentials = apperr.New(apperr.Forbidden, "INVALID_CREDENTIALS", "invalid username or password")
	ErrUnknownAddress     = apperr.New(apperr.Validation, "UNKNOWN_ADDRESS", "ethereum address does not exist on the ledger")
	ErrStorage            = apperr.New(apperr.Storage, "STORAGE", "identity store unavailable")
)
