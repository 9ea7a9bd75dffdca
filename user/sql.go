package user

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var Schema string

const (
	uniqueViolation           = "23505"
	usernameConstraint        = "users_username_key"
	ethereumAddressConstraint = "users_ethereum_address_key"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// Migrate creates the users table and its uniqueness constraints if they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return ErrStorage.Wrap(err)
	}
	return nil
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.get(ctx, getByUsernameQuery, username)
}

const getByUsernameQuery = `SELECT id, username, ethereum_address, password_hash, role FROM users WHERE username = $1`

func (r *Repository) GetByAddress(ctx context.Context, address string) (*User, error) {
	return r.get(ctx, getByAddressQuery, address)
}

const getByAddressQuery = `SELECT id, username, ethereum_address, password_hash, role FROM users WHERE lower(ethereum_address) = lower($1)`

func (r *Repository) get(ctx context.Context, query string, arg string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, ErrStorage.Wrap(err)
	}
	return &u, nil
}

// Create inserts u and sets its ID. The unique constraints on username and address are the
// authority on duplicates; a violation is reported as the matching duplicate error.
func (r *Repository) Create(ctx context.Context, u *User) error {
	err := r.db.GetContext(ctx, &u.ID, createQuery, u.Username, u.Address, u.PasswordHash, u.Role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case usernameConstraint:
				return ErrDuplicateUsername
			case ethereumAddressConstraint:
				return ErrDuplicateAddress
			}
		}
		return ErrStorage.Wrap(err)
	}
	return nil
}

const createQuery = `
INSERT INTO users (username, ethereum_address, password_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING id
`

func (r *Repository) ListAddresses(ctx context.Context) ([]string, error) {
	var addresses []string
	err := r.db.SelectContext(ctx, &addresses, listAddressesQuery)
	if err != nil {
		return nil, ErrStorage.Wrap(err)
	}
	return addresses, nil
}

const listAddressesQuery = `SELECT ethereum_address FROM users`
