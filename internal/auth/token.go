// Package auth issues the session tokens handed out by /login. Validation happens in
// middleware.Auth against the same secret, issuer and audience.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/semanticallynull/rideledger-backend/user"
)

const DefaultTTL = 12 * time.Hour

var ErrNoSecret = errors.New("token secret is required")

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Claims carry the user's role next to the registered claims. Subject is the ledger address.
type Claims struct {
	Username string    `json:"username"`
	Role     user.Role `json:"role"`
	jwt.RegisteredClaims
}

type Issuer struct {
	cfg Config
	now func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

func (i *Issuer) Config() Config {
	return i.cfg
}

// Issue signs an HS256 token for u and returns it with its expiry.
func (i *Issuer) Issue(u *user.User) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.cfg.TTL)
	claims := Claims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.Address,
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
