package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	adapter "github.com/gwatts/gin-adapter"

	"github.com/semanticallynull/rideledger-backend/user"
)

// SessionClaims are the private claims of a session token.
type SessionClaims struct {
	Username string    `json:"username"`
	Role     user.Role `json:"role"`
}

func (s *SessionClaims) Validate(context.Context) error {
	if !s.Role.Valid() {
		return errors.New("token role is invalid")
	}
	return nil
}

// Auth validates HS256 bearer tokens and stores the claims in the request context.
func Auth(secret, issuer, audience string) (gin.HandlerFunc, error) {
	keyFunc := func(ctx context.Context) (interface{}, error) {
		return []byte(secret), nil
	}

	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		issuer,
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &SessionClaims{}
		}),
		validator.WithAllowedClockSkew(30*time.Second),
	)
	if err != nil {
		return nil, err
	}

	m := jwtmiddleware.New(jwtValidator.ValidateToken, jwtmiddleware.WithErrorHandler(authErrorHandler))
	return adapter.Wrap(m.CheckJWT), nil
}

func authErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	LoggerFromContext(r.Context()).InfoContext(r.Context(), "rejected token", slog.String("path", r.URL.Path), slog.Any("error", err))

	msg := "invalid token"
	if errors.Is(err, jwtmiddleware.ErrJWTMissing) {
		msg = "authentication required"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": "UNAUTHORIZED", "message": msg})
}

func validatedClaims(c *gin.Context) (*validator.ValidatedClaims, bool) {
	v, ok := c.Request.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	return v, ok
}

// GetSender returns the ledger address the token was issued to.
func GetSender(c *gin.Context) (string, bool) {
	claims, ok := validatedClaims(c)
	if !ok {
		return "", false
	}
	return claims.RegisteredClaims.Subject, true
}

func GetRole(c *gin.Context) (user.Role, bool) {
	claims, ok := validatedClaims(c)
	if !ok {
		return "", false
	}
	session, ok := claims.CustomClaims.(*SessionClaims)
	if !ok {
		return "", false
	}
	return session.Role, true
}
