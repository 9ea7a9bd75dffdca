package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rideledger-backend/internal/apperr"
	"github.com/semanticallynull/rideledger-backend/internal/middleware"
	"github.com/semanticallynull/rideledger-backend/ledger"
	"github.com/semanticallynull/rideledger-backend/user"
)

var (
	errBadRequest     = apperr.New(apperr.Validation, "INVALID_REQUEST", "malformed request body")
	errSenderMismatch = apperr.New(apperr.Forbidden, "SENDER_MISMATCH", "sender address does not match the token")
	errUnauthorized   = apperr.New(apperr.Forbidden, "UNAUTHORIZED", "authentication required")
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unconfirmed:
		return http.StatusAccepted
	case apperr.Ledger, apperr.Upstream:
		return http.StatusBadGateway
	case apperr.Storage:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"code", "message"} with the status its kind maps to.
func writeError(c *gin.Context, err error) {
	logger := middleware.GetLogger(c)

	if hash, ok := ledger.PendingTxHash(err); ok {
		logger.Warn("write submitted but unconfirmed", slog.String("tx_hash", hash), slog.Any("error", err))
		c.JSON(http.StatusAccepted, gin.H{
			"code":            apperr.CodeOf(err),
			"message":         err.Error(),
			"status":          "pending",
			"transactionHash": hash,
		})
		return
	}

	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if errors.Is(err, user.ErrInvalidCredentials) || errors.Is(err, errUnauthorized) {
		status = http.StatusUnauthorized
	}

	if kind == apperr.Unknown {
		logger.Error("unclassified error", slog.Any("error", err))
		c.JSON(status, gin.H{"code": "INTERNAL", "message": "internal error"})
		return
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("kind", kind.String()), slog.Any("error", err))
	} else {
		logger.Info("request rejected", slog.String("kind", kind.String()), slog.Any("error", err))
	}
	c.JSON(status, gin.H{"code": apperr.CodeOf(err), "message": err.Error()})
}
