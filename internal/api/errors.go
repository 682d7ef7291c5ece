package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-voucher-payments/internal/ledger"
)

// statusFor maps ledger errors to an HTTP status and client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidSignature):
		return http.StatusForbidden, "Invalid signature"
	case errors.Is(err, ledger.ErrAlreadyPaid):
		return http.StatusConflict, "Already paid"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "Insufficient funds"
	case errors.Is(err, ledger.ErrValueOverflow),
		errors.Is(err, ledger.ErrInvalidSignatureLength),
		errors.Is(err, ledger.ErrInvalidSignatureVersion),
		errors.Is(err, ledger.ErrBalanceOverflow),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
