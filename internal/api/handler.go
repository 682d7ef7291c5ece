// Package api exposes the claim ledger over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-voucher-payments/internal/auth"
	"github.com/0gfoundation/0g-voucher-payments/internal/claimqueue"
	"github.com/0gfoundation/0g-voucher-payments/internal/ledger"
	"github.com/0gfoundation/0g-voucher-payments/internal/signature"
	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// ActionClaim is the signed action required on claim requests.
const ActionClaim = "claim"

// Handler wires up all ledger routes onto a Gin engine.
type Handler struct {
	ledger *ledger.Ledger
	rdb    *redis.Client
	log    *zap.Logger
}

func NewHandler(l *ledger.Ledger, rdb *redis.Client, log *zap.Logger) *Handler {
	return &Handler{ledger: l, rdb: rdb, log: log}
}

// RegisterClaims mounts the claim routes. auth.Middleware should already be
// applied to the group; the authenticated wallet is the voucher recipient.
func (h *Handler) RegisterClaims(rg *gin.RouterGroup) {
	rg.POST("/claim", auth.RequireAction(ActionClaim), h.handleClaim)
	rg.POST("/claims/queue", auth.RequireAction(ActionClaim), h.handleEnqueue)
}

// RegisterResults mounts the unauthenticated queue result lookup. Request IDs
// are random UUIDs.
func (h *Handler) RegisterResults(rg *gin.RouterGroup) {
	rg.GET("/claims/results/:id", h.handleResult)
}

// RegisterAdmin mounts treasury funding. auth.AdminMiddleware should already
// be applied to the group.
func (h *Handler) RegisterAdmin(rg *gin.RouterGroup) {
	rg.POST("/deposit", h.handleDeposit)
}

// ── Claim ───────────────────────────────────────────────────────────────────

type claimBody struct {
	Amount    decimal `json:"amount" binding:"required"`
	Message   string  `json:"message"`
	Nonce     decimal `json:"nonce" binding:"required"`
	Signature string  `json:"signature" binding:"required"`
}

// voucher builds the claimed voucher for the authenticated recipient.
func (b *claimBody) voucher(c *gin.Context) (voucher.Voucher, []byte, bool) {
	wallet, ok := auth.Wallet(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return voucher.Voucher{}, nil, false
	}
	amount, err := parseUint("amount", string(b.Amount))
	if err != nil {
		badRequest(c, err.Error())
		return voucher.Voucher{}, nil, false
	}
	nonce, err := parseUint("nonce", string(b.Nonce))
	if err != nil {
		badRequest(c, err.Error())
		return voucher.Voucher{}, nil, false
	}
	sig, err := signature.ParseHex(b.Signature)
	if err != nil {
		badRequest(c, "invalid signature hex")
		return voucher.Voucher{}, nil, false
	}
	return voucher.Voucher{Recipient: wallet, Amount: amount, Message: b.Message, Nonce: nonce}, sig, true
}

func (h *Handler) handleClaim(c *gin.Context) {
	var body claimBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	v, sig, ok := body.voucher(c)
	if !ok {
		return
	}

	receipt, err := h.ledger.Claim(c.Request.Context(), v, sig)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) handleEnqueue(c *gin.Context) {
	var body claimBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	v, sig, ok := body.voucher(c)
	if !ok {
		return
	}

	id, err := claimqueue.Enqueue(c.Request.Context(), h.rdb, &claimqueue.Request{Voucher: v, Signature: sig})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": claimqueue.StatusPending})
}

func (h *Handler) handleResult(c *gin.Context) {
	res, err := claimqueue.GetResult(c.Request.Context(), h.rdb, c.Param("id"))
	if errors.Is(err, claimqueue.ErrUnknownRequest) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown request"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ── Admin ───────────────────────────────────────────────────────────────────

type depositBody struct {
	Amount decimal `json:"amount" binding:"required"`
}

func (h *Handler) handleDeposit(c *gin.Context) {
	var body depositBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	amount, err := parseUint("amount", string(body.Amount))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	treasury, err := h.ledger.Deposit(c.Request.Context(), amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"treasury": treasury.String()})
}
