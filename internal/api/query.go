package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/0gfoundation/0g-voucher-payments/internal/ledger"
	"github.com/0gfoundation/0g-voucher-payments/internal/signature"
	"github.com/0gfoundation/0g-voucher-payments/internal/voucher"
)

// RegisterQuery mounts the read-only routes. None of them touch ledger state
// except to read it.
func (h *Handler) RegisterQuery(rg *gin.RouterGroup) {
	rg.POST("/message-hash", h.handleMessageHash)
	rg.POST("/eth-signed-message", h.handleETHSignedMessage)
	rg.POST("/split-signature", h.handleSplitSignature)
	rg.POST("/recover-signer", h.handleRecoverSigner)
	rg.POST("/verify", h.handleVerify)

	rg.GET("/claims/:recipient/:nonce", h.handleIsClaimed)
	rg.GET("/balances/:address", h.handleBalance)
	rg.GET("/treasury", h.handleTreasury)
	rg.GET("/issuer", h.handleIssuer)
}

type voucherBody struct {
	Recipient string  `json:"recipient" binding:"required"`
	Amount    decimal `json:"amount" binding:"required"`
	Message   string  `json:"message"`
	Nonce     decimal `json:"nonce" binding:"required"`
}

func (b *voucherBody) parse(c *gin.Context) (voucher.Voucher, bool) {
	recipient, err := parseAddress("recipient", b.Recipient)
	if err != nil {
		badRequest(c, err.Error())
		return voucher.Voucher{}, false
	}
	amount, err := parseUint("amount", string(b.Amount))
	if err != nil {
		badRequest(c, err.Error())
		return voucher.Voucher{}, false
	}
	nonce, err := parseUint("nonce", string(b.Nonce))
	if err != nil {
		badRequest(c, err.Error())
		return voucher.Voucher{}, false
	}
	return voucher.Voucher{Recipient: recipient, Amount: amount, Message: b.Message, Nonce: nonce}, true
}

func (h *Handler) handleMessageHash(c *gin.Context) {
	var body voucherBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	v, ok := body.parse(c)
	if !ok {
		return
	}
	hash, err := voucher.MessageHash(&v)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_hash": hash.Hex()})
}

func (h *Handler) handleETHSignedMessage(c *gin.Context) {
	var body struct {
		Hash string `json:"hash" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	hash, err := parseHash("hash", body.Hash)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"eth_signed_message_hash": voucher.ETHSignedMessageHash(hash).Hex()})
}

func (h *Handler) handleSplitSignature(c *gin.Context) {
	var body struct {
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	sig, err := signature.ParseHex(body.Signature)
	if err != nil {
		badRequest(c, "invalid signature hex")
		return
	}
	parts, err := signature.Split(sig)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"r": hexutil.Encode(parts.R[:]),
		"s": hexutil.Encode(parts.S[:]),
		"v": parts.V,
	})
}

func (h *Handler) handleRecoverSigner(c *gin.Context) {
	var body struct {
		Hash      string `json:"hash" binding:"required"` // the EIP-191 signed hash
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	hash, err := parseHash("hash", body.Hash)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	sig, err := signature.ParseHex(body.Signature)
	if err != nil {
		badRequest(c, "invalid signature hex")
		return
	}
	signer, err := signature.RecoverSigner(sig, hash)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signer": signer.Hex()})
}

func (h *Handler) handleVerify(c *gin.Context) {
	var body struct {
		voucherBody
		Signer    string `json:"signer" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	signer, err := parseAddress("signer", body.Signer)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	v, ok := body.parse(c)
	if !ok {
		return
	}
	sig, err := signature.ParseHex(body.Signature)
	if err != nil {
		badRequest(c, "invalid signature hex")
		return
	}
	valid, err := ledger.Verify(signer, v, sig)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

func (h *Handler) handleIsClaimed(c *gin.Context) {
	recipient, err := parseAddress("recipient", c.Param("recipient"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	nonce, err := parseUint("nonce", c.Param("nonce"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	claimed, err := h.ledger.IsClaimed(c.Request.Context(), recipient, nonce)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": claimed})
}

func (h *Handler) handleBalance(c *gin.Context) {
	addr, err := parseAddress("address", c.Param("address"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	bal, err := h.ledger.BalanceOf(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "balance": bal.String()})
}

func (h *Handler) handleTreasury(c *gin.Context) {
	t, err := h.ledger.Treasury(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"treasury": t.String()})
}

func (h *Handler) handleIssuer(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"issuer": h.ledger.Issuer().Hex()})
}
