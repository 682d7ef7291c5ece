package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SignedRequest is the JSON payload inside X-Signed-Message (fields sorted).
type SignedRequest struct {
	Action    string          `json:"action"`
	ExpiresAt int64           `json:"expires_at"`
	Nonce     string          `json:"nonce"`
	Payload   json.RawMessage `json:"payload"`
}

const (
	maxFutureWindow = 5 * time.Minute
	nonceKeyPrefix  = "payments:auth:nonce:" // + lowercase wallet + ":" + nonce

	// Context keys set by Middleware.
	WalletKey = "wallet_address"
	ActionKey = "signed_action"
)

// Middleware returns a Gin handler that validates EIP-191 wallet signatures.
// On success the checksummed wallet address is stored under WalletKey and the
// signed action under ActionKey.
func Middleware(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletAddr := c.GetHeader("X-Wallet-Address")
		signedMsgB64 := c.GetHeader("X-Signed-Message")
		sigHex := c.GetHeader("X-Wallet-Signature")

		if walletAddr == "" || signedMsgB64 == "" || sigHex == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth headers"})
			return
		}
		if !common.IsHexAddress(walletAddr) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid wallet address"})
			return
		}

		msgBytes, err := base64.StdEncoding.DecodeString(signedMsgB64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Signed-Message encoding"})
			return
		}

		var req SignedRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signed message JSON"})
			return
		}
		if req.Nonce == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing nonce"})
			return
		}

		now := time.Now().Unix()
		if req.ExpiresAt <= now {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request expired"})
			return
		}
		if req.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "expires_at too far in future"})
			return
		}

		if !strings.HasPrefix(sigHex, "0x") {
			sigHex = "0x" + sigHex
		}
		sig, err := hexutil.Decode(sigHex)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature hex"})
			return
		}

		wallet := common.HexToAddress(walletAddr)
		recovered, err := Recover(msgBytes, sig)
		if err != nil || recovered != wallet {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		// Per-wallet nonce dedup via Redis SET NX, kept until the request would expire anyway
		ttl := time.Duration(req.ExpiresAt-now) * time.Second
		set, err := rdb.SetNX(c.Request.Context(), nonceKey(wallet, req.Nonce), 1, ttl).Result()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !set {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "nonce already used"})
			return
		}

		c.Set(WalletKey, wallet)
		c.Set(ActionKey, req.Action)
		c.Next()
	}
}

// Wallet returns the address authenticated by Middleware.
func Wallet(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(WalletKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

// RequireAction rejects requests whose signed action differs from action.
func RequireAction(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ActionKey) != action {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "signed action mismatch"})
			return
		}
		c.Next()
	}
}

// AdminMiddleware accepts only requests carrying "Authorization: Bearer <adminKey>".
func AdminMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// nonceKey scopes a request nonce to the wallet that signed it.
func nonceKey(wallet common.Address, nonce string) string {
	return nonceKeyPrefix + strings.ToLower(wallet.Hex()) + ":" + nonce
}
