package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"simplychain/backend/pkg/api/simplychain"
	"simplychain/backend/pkg/auth"
	"simplychain/backend/pkg/config"
	"simplychain/backend/pkg/logging"
)

const nonceTTL = 5 * time.Minute

type issuedNonce struct {
	nonce     string
	expiresAt time.Time
}

// nonceStore holds one outstanding login nonce per wallet. Single-use: a
// successful login consumes it.
var nonceStore = struct {
	mu     sync.Mutex
	nonces map[string]issuedNonce
}{nonces: make(map[string]issuedNonce)}

var jwtSecret []byte

// SetJWTSecret configures the session signing key. Called once at startup.
func SetJWTSecret(secret []byte) {
	jwtSecret = secret
}

// HandleWalletNonce issues a login message for the wallet to sign.
func HandleWalletNonce(c *gin.Context) {
	var req simplychain.WalletNonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "walletAddress is required"})
		return
	}

	wallet, err := auth.StorageAddress(req.WalletAddress)
	if err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "Invalid wallet address"})
		return
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		logger.WithError(err).Error("Failed to generate login nonce")
		c.JSON(500, simplychain.ErrorResponse{Error: "Failed to generate nonce"})
		return
	}
	nonce := hex.EncodeToString(buf)

	nonceStore.mu.Lock()
	nonceStore.nonces[wallet] = issuedNonce{nonce: nonce, expiresAt: time.Now().Add(nonceTTL)}
	nonceStore.mu.Unlock()

	c.JSON(200, simplychain.WalletNonceResponse{
		Message: auth.GenerateWalletAuthMessage(nonce),
		Nonce:   nonce,
	})
}

// HandleWalletLogin verifies a signed login message and issues a session JWT.
func HandleWalletLogin(c *gin.Context) {
	var req simplychain.WalletLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "walletAddress, message and signature are required"})
		return
	}

	wallet, err := auth.StorageAddress(req.WalletAddress)
	if err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "Invalid wallet address"})
		return
	}

	if err := auth.ValidateWalletMessageTimestamp(req.Message); err != nil {
		recordWalletLogin("stale_message")
		c.JSON(401, simplychain.ErrorResponse{Error: "Login message expired"})
		return
	}

	if !consumeNonce(wallet, req.Message) {
		recordWalletLogin("bad_nonce")
		c.JSON(401, simplychain.ErrorResponse{Error: "Unknown or expired nonce"})
		return
	}

	valid, err := auth.VerifyWalletAuth(auth.WalletMessage{
		Address:   req.WalletAddress,
		Message:   req.Message,
		Signature: req.Signature,
	})
	if err != nil || !valid {
		logger.WithFields(logging.Fields{
			"wallet": wallet,
			"error":  fmt.Sprintf("%v", err),
		}).Warn("Wallet signature verification failed")
		recordWalletLogin("bad_signature")
		c.JSON(401, simplychain.ErrorResponse{Error: "Signature verification failed"})
		return
	}

	role := "account"
	if isAdminWallet(wallet) {
		role = "admin"
	}

	email := ""
	if account, err := ledgerSvc.GetAccount(c.Request.Context(), wallet); err == nil {
		email = account.Email
	}

	token, err := auth.GenerateJWT(wallet, email, role, jwtSecret)
	if err != nil {
		logger.WithError(err).Error("Failed to generate session token")
		c.JSON(500, simplychain.ErrorResponse{Error: "Failed to create session"})
		return
	}

	logger.WithFields(logging.Fields{
		"wallet": wallet,
		"role":   role,
	}).Info("Wallet login")
	recordWalletLogin("success")

	c.JSON(200, simplychain.WalletLoginResponse{
		Token:         token,
		WalletAddress: wallet,
		Role:          role,
		ExpiresIn:     int64(auth.SessionTTL.Seconds()),
	})
}

// consumeNonce checks that the signed message carries the nonce issued to the
// wallet and removes it. Returns false for unknown, expired, or mismatched
// nonces.
func consumeNonce(wallet, message string) bool {
	nonceStore.mu.Lock()
	defer nonceStore.mu.Unlock()

	issued, ok := nonceStore.nonces[wallet]
	if !ok {
		return false
	}
	delete(nonceStore.nonces, wallet)

	if time.Now().After(issued.expiresAt) {
		return false
	}
	return strings.Contains(message, "Nonce: "+issued.nonce)
}

// isAdminWallet reports whether the wallet is in the ADMIN_WALLETS allowlist.
func isAdminWallet(wallet string) bool {
	for _, admin := range strings.Split(config.GetEnv("ADMIN_WALLETS", ""), ",") {
		if admin == "" {
			continue
		}
		normalized, err := auth.StorageAddress(strings.TrimSpace(admin))
		if err != nil {
			continue
		}
		if normalized == wallet {
			return true
		}
	}
	return false
}
