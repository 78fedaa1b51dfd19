package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"simplychain/backend/internal/ledger"
	"simplychain/backend/pkg/auth"
	"simplychain/backend/pkg/logging"
)

// StripeWebhookPayload is the outer Stripe event envelope. The object is
// parsed per event type.
type StripeWebhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// StripeCheckoutSessionObject for checkout.session.completed events
type StripeCheckoutSessionObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	PaymentStatus string `json:"payment_status"` // paid, unpaid, no_payment_required
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	Metadata      struct {
		WalletAddress string `json:"walletAddress"`
		Credits       string `json:"credits"`
		PackageID     string `json:"packageId"`
		PackageName   string `json:"packageName"`
	} `json:"metadata"`
	LineItems struct {
		Data []struct {
			Price struct {
				Product struct {
					Metadata struct {
						Credits string `json:"credits"`
					} `json:"metadata"`
				} `json:"product"`
			} `json:"price"`
		} `json:"data"`
	} `json:"line_items"`
}

// productCredits collects the credits metadata of each line-item product,
// in order. Present only when the event was created with expanded line items.
func (s *StripeCheckoutSessionObject) productCredits() []string {
	out := make([]string, 0, len(s.LineItems.Data))
	for _, item := range s.LineItems.Data {
		out = append(out, item.Price.Product.Metadata.Credits)
	}
	return out
}

// verifyStripeSignature verifies the Stripe webhook signature using HMAC-SHA256
func verifyStripeSignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	// Parse Stripe signature header format: t=timestamp,v1=signature,v1=signature
	elements := strings.Split(signature, ",")
	var timestamp string
	var signatures []string

	for _, element := range elements {
		parts := strings.SplitN(element, "=", 2)
		if len(parts) != 2 {
			continue
		}

		switch parts[0] {
		case "t":
			timestamp = parts[1]
		case "v1":
			signatures = append(signatures, parts[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		logger.Error("Invalid Stripe signature format: missing timestamp or signatures")
		return false
	}

	// Verify timestamp is within tolerance (5 minutes)
	timestampInt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		logger.WithFields(logging.Fields{
			"timestamp": timestamp,
			"error":     err,
		}).Error("Failed to parse Stripe webhook timestamp")
		return false
	}

	now := time.Now().Unix()
	if now-timestampInt > 300 { // 5 minutes tolerance
		logger.WithFields(logging.Fields{
			"timestamp":   timestampInt,
			"current":     now,
			"age_seconds": now - timestampInt,
		}).Warn("Stripe webhook timestamp too old")
		return false
	}

	// Create signed payload: timestamp + "." + payload
	signedPayload := timestamp + "." + string(payload)

	// Calculate expected signature using HMAC-SHA256
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expectedSignature := hex.EncodeToString(mac.Sum(nil))

	// Compare with provided signatures using constant-time comparison
	for _, providedSig := range signatures {
		if hmac.Equal([]byte(expectedSignature), []byte(providedSig)) {
			return true
		}
	}

	logger.WithFields(logging.Fields{
		"expected":    expectedSignature,
		"provided":    signatures,
		"timestamp":   timestamp,
		"payload_len": len(payload),
	}).Warn("Stripe signature verification failed")

	return false
}

// HandleStripeWebhook receives Stripe webhook events. Signature verification
// and event-level idempotency happen here; the credit grant itself carries a
// second idempotency guard keyed on the payment intent.
func HandleStripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(400, gin.H{"error": "Failed to read request body"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")

	if webhookSecret == "" {
		logger.Error("STRIPE_WEBHOOK_SECRET not configured; rejecting webhook")
		c.JSON(503, gin.H{"error": "Webhook verification not configured"})
		return
	}
	if !verifyStripeSignature(body, signature, webhookSecret) {
		logger.WithFields(logging.Fields{
			"signature": signature,
		}).Warn("Invalid Stripe webhook signature")
		recordWebhookEvent("stripe", "signature_failure")
		c.JSON(401, gin.H{"error": "Invalid signature"})
		return
	}

	var payload StripeWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.WithFields(logging.Fields{
			"error": err.Error(),
		}).Warn("Invalid Stripe webhook payload")
		c.JSON(400, gin.H{"error": "Invalid payload"})
		return
	}

	logger.WithFields(logging.Fields{
		"event_id":   payload.ID,
		"event_type": payload.Type,
	}).Info("Received Stripe webhook")

	// Check idempotency - skip if already processed
	if isWebhookAlreadyProcessed("stripe", payload.ID) {
		logger.WithField("event_id", payload.ID).Debug("Stripe webhook already processed, skipping")
		c.JSON(200, gin.H{"received": true})
		return
	}

	switch payload.Type {
	case "checkout.session.completed":
		err = handleCheckoutSessionCompleted(c.Request.Context(), payload.Data.Object)
	default:
		logger.WithField("event_type", payload.Type).Debug("Ignoring unhandled Stripe event type")
	}

	if err != nil {
		logger.WithError(err).WithField("event_type", payload.Type).Error("Failed to process Stripe webhook")
		recordWebhookEvent("stripe", "error")
		c.JSON(500, gin.H{"error": "Failed to process webhook"})
		return
	}

	markWebhookProcessed("stripe", payload.ID, payload.Type)
	recordWebhookEvent("stripe", "processed")
	c.JSON(200, gin.H{"received": true})
}

// handleCheckoutSessionCompleted reconciles a paid checkout session into a
// credit grant. Unpaid sessions are acknowledged without granting so Stripe
// does not retry them.
func handleCheckoutSessionCompleted(ctx context.Context, sessionData []byte) error {
	var sess StripeCheckoutSessionObject
	if err := json.Unmarshal(sessionData, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	if sess.PaymentStatus != "paid" {
		logger.WithFields(logging.Fields{
			"session_id":     sess.ID,
			"payment_status": sess.PaymentStatus,
		}).Warn("Checkout session completed but not paid, skipping grant")
		return nil
	}

	if sess.Metadata.WalletAddress == "" {
		logger.WithField("session_id", sess.ID).Warn("Checkout session has no wallet metadata, skipping")
		return nil
	}
	wallet, err := auth.StorageAddress(sess.Metadata.WalletAddress)
	if err != nil {
		return fmt.Errorf("invalid wallet address in session metadata: %w", err)
	}

	credits, source := ledger.ResolveCredits(sess.Metadata.Credits, sess.productCredits(), sess.Metadata.PackageID)
	if credits <= 0 {
		// Zero resolved credits means a misconfigured session, not a delivery
		// failure. Acknowledge so Stripe does not redeliver forever.
		logger.WithFields(logging.Fields{
			"session_id": sess.ID,
			"package_id": sess.Metadata.PackageID,
		}).Warn("Could not resolve credit amount for paid session, skipping grant")
		return nil
	}

	// A session without an expanded payment intent still needs a stable
	// idempotency key; the session id serves.
	paymentIntentID := sess.PaymentIntent
	if paymentIntentID == "" {
		paymentIntentID = sess.ID
	}

	res, err := ledgerSvc.Grant(ctx, ledger.GrantParams{
		PaymentIntentID: paymentIntentID,
		Wallet:          wallet,
		Credits:         credits,
		PackageID:       sess.Metadata.PackageID,
		PackageName:     sess.Metadata.PackageName,
		AmountTotal:     sess.AmountTotal,
		Currency:        sess.Currency,
	})
	if err != nil {
		return fmt.Errorf("failed to grant credits: %w", err)
	}

	logger.WithFields(logging.Fields{
		"session_id":    sess.ID,
		"wallet":        wallet,
		"credits":       credits,
		"credit_source": string(source),
		"applied":       res.Applied,
	}).Info("Processed checkout.session.completed")

	if res.Applied {
		recordCreditsGranted("webhook", credits)
		go sendPurchaseConfirmation(wallet, sess.Metadata.PackageName, credits, res.Balance)
	}
	return nil
}

// isWebhookAlreadyProcessed checks if a webhook event was already processed
func isWebhookAlreadyProcessed(provider, eventID string) bool {
	if db == nil {
		return false
	}
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM simplychain.webhook_events WHERE provider = $1 AND event_id = $2)
	`, provider, eventID).Scan(&exists)
	return err == nil && exists
}

// markWebhookProcessed marks a webhook event as processed
func markWebhookProcessed(provider, eventID, eventType string) {
	if db == nil {
		return
	}
	_, err := db.Exec(`
		INSERT INTO simplychain.webhook_events (provider, event_id, event_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID, eventType)
	if err != nil {
		logger.WithError(err).Warn("Failed to mark webhook as processed")
	}
}

// sendPurchaseConfirmation emails the account about a completed purchase.
// Failures are logged only; the grant has already committed.
func sendPurchaseConfirmation(wallet, packageName string, credits, balance int64) {
	if !emailService.IsConfigured() {
		return
	}
	account, err := ledgerSvc.GetAccount(context.Background(), wallet)
	if err != nil {
		logger.WithError(err).WithField("wallet", wallet).Warn("Failed to load account for purchase email")
		return
	}
	if account.Email == "" {
		logger.WithField("wallet", wallet).Debug("No email on account, skipping purchase confirmation")
		return
	}
	if err := emailService.SendPurchaseConfirmationEmail(account.Email, account.CompanyName, packageName, credits, balance); err != nil {
		logger.WithError(err).WithFields(logging.Fields{
			"wallet": wallet,
			"email":  account.Email,
		}).Error("Failed to send purchase confirmation email")
	}
}
