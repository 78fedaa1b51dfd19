package handlers

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"simplychain/backend/internal/ledger"
	"simplychain/backend/pkg/api/simplychain"
	"simplychain/backend/pkg/auth"
	"simplychain/backend/pkg/config"
	"simplychain/backend/pkg/logging"
)

// ListCreditPackages returns the purchasable package catalog.
func ListCreditPackages(c *gin.Context) {
	pkgs := ledger.Packages()
	out := make([]simplychain.CreditPackage, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, simplychain.CreditPackage{
			ID:         p.ID,
			Name:       p.Name,
			Credits:    p.Credits,
			PriceCents: p.PriceCents,
			Currency:   p.Currency,
		})
	}
	c.JSON(200, gin.H{"packages": out})
}

// CreateCheckoutSession opens a Stripe Checkout Session for a credit package.
// The session metadata carries everything reconciliation needs, so the grant
// works even when the package catalog changes between purchase and webhook.
func CreateCheckoutSession(c *gin.Context) {
	wallet := c.GetString(auth.CtxWallet)
	if wallet == "" {
		c.JSON(401, simplychain.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req simplychain.CreateCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "packageId is required"})
		return
	}

	pkg, err := ledger.PackageByID(req.PackageID)
	if err != nil {
		c.JSON(404, simplychain.ErrorResponse{Error: fmt.Sprintf("Unknown package: %s", req.PackageID)})
		return
	}

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		logger.Error("STRIPE_SECRET_KEY not configured")
		c.JSON(503, simplychain.ErrorResponse{Error: "Payments not configured"})
		return
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = config.GetEnv("CHECKOUT_SUCCESS_URL", "")
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = config.GetEnv("CHECKOUT_CANCEL_URL", "")
	}
	if successURL == "" || cancelURL == "" {
		c.JSON(400, simplychain.ErrorResponse{Error: "successUrl and cancelUrl are required"})
		return
	}

	// Metadata drives webhook reconciliation; credits is a string because
	// Stripe metadata values are strings.
	metadata := map[string]string{
		"walletAddress": wallet,
		"credits":       strconv.FormatInt(pkg.Credits, 10),
		"packageId":     pkg.ID,
		"packageName":   pkg.Name,
	}
	if req.BillingType != "" {
		metadata["billingType"] = req.BillingType
	}
	if req.BillingData != "" {
		metadata["billingData"] = req.BillingData
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(pkg.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(fmt.Sprintf("%s credit package", pkg.Name)),
						Description: stripe.String(fmt.Sprintf("%d notarization credits", pkg.Credits)),
					},
					UnitAmount: stripe.Int64(pkg.PriceCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
	}

	if account, err := ledgerSvc.GetAccount(c.Request.Context(), wallet); err == nil && account.Email != "" {
		params.CustomerEmail = stripe.String(account.Email)
	}

	sess, err := session.New(params)
	if err != nil {
		logger.WithError(err).WithField("wallet", wallet).Error("Failed to create Stripe checkout session")
		recordCheckoutSession("error")
		c.JSON(502, simplychain.ErrorResponse{Error: "Failed to create checkout session"})
		return
	}

	logger.WithFields(logging.Fields{
		"wallet":     wallet,
		"package_id": pkg.ID,
		"session_id": sess.ID,
	}).Info("Created Stripe checkout session")
	recordCheckoutSession("created")

	c.JSON(200, simplychain.CreateCheckoutSessionResponse{
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
	})
}

// ConfirmCheckout polls a checkout session and reconciles it if paid. This is
// the redundant path behind the webhook: the browser lands on the success URL
// and asks the backend to settle immediately instead of waiting for Stripe's
// delivery. The grant's idempotency guard makes the overlap harmless.
func ConfirmCheckout(c *gin.Context) {
	wallet := c.GetString(auth.CtxWallet)
	if wallet == "" {
		c.JSON(401, simplychain.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req simplychain.ConfirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "sessionId is required"})
		return
	}

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		logger.Error("STRIPE_SECRET_KEY not configured")
		c.JSON(503, simplychain.ErrorResponse{Error: "Payments not configured"})
		return
	}

	// Expanded line items let credit resolution fall back to product
	// metadata when the session metadata was created without a credits key.
	getParams := &stripe.CheckoutSessionParams{}
	getParams.AddExpand("line_items.data.price.product")
	sess, err := session.Get(req.SessionID, getParams)
	if err != nil {
		logger.WithError(err).WithField("session_id", req.SessionID).Warn("Failed to retrieve checkout session")
		c.JSON(502, simplychain.ErrorResponse{Error: "Failed to retrieve checkout session"})
		return
	}

	// The session must belong to the caller; otherwise any authenticated
	// wallet could replay someone else's session id.
	sessionWallet, err := auth.StorageAddress(sess.Metadata["walletAddress"])
	if err != nil || sessionWallet != wallet {
		c.JSON(403, simplychain.ErrorResponse{Error: "Session does not belong to this wallet"})
		return
	}

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		c.JSON(200, simplychain.ConfirmCheckoutResponse{Status: "unpaid"})
		return
	}

	credits, _ := ledger.ResolveCredits(sess.Metadata["credits"], sessionProductCredits(sess), sess.Metadata["packageId"])
	if credits <= 0 {
		logger.WithField("session_id", req.SessionID).Error("Paid session with unresolvable credit amount")
		c.JSON(502, simplychain.ErrorResponse{Error: "Could not resolve credit amount"})
		return
	}

	paymentIntentID := req.SessionID
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		paymentIntentID = sess.PaymentIntent.ID
	}

	res, err := ledgerSvc.Grant(c.Request.Context(), ledger.GrantParams{
		PaymentIntentID: paymentIntentID,
		Wallet:          wallet,
		Credits:         credits,
		PackageID:       sess.Metadata["packageId"],
		PackageName:     sess.Metadata["packageName"],
		AmountTotal:     sess.AmountTotal,
		Currency:        string(sess.Currency),
	})
	if err != nil {
		logger.WithError(err).WithField("session_id", req.SessionID).Error("Failed to reconcile confirmed checkout")
		c.JSON(500, simplychain.ErrorResponse{Error: "Failed to reconcile payment"})
		return
	}

	if !res.Applied {
		resp := simplychain.ConfirmCheckoutResponse{Status: "already_processed"}
		if account, err := ledgerSvc.GetAccount(c.Request.Context(), wallet); err == nil {
			resp.CurrentBalance = account.Credits
		}
		c.JSON(200, resp)
		return
	}

	recordCreditsGranted("confirm", credits)
	go sendPurchaseConfirmation(wallet, sess.Metadata["packageName"], credits, res.Balance)

	c.JSON(200, simplychain.ConfirmCheckoutResponse{
		Status:         "granted",
		Credits:        credits,
		CurrentBalance: res.Balance,
	})
}

// sessionProductCredits collects the credits metadata of each line-item
// product from an expanded checkout session.
func sessionProductCredits(sess *stripe.CheckoutSession) []string {
	if sess.LineItems == nil {
		return nil
	}
	out := make([]string, 0, len(sess.LineItems.Data))
	for _, item := range sess.LineItems.Data {
		if item.Price != nil && item.Price.Product != nil {
			out = append(out, item.Price.Product.Metadata["credits"])
		}
	}
	return out
}
