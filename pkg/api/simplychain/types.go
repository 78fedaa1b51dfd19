// Package simplychain defines the request and response types exchanged over
// the SimplyChain HTTP API. Handlers and API clients share these so the wire
// contract lives in one place.
package simplychain

import "time"

// Account represents a company account as returned by the API.
type Account struct {
	WalletAddress    string     `json:"walletAddress"`
	CompanyName      string     `json:"companyName,omitempty"`
	Email            string     `json:"email,omitempty"`
	Credits          int64      `json:"credits"`
	IsActive         bool       `json:"isActive"`
	Pending          bool       `json:"pending"`
	CreditsUpdatedAt *time.Time `json:"creditsUpdatedAt,omitempty"`
	CreditsUpdatedBy string     `json:"creditsUpdatedBy,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// CreditPackage describes a purchasable credit bundle.
type CreditPackage struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Credits    int64  `json:"credits"`
	PriceCents int64  `json:"priceCents"`
	Currency   string `json:"currency"`
}

// NotarizationRecord is one hash committed to the chain ledger.
type NotarizationRecord struct {
	ID        string    `json:"id"`
	Wallet    string    `json:"wallet"`
	Name      string    `json:"nome"`
	Hash      string    `json:"hash"`
	BatchID   string    `json:"batchId,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// WalletNonceRequest asks for a login message to sign.
type WalletNonceRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
}

// WalletNonceResponse carries the message the wallet must sign.
type WalletNonceResponse struct {
	Message string `json:"message"`
	Nonce   string `json:"nonce"`
}

// WalletLoginRequest completes a wallet login.
type WalletLoginRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	Message       string `json:"message" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
}

// WalletLoginResponse returns the session token.
type WalletLoginResponse struct {
	Token         string `json:"token"`
	WalletAddress string `json:"walletAddress"`
	Role          string `json:"role"`
	ExpiresIn     int64  `json:"expiresIn"`
}

// CreateCheckoutSessionRequest starts a Stripe checkout for a package.
type CreateCheckoutSessionRequest struct {
	PackageID   string `json:"packageId" binding:"required"`
	SuccessURL  string `json:"successUrl"`
	CancelURL   string `json:"cancelUrl"`
	BillingType string `json:"billingType"`
	BillingData string `json:"billingData"`
}

// CreateCheckoutSessionResponse returns the hosted checkout URL.
type CreateCheckoutSessionResponse struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// ConfirmCheckoutRequest asks the backend to poll a session and reconcile it.
type ConfirmCheckoutRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// ConfirmCheckoutResponse reports the reconciliation outcome.
type ConfirmCheckoutResponse struct {
	Status         string `json:"status"` // granted, already_processed, unpaid
	Credits        int64  `json:"credits,omitempty"`
	CurrentBalance int64  `json:"currentBalance,omitempty"`
}

// NotarizeRequest commits a document hash. When BatchID and TxHash are set
// the chain write already happened and only the debit runs.
type NotarizeRequest struct {
	Name    string `json:"nome" binding:"required"`
	Hash    string `json:"hash" binding:"required"`
	BatchID string `json:"batchId"`
	TxHash  string `json:"txHash"`
}

// NotarizeResponse returns the stored record and the remaining balance.
type NotarizeResponse struct {
	ID      string `json:"id"`
	BatchID string `json:"batchId,omitempty"`
	TxHash  string `json:"txHash,omitempty"`
	Credits int64  `json:"credits"`
}

// RegistrationRequest creates a pending account awaiting admin activation.
type RegistrationRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	CompanyName   string `json:"companyName" binding:"required"`
	Email         string `json:"email" binding:"required"`
}

// ActivateAccountRequest activates a pending account with a starting balance.
type ActivateAccountRequest struct {
	InitialCredits int64 `json:"initialCredits"`
}

// SetCreditsRequest sets an account balance to an absolute value.
type SetCreditsRequest struct {
	Credits int64 `json:"credits"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
