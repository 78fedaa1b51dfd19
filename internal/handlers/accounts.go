package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"simplychain/backend/internal/ledger"
	"simplychain/backend/pkg/api/simplychain"
	"simplychain/backend/pkg/auth"
	"simplychain/backend/pkg/logging"
)

func accountToAPI(a *ledger.Account) simplychain.Account {
	return simplychain.Account{
		WalletAddress:    a.WalletAddress,
		CompanyName:      a.CompanyName,
		Email:            a.Email,
		Credits:          a.Credits,
		IsActive:         a.IsActive,
		Pending:          a.Pending,
		CreditsUpdatedAt: a.CreditsUpdatedAt,
		CreditsUpdatedBy: a.CreditsUpdatedBy,
		CreatedAt:        a.CreatedAt,
	}
}

// GetMyAccount returns the authenticated wallet's account.
func GetMyAccount(c *gin.Context) {
	wallet := c.GetString(auth.CtxWallet)
	if wallet == "" {
		c.JSON(401, simplychain.ErrorResponse{Error: "Authentication required"})
		return
	}

	account, err := ledgerSvc.GetAccount(c.Request.Context(), wallet)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(200, accountToAPI(account))
}

// RegisterAccount creates a pending account. Open endpoint: anyone with a
// wallet can register, but the account stays unusable until an admin
// activates it.
func RegisterAccount(c *gin.Context) {
	var req simplychain.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "walletAddress, companyName and email are required"})
		return
	}

	wallet, err := auth.StorageAddress(req.WalletAddress)
	if err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "Invalid wallet address"})
		return
	}

	if err := ledgerSvc.Register(c.Request.Context(), wallet, req.CompanyName, req.Email); err != nil {
		respondLedgerError(c, err)
		return
	}
	recordAccountOperation("register")
	c.JSON(201, gin.H{"walletAddress": wallet, "pending": true})
}

// ListAccounts returns all accounts; ?pending=true filters to registrations
// awaiting activation. Admin only.
func ListAccounts(c *gin.Context) {
	var pending *bool
	switch c.Query("pending") {
	case "true":
		v := true
		pending = &v
	case "false":
		v := false
		pending = &v
	}

	accounts, err := ledgerSvc.ListAccounts(c.Request.Context(), pending)
	if err != nil {
		logger.WithError(err).Error("Failed to list accounts")
		c.JSON(500, simplychain.ErrorResponse{Error: "Failed to list accounts"})
		return
	}

	out := make([]simplychain.Account, 0, len(accounts))
	for i := range accounts {
		out = append(out, accountToAPI(&accounts[i]))
	}
	c.JSON(200, gin.H{"accounts": out})
}

// AdminGetAccount returns any account by wallet. Admin only.
func AdminGetAccount(c *gin.Context) {
	wallet, err := auth.StorageAddress(c.Param("wallet"))
	if err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "Invalid wallet address"})
		return
	}

	account, err := ledgerSvc.GetAccount(c.Request.Context(), wallet)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(200, accountToAPI(account))
}

// ActivateAccount activates a pending account with a starting balance.
// Admin only.
func ActivateAccount(c *gin.Context) {
	wallet, err := auth.StorageAddress(c.Param("wallet"))
	if err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "Invalid wallet address"})
		return
	}

	var req simplychain.ActivateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(400, simplychain.ErrorResponse{Error: "Invalid request body"})
		return
	}

	actor := adminActor(c)
	if err := ledgerSvc.Activate(c.Request.Context(), wallet, req.InitialCredits, actor); err != nil {
		respondLedgerError(c, err)
		return
	}
	recordAccountOperation("activate")

	go sendActivationNotice(wallet, req.InitialCredits)

	account, err := ledgerSvc.GetAccount(c.Request.Context(), wallet)
	if err != nil {
		c.JSON(200, gin.H{"walletAddress": wallet, "isActive": true})
		return
	}
	c.JSON(200, accountToAPI(account))
}

// DeactivateAccount suspends an account, keeping its balance. Admin only.
func DeactivateAccount(c *gin.Context) {
	wallet, err := auth.StorageAddress(c.Param("wallet"))
	if err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "Invalid wallet address"})
		return
	}

	actor := adminActor(c)
	if err := ledgerSvc.Deactivate(c.Request.Context(), wallet, actor); err != nil {
		respondLedgerError(c, err)
		return
	}
	recordAccountOperation("deactivate")
	c.JSON(200, gin.H{"walletAddress": wallet, "isActive": false})
}

// SetCredits sets an account balance to an absolute value. Admin only.
func SetCredits(c *gin.Context) {
	wallet, err := auth.StorageAddress(c.Param("wallet"))
	if err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "Invalid wallet address"})
		return
	}

	var req simplychain.SetCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "credits is required"})
		return
	}

	actor := adminActor(c)
	balance, err := ledgerSvc.SetCredits(c.Request.Context(), wallet, req.Credits, actor)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	recordAccountOperation("set_credits")

	logger.WithFields(logging.Fields{
		"wallet":  wallet,
		"credits": balance,
		"actor":   actor,
	}).Info("Admin set account balance")
	c.JSON(200, gin.H{"walletAddress": wallet, "credits": balance})
}

// adminActor identifies the admin performing a mutation for the audit trail.
func adminActor(c *gin.Context) string {
	if wallet := c.GetString(auth.CtxWallet); wallet != "" {
		return "admin:" + wallet
	}
	return "admin:service"
}

// sendActivationNotice emails the account that it was activated.
func sendActivationNotice(wallet string, initialCredits int64) {
	if !emailService.IsConfigured() {
		return
	}
	account, err := ledgerSvc.GetAccount(context.Background(), wallet)
	if err != nil || account.Email == "" {
		return
	}
	if err := emailService.SendAccountActivatedEmail(account.Email, account.CompanyName, initialCredits); err != nil {
		logger.WithError(err).WithField("wallet", wallet).Error("Failed to send activation email")
	}
}
