package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"simplychain/backend/internal/chain"
	"simplychain/backend/internal/ledger"
	"simplychain/backend/pkg/api/simplychain"
	"simplychain/backend/pkg/auth"
	"simplychain/backend/pkg/logging"
)

// HandleNotarize notarizes a document hash for the authenticated wallet. Two
// modes: when the request already carries batchId and txHash the chain write
// happened client-side and only the guarded debit runs; otherwise the backend
// performs the chain writes itself before debiting.
func HandleNotarize(c *gin.Context) {
	wallet := c.GetString(auth.CtxWallet)
	if wallet == "" {
		c.JSON(401, simplychain.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req simplychain.NotarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, simplychain.ErrorResponse{Error: "nome and hash are required"})
		return
	}

	if req.BatchID != "" && req.TxHash != "" {
		res, err := ledgerSvc.Debit(c.Request.Context(), ledger.DebitParams{
			Wallet:  wallet,
			Name:    req.Name,
			Hash:    req.Hash,
			BatchID: req.BatchID,
			TxHash:  req.TxHash,
		})
		if err != nil {
			recordNotarization("debit_error")
			respondLedgerError(c, err)
			return
		}
		recordCreditsDebited("notarization")
		recordNotarization("debited")
		go sendNotarizationReceipt(wallet, req.Name, req.TxHash, res.Balance)
		c.JSON(200, simplychain.NotarizeResponse{
			ID:      res.RecordID,
			BatchID: req.BatchID,
			TxHash:  req.TxHash,
			Credits: res.Balance,
		})
		return
	}

	res, err := notarizer.Notarize(c.Request.Context(), wallet, req.Name, req.Hash)
	if err != nil {
		var apiErr *chain.APIError
		switch {
		case errors.As(err, &apiErr):
			logger.WithError(err).WithField("wallet", wallet).Error("Chain API rejected notarization")
			recordNotarization("chain_error")
			c.JSON(502, simplychain.ErrorResponse{Error: "Blockchain service unavailable"})
		case errors.Is(err, chain.ErrNotConfigured):
			recordNotarization("chain_error")
			c.JSON(503, simplychain.ErrorResponse{Error: "Blockchain service not configured"})
		default:
			recordNotarization("error")
			respondLedgerError(c, err)
		}
		return
	}

	recordCreditsDebited("notarization")
	recordNotarization("completed")
	go sendNotarizationReceipt(wallet, req.Name, res.TxHash, res.Balance)
	c.JSON(200, simplychain.NotarizeResponse{
		ID:      res.RecordID,
		BatchID: res.BatchID,
		TxHash:  res.TxHash,
		Credits: res.Balance,
	})
}

// HandleListNotarizations returns the caller's notarization history.
func HandleListNotarizations(c *gin.Context) {
	wallet := c.GetString(auth.CtxWallet)
	if wallet == "" {
		c.JSON(401, simplychain.ErrorResponse{Error: "Authentication required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(400, simplychain.ErrorResponse{Error: "limit must be a number"})
			return
		}
		limit = n
	}

	records, err := ledgerSvc.ListNotarizations(c.Request.Context(), wallet, limit)
	if err != nil {
		logger.WithError(err).WithField("wallet", wallet).Error("Failed to list notarizations")
		c.JSON(500, simplychain.ErrorResponse{Error: "Failed to list notarizations"})
		return
	}

	out := make([]simplychain.NotarizationRecord, 0, len(records))
	for _, r := range records {
		out = append(out, simplychain.NotarizationRecord{
			ID:        r.ID,
			Wallet:    r.Wallet,
			Name:      r.Name,
			Hash:      r.Hash,
			BatchID:   r.BatchID,
			TxHash:    r.TxHash,
			CreatedAt: r.CreatedAt,
		})
	}
	c.JSON(200, gin.H{"notarizations": out})
}

// sendNotarizationReceipt emails the account a receipt for a committed hash.
// Failures are logged only; the debit has already committed.
func sendNotarizationReceipt(wallet, documentName, txHash string, balance int64) {
	if !emailService.IsConfigured() {
		return
	}
	account, err := ledgerSvc.GetAccount(context.Background(), wallet)
	if err != nil {
		logger.WithError(err).WithField("wallet", wallet).Warn("Failed to load account for notarization receipt")
		return
	}
	if account.Email == "" {
		return
	}
	if err := emailService.SendNotarizationReceiptEmail(account.Email, account.CompanyName, documentName, txHash, balance); err != nil {
		logger.WithError(err).WithFields(logging.Fields{
			"wallet": wallet,
			"email":  account.Email,
		}).Error("Failed to send notarization receipt email")
	}
}

// respondLedgerError maps ledger errors onto HTTP statuses.
func respondLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		c.JSON(404, simplychain.ErrorResponse{Error: "Account not found"})
	case errors.Is(err, ledger.ErrAccountNotActive):
		c.JSON(403, simplychain.ErrorResponse{Error: "Account is not active"})
	case errors.Is(err, ledger.ErrInsufficientCredits):
		c.JSON(402, simplychain.ErrorResponse{Error: "Insufficient credits"})
	case errors.Is(err, ledger.ErrAccountExists):
		c.JSON(409, simplychain.ErrorResponse{Error: "Account already registered"})
	case errors.Is(err, ledger.ErrInvalidCredits):
		c.JSON(400, simplychain.ErrorResponse{Error: err.Error()})
	default:
		logger.WithError(err).Error("Ledger operation failed")
		c.JSON(500, simplychain.ErrorResponse{Error: "Internal error"})
	}
}
