package ledger

import (
	"context"
	"fmt"

	"simplychain/backend/pkg/logging"
)

// BatchWriter is the chain-side collaborator: it opens notarization batches
// and appends document hashes to them.
type BatchWriter interface {
	CreateBatch(ctx context.Context, wallet string) (batchID, txHash string, err error)
	AppendHash(ctx context.Context, batchID, hash string) (txHash string, err error)
}

// Notarizer runs the full notarization flow: chain writes first, then the
// guarded one-credit debit. A chain failure leaves the balance untouched.
type Notarizer struct {
	ledger *Ledger
	chain  BatchWriter
	logger logging.Logger
}

// NewNotarizer creates a Notarizer.
func NewNotarizer(l *Ledger, chain BatchWriter, logger logging.Logger) *Notarizer {
	return &Notarizer{ledger: l, chain: chain, logger: logger}
}

// NotarizeResult reports a completed notarization.
type NotarizeResult struct {
	RecordID string
	BatchID  string
	TxHash   string
	Balance  int64
}

// Notarize commits a document hash on chain and debits one credit. The
// balance is pre-checked before any chain call so an account that cannot pay
// never causes an on-chain write, and the final debit re-checks under lock.
func (n *Notarizer) Notarize(ctx context.Context, wallet, name, hash string) (*NotarizeResult, error) {
	log := n.logger.WithFields(logging.Fields{
		"wallet": wallet,
		"hash":   hash,
	})
	log.Info("Notarization requested")

	// Non-locking pre-check. The authoritative check happens in Debit.
	account, err := n.ledger.GetAccount(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if !account.IsActive || account.Pending {
		return nil, ErrAccountNotActive
	}
	if account.Credits <= 0 {
		return nil, ErrInsufficientCredits
	}

	batchID, createTx, err := n.chain.CreateBatch(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	log.WithFields(logging.Fields{
		"batch_id": batchID,
		"tx_hash":  createTx,
	}).Info("Batch created")

	appendTx, err := n.chain.AppendHash(ctx, batchID, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to append hash to batch %s: %w", batchID, err)
	}
	txHash := appendTx
	if txHash == "" {
		txHash = createTx
	}
	log.WithFields(logging.Fields{
		"batch_id": batchID,
		"tx_hash":  txHash,
	}).Info("Hash appended")

	debit, err := n.ledger.Debit(ctx, DebitParams{
		Wallet:  wallet,
		Name:    name,
		Hash:    hash,
		BatchID: batchID,
		TxHash:  txHash,
	})
	if err != nil {
		// The chain write succeeded but the debit did not; surface the
		// balance error and log the orphaned batch for reconciliation.
		log.WithError(err).WithField("batch_id", batchID).Error("Debit failed after chain write")
		return nil, err
	}
	log.WithFields(logging.Fields{
		"record_id":   debit.RecordID,
		"new_balance": debit.Balance,
	}).Info("Notarization debited")

	return &NotarizeResult{
		RecordID: debit.RecordID,
		BatchID:  batchID,
		TxHash:   txHash,
		Balance:  debit.Balance,
	}, nil
}
