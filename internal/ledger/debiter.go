package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"simplychain/backend/pkg/logging"
)

// DebitParams describes one notarization debit.
type DebitParams struct {
	Wallet  string
	Name    string
	Hash    string
	BatchID string
	TxHash  string
}

// DebitResult reports a successful debit.
type DebitResult struct {
	RecordID string
	Balance  int64
}

// Debit decrements one credit and records the notarization in the same
// transaction. The account row is locked for the duration, so a burst of
// concurrent debits can never take the balance below zero.
func (l *Ledger) Debit(ctx context.Context, p DebitParams) (*DebitResult, error) {
	if p.Wallet == "" || p.Hash == "" {
		return nil, fmt.Errorf("wallet and hash are required")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	var balance int64
	var isActive, pending bool
	err = tx.QueryRowContext(ctx, `
		SELECT crediti, is_active, pending FROM simplychain.accounts
		WHERE wallet_address = $1
		FOR UPDATE
	`, p.Wallet).Scan(&balance, &isActive, &pending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	if !isActive || pending {
		return nil, ErrAccountNotActive
	}
	if balance <= 0 {
		return nil, ErrInsufficientCredits
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE simplychain.accounts
		SET crediti = crediti - 1,
		    crediti_updated_at = NOW(),
		    crediti_updated_by = $1,
		    updated_at = NOW()
		WHERE wallet_address = $2
		RETURNING crediti
	`, "notarization", p.Wallet).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("failed to debit account: %w", err)
	}

	recordID := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO simplychain.notarizations (
			id, wallet_address, nome, hash, batch_id, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, recordID, p.Wallet, p.Name, p.Hash, p.BatchID, p.TxHash)
	if err != nil {
		return nil, fmt.Errorf("failed to record notarization: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit debit: %w", err)
	}

	l.logger.WithFields(logging.Fields{
		"wallet":      p.Wallet,
		"record_id":   recordID,
		"batch_id":    p.BatchID,
		"new_balance": balance,
	}).Info("Debited one credit for notarization")

	return &DebitResult{RecordID: recordID, Balance: balance}, nil
}

// ListNotarizations returns the wallet's notarization records, newest first.
func (l *Ledger) ListNotarizations(ctx context.Context, wallet string, limit int) ([]Notarization, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, wallet_address, nome, hash, batch_id, tx_hash, created_at
		FROM simplychain.notarizations
		WHERE wallet_address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notarizations: %w", err)
	}
	defer rows.Close()

	var records []Notarization
	for rows.Next() {
		var n Notarization
		if err := rows.Scan(&n.ID, &n.Wallet, &n.Name, &n.Hash, &n.BatchID, &n.TxHash, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notarization: %w", err)
		}
		records = append(records, n)
	}
	return records, rows.Err()
}
