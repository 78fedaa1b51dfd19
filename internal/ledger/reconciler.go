package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"simplychain/backend/pkg/logging"
)

// GrantParams describes one payment intent to reconcile.
type GrantParams struct {
	PaymentIntentID string
	Wallet          string
	Credits         int64
	PackageID       string
	PackageName     string
	AmountTotal     int64
	Currency        string
}

// GrantResult reports the outcome of a reconciliation attempt.
type GrantResult struct {
	// Applied is false when the payment intent was already reconciled and
	// this call was a no-op.
	Applied bool
	// Balance is the account balance after the grant. Zero when not applied.
	Balance int64
	// AccountCreated is true when the grant auto-provisioned the account.
	AccountCreated bool
}

const uniqueViolation = pq.ErrorCode("23505")

// Grant credits a wallet for a completed payment, at most once per payment
// intent. The payment record insert and the balance update commit atomically;
// a replay of the same payment intent returns Applied=false without touching
// the balance.
func (l *Ledger) Grant(ctx context.Context, p GrantParams) (*GrantResult, error) {
	if p.PaymentIntentID == "" || p.Wallet == "" {
		return nil, fmt.Errorf("%w: payment intent id and wallet are required", ErrInvalidCredits)
	}
	if p.Credits <= 0 {
		return nil, fmt.Errorf("%w: credits must be positive", ErrInvalidCredits)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	// 1. Payment-intent guard: a payments row means the grant already ran.
	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM simplychain.payments WHERE payment_intent_id = $1)
	`, p.PaymentIntentID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check payment record: %w", err)
	}
	if exists {
		l.logger.WithFields(logging.Fields{
			"payment_intent_id": p.PaymentIntentID,
			"wallet":            p.Wallet,
		}).Info("Payment already reconciled, skipping grant")
		return &GrantResult{Applied: false}, nil
	}

	// 2. Lock and update the account balance, creating the account on first
	// purchase.
	var balance int64
	var accountCreated bool
	err = tx.QueryRowContext(ctx, `
		SELECT crediti FROM simplychain.accounts
		WHERE wallet_address = $1
		FOR UPDATE
	`, p.Wallet).Scan(&balance)

	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO simplychain.accounts (
				wallet_address, crediti, is_active, pending,
				crediti_updated_at, crediti_updated_by
			) VALUES ($1, $2, TRUE, FALSE, NOW(), $3)
			RETURNING crediti
		`, p.Wallet, p.Credits, "payment:"+p.PaymentIntentID).Scan(&balance)
		if err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		accountCreated = true
	} else if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	} else {
		err = tx.QueryRowContext(ctx, `
			UPDATE simplychain.accounts
			SET crediti = crediti + $1,
			    crediti_updated_at = NOW(),
			    crediti_updated_by = $2,
			    updated_at = NOW()
			WHERE wallet_address = $3
			RETURNING crediti
		`, p.Credits, "payment:"+p.PaymentIntentID, p.Wallet).Scan(&balance)
		if err != nil {
			return nil, fmt.Errorf("failed to update balance: %w", err)
		}
	}

	// 3. Record the payment. The primary key resolves the race between two
	// concurrent deliveries of the same payment intent: the loser rolls back
	// and reports a no-op.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO simplychain.payments (
			payment_intent_id, wallet_address, credits,
			package_id, package_name, amount_total, currency
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.PaymentIntentID, p.Wallet, p.Credits, p.PackageID, p.PackageName, p.AmountTotal, p.Currency)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			l.logger.WithFields(logging.Fields{
				"payment_intent_id": p.PaymentIntentID,
				"wallet":            p.Wallet,
			}).Info("Concurrent reconciliation won the race, skipping grant")
			return &GrantResult{Applied: false}, nil
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit grant: %w", err)
	}

	l.logger.WithFields(logging.Fields{
		"payment_intent_id": p.PaymentIntentID,
		"wallet":            p.Wallet,
		"credits":           p.Credits,
		"new_balance":       balance,
		"package_id":        p.PackageID,
		"account_created":   accountCreated,
	}).Info("Credited account from completed payment")

	return &GrantResult{Applied: true, Balance: balance, AccountCreated: accountCreated}, nil
}
