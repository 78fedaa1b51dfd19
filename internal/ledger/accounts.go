package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"simplychain/backend/pkg/logging"
)

// Register creates a pending account awaiting admin activation.
func (l *Ledger) Register(ctx context.Context, wallet, companyName, email string) error {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO simplychain.accounts (wallet_address, company_name, email, is_active, pending)
		VALUES ($1, $2, $3, FALSE, TRUE)
		ON CONFLICT (wallet_address) DO NOTHING
	`, wallet, companyName, email)
	if err != nil {
		return fmt.Errorf("failed to register account: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read registration result: %w", err)
	}
	if inserted == 0 {
		return ErrAccountExists
	}

	l.logger.WithFields(logging.Fields{
		"wallet":  wallet,
		"company": companyName,
	}).Info("Registered pending account")
	return nil
}

// Activate marks an account active with a starting balance. The status flip
// and the balance write are tagged fields on the single account row, updated
// in one transaction.
func (l *Ledger) Activate(ctx context.Context, wallet string, initialCredits int64, actor string) error {
	if initialCredits < 0 {
		return fmt.Errorf("%w: initial credits must not be negative", ErrInvalidCredits)
	}
	return l.transition(ctx, wallet, actor, `
		UPDATE simplychain.accounts
		SET is_active = TRUE,
		    pending = FALSE,
		    crediti = $1,
		    crediti_updated_at = NOW(),
		    crediti_updated_by = $2,
		    updated_at = NOW()
		WHERE wallet_address = $3
	`, initialCredits, "Account activated")
}

// Deactivate suspends an account: it keeps its balance but can no longer
// notarize until reactivated.
func (l *Ledger) Deactivate(ctx context.Context, wallet, actor string) error {
	return l.transition(ctx, wallet, actor, `
		UPDATE simplychain.accounts
		SET is_active = FALSE,
		    pending = TRUE,
		    crediti_updated_at = NOW(),
		    crediti_updated_by = $1,
		    updated_at = NOW()
		WHERE wallet_address = $2
	`, nil, "Account deactivated")
}

func (l *Ledger) transition(ctx context.Context, wallet, actor, query string, credits interface{}, logMsg string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	var locked string
	err = tx.QueryRowContext(ctx, `
		SELECT wallet_address FROM simplychain.accounts
		WHERE wallet_address = $1
		FOR UPDATE
	`, wallet).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}

	if credits != nil {
		_, err = tx.ExecContext(ctx, query, credits, actor, wallet)
	} else {
		_, err = tx.ExecContext(ctx, query, actor, wallet)
	}
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account update: %w", err)
	}

	l.logger.WithFields(logging.Fields{
		"wallet": wallet,
		"actor":  actor,
	}).Info(logMsg)
	return nil
}

// SetCredits sets the balance to an absolute value through the same locked
// transaction as grants and debits. Negative values are rejected.
func (l *Ledger) SetCredits(ctx context.Context, wallet string, credits int64, actor string) (int64, error) {
	if credits < 0 {
		return 0, fmt.Errorf("%w: credits must not be negative", ErrInvalidCredits)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	var current int64
	err = tx.QueryRowContext(ctx, `
		SELECT crediti FROM simplychain.accounts
		WHERE wallet_address = $1
		FOR UPDATE
	`, wallet).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock account: %w", err)
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE simplychain.accounts
		SET crediti = $1,
		    crediti_updated_at = NOW(),
		    crediti_updated_by = $2,
		    updated_at = NOW()
		WHERE wallet_address = $3
		RETURNING crediti
	`, credits, actor, wallet).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to set balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit balance update: %w", err)
	}

	l.logger.WithFields(logging.Fields{
		"wallet":      wallet,
		"old_balance": current,
		"new_balance": balance,
		"actor":       actor,
	}).Info("Set account balance")
	return balance, nil
}

const accountColumns = `
	wallet_address, company_name, email, crediti, is_active, pending,
	crediti_updated_at, crediti_updated_by, created_at, updated_at
`

// GetAccount fetches one account by wallet.
func (l *Ledger) GetAccount(ctx context.Context, wallet string) (*Account, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM simplychain.accounts
		WHERE wallet_address = $1
	`, wallet)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return a, nil
}

// ListAccounts returns accounts, optionally filtered by pending status.
func (l *Ledger) ListAccounts(ctx context.Context, pending *bool) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM simplychain.accounts`
	args := []interface{}{}
	if pending != nil {
		query += ` WHERE pending = $1`
		args = append(args, *pending)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var updatedAt sql.NullTime
	var updatedBy sql.NullString
	err := row.Scan(
		&a.WalletAddress, &a.CompanyName, &a.Email, &a.Credits,
		&a.IsActive, &a.Pending, &updatedAt, &updatedBy,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		a.CreditsUpdatedAt = &t
	}
	a.CreditsUpdatedBy = updatedBy.String
	return &a, nil
}
