// Package ledger implements the credit ledger: idempotent payment
// reconciliation, guarded notarization debits, and account state transitions.
// All balance mutations run inside a single database transaction with the
// account row locked FOR UPDATE.
package ledger

import (
	"database/sql"
	"time"

	"simplychain/backend/pkg/logging"
)

// Ledger executes credit grants, debits and account transitions against
// Postgres.
type Ledger struct {
	db     *sql.DB
	logger logging.Logger
}

// New creates a Ledger bound to the given database.
func New(db *sql.DB, logger logging.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Account is one company account row.
type Account struct {
	WalletAddress    string
	CompanyName      string
	Email            string
	Credits          int64
	IsActive         bool
	Pending          bool
	CreditsUpdatedAt *time.Time
	CreditsUpdatedBy string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Notarization is one hash committed to the chain ledger.
type Notarization struct {
	ID        string
	Wallet    string
	Name      string
	Hash      string
	BatchID   string
	TxHash    string
	CreatedAt time.Time
}
