package ledger

import "errors"

var (
	// ErrAccountNotFound means no account row exists for the wallet.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountNotActive means the account exists but is pending or deactivated.
	ErrAccountNotActive = errors.New("account not active")
	// ErrInsufficientCredits means the balance is zero; a debit would overspend.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrAlreadyProcessed means the payment intent was reconciled before.
	ErrAlreadyProcessed = errors.New("payment already processed")
	// ErrAccountExists means a registration targets an existing wallet.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredits means a credit amount failed validation.
	ErrInvalidCredits = errors.New("invalid credit amount")
	// ErrPackageNotFound means no credit package matches the given id.
	ErrPackageNotFound = errors.New("credit package not found")
)
