package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func debitParams() DebitParams {
	return DebitParams{
		Wallet:  "0xwallet",
		Name:    "contract.pdf",
		Hash:    "deadbeef",
		BatchID: "42",
		TxHash:  "0xtx",
	}
}

func expectLockedAccount(mock sqlmock.Sqlmock, balance int64, isActive, pending bool) {
	mock.ExpectQuery("SELECT crediti, is_active, pending FROM simplychain.accounts.*FOR UPDATE").
		WithArgs("0xwallet").
		WillReturnRows(sqlmock.NewRows([]string{"crediti", "is_active", "pending"}).
			AddRow(balance, isActive, pending))
}

func TestDebitDecrementsAndRecords(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectBegin()
	expectLockedAccount(mock, 5, true, false)
	mock.ExpectQuery("UPDATE simplychain.accounts.*crediti - 1.*RETURNING crediti").
		WithArgs("notarization", "0xwallet").
		WillReturnRows(sqlmock.NewRows([]string{"crediti"}).AddRow(4))
	mock.ExpectExec("INSERT INTO simplychain.notarizations").
		WithArgs(sqlmock.AnyArg(), "0xwallet", "contract.pdf", "deadbeef", "42", "0xtx").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := l.Debit(context.Background(), debitParams())
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if res.Balance != 4 {
		t.Fatalf("expected balance 4, got %d", res.Balance)
	}
	if res.RecordID == "" {
		t.Fatal("expected a record id")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDebitRejectsEmptyBalance(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectBegin()
	expectLockedAccount(mock, 0, true, false)
	mock.ExpectRollback()

	if _, err := l.Debit(context.Background(), debitParams()); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDebitRejectsInactiveAccount(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectBegin()
	expectLockedAccount(mock, 10, false, true)
	mock.ExpectRollback()

	if _, err := l.Debit(context.Background(), debitParams()); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDebitRejectsPendingAccount(t *testing.T) {
	l, mock := newTestLedger(t)

	// Active flag set but still pending: no debits until an admin activates.
	mock.ExpectBegin()
	expectLockedAccount(mock, 10, true, true)
	mock.ExpectRollback()

	if _, err := l.Debit(context.Background(), debitParams()); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
}

func TestDebitMissingAccount(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT crediti, is_active, pending FROM simplychain.accounts.*FOR UPDATE").
		WithArgs("0xwallet").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	if _, err := l.Debit(context.Background(), debitParams()); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestDebitRequiresWalletAndHash(t *testing.T) {
	l, _ := newTestLedger(t)

	p := debitParams()
	p.Hash = ""
	if _, err := l.Debit(context.Background(), p); err == nil {
		t.Fatal("expected error for missing hash")
	}

	p = debitParams()
	p.Wallet = ""
	if _, err := l.Debit(context.Background(), p); err == nil {
		t.Fatal("expected error for missing wallet")
	}
}

func TestListNotarizations(t *testing.T) {
	l, mock := newTestLedger(t)

	now := time.Now()
	mock.ExpectQuery("SELECT id, wallet_address, nome, hash, batch_id, tx_hash, created_at FROM simplychain.notarizations").
		WithArgs("0xwallet", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_address", "nome", "hash", "batch_id", "tx_hash", "created_at"}).
			AddRow("rec-2", "0xwallet", "b.pdf", "beef", "7", "0xt2", now).
			AddRow("rec-1", "0xwallet", "a.pdf", "dead", "7", "0xt1", now.Add(-time.Minute)))

	records, err := l.ListNotarizations(context.Background(), "0xwallet", 0)
	if err != nil {
		t.Fatalf("ListNotarizations: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "rec-2" || records[0].Name != "b.pdf" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
