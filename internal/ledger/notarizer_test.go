package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"simplychain/backend/pkg/logging"
)

type fakeBatchWriter struct {
	batchID      string
	createTx     string
	appendTx     string
	createErr    error
	appendErr    error
	createCalls  int
	appendCalls  int
	lastBatchID  string
	lastAppended string
}

func (f *fakeBatchWriter) CreateBatch(ctx context.Context, wallet string) (string, string, error) {
	f.createCalls++
	return f.batchID, f.createTx, f.createErr
}

func (f *fakeBatchWriter) AppendHash(ctx context.Context, batchID, hash string) (string, error) {
	f.appendCalls++
	f.lastBatchID = batchID
	f.lastAppended = hash
	return f.appendTx, f.appendErr
}

func expectAccountFetch(mock sqlmock.Sqlmock, credits int64, isActive, pending bool) {
	now := time.Now()
	mock.ExpectQuery("SELECT.*FROM simplychain.accounts.*WHERE wallet_address").
		WithArgs("0xwallet").
		WillReturnRows(sqlmock.NewRows([]string{
			"wallet_address", "company_name", "email", "crediti", "is_active", "pending",
			"crediti_updated_at", "crediti_updated_by", "created_at", "updated_at",
		}).AddRow("0xwallet", "Acme Srl", "ops@acme.example", credits, isActive, pending, nil, nil, now, now))
}

func TestNotarizeHappyPath(t *testing.T) {
	l, mock := newTestLedger(t)
	chain := &fakeBatchWriter{batchID: "42", createTx: "0xcreate", appendTx: "0xappend"}
	n := NewNotarizer(l, chain, logging.NewLogger())

	expectAccountFetch(mock, 5, true, false)

	mock.ExpectBegin()
	expectLockedAccount(mock, 5, true, false)
	mock.ExpectQuery("UPDATE simplychain.accounts.*crediti - 1.*RETURNING crediti").
		WithArgs("notarization", "0xwallet").
		WillReturnRows(sqlmock.NewRows([]string{"crediti"}).AddRow(4))
	mock.ExpectExec("INSERT INTO simplychain.notarizations").
		WithArgs(sqlmock.AnyArg(), "0xwallet", "contract.pdf", "deadbeef", "42", "0xappend").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := n.Notarize(context.Background(), "0xwallet", "contract.pdf", "deadbeef")
	if err != nil {
		t.Fatalf("Notarize: %v", err)
	}
	if res.BatchID != "42" || res.TxHash != "0xappend" || res.Balance != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if chain.lastBatchID != "42" || chain.lastAppended != "deadbeef" {
		t.Fatalf("hash appended to wrong batch: %+v", chain)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNotarizeFallsBackToCreateTx(t *testing.T) {
	l, mock := newTestLedger(t)
	chain := &fakeBatchWriter{batchID: "42", createTx: "0xcreate", appendTx: ""}
	n := NewNotarizer(l, chain, logging.NewLogger())

	expectAccountFetch(mock, 5, true, false)

	mock.ExpectBegin()
	expectLockedAccount(mock, 5, true, false)
	mock.ExpectQuery("UPDATE simplychain.accounts.*crediti - 1.*RETURNING crediti").
		WithArgs("notarization", "0xwallet").
		WillReturnRows(sqlmock.NewRows([]string{"crediti"}).AddRow(4))
	mock.ExpectExec("INSERT INTO simplychain.notarizations").
		WithArgs(sqlmock.AnyArg(), "0xwallet", "contract.pdf", "deadbeef", "42", "0xcreate").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := n.Notarize(context.Background(), "0xwallet", "contract.pdf", "deadbeef")
	if err != nil {
		t.Fatalf("Notarize: %v", err)
	}
	if res.TxHash != "0xcreate" {
		t.Fatalf("expected create tx hash fallback, got %q", res.TxHash)
	}
}

func TestNotarizePrecheckBlocksChainWrite(t *testing.T) {
	tests := []struct {
		name     string
		credits  int64
		isActive bool
		pending  bool
		wantErr  error
	}{
		{"no credits", 0, true, false, ErrInsufficientCredits},
		{"inactive", 5, false, false, ErrAccountNotActive},
		{"pending", 5, true, true, ErrAccountNotActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, mock := newTestLedger(t)
			chain := &fakeBatchWriter{batchID: "42"}
			n := NewNotarizer(l, chain, logging.NewLogger())

			expectAccountFetch(mock, tt.credits, tt.isActive, tt.pending)

			if _, err := n.Notarize(context.Background(), "0xwallet", "doc", "deadbeef"); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if chain.createCalls != 0 {
				t.Fatal("an unpayable account must not cause a chain write")
			}
		})
	}
}

func TestNotarizeChainFailureLeavesBalance(t *testing.T) {
	l, mock := newTestLedger(t)
	chain := &fakeBatchWriter{createErr: errors.New("chain unavailable")}
	n := NewNotarizer(l, chain, logging.NewLogger())

	expectAccountFetch(mock, 5, true, false)

	if _, err := n.Notarize(context.Background(), "0xwallet", "doc", "deadbeef"); err == nil {
		t.Fatal("expected chain error")
	}
	// No transaction expectations were declared: a chain failure must never
	// reach the debit path.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNotarizeAppendFailureSkipsDebit(t *testing.T) {
	l, mock := newTestLedger(t)
	chain := &fakeBatchWriter{batchID: "42", createTx: "0xcreate", appendErr: errors.New("chain unavailable")}
	n := NewNotarizer(l, chain, logging.NewLogger())

	expectAccountFetch(mock, 5, true, false)

	if _, err := n.Notarize(context.Background(), "0xwallet", "doc", "deadbeef"); err == nil {
		t.Fatal("expected chain error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
