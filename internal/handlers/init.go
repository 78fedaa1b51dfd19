package handlers

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"

	"simplychain/backend/internal/chain"
	"simplychain/backend/internal/ledger"
	"simplychain/backend/pkg/logging"
)

var (
	db           *sql.DB
	logger       logging.Logger
	ledgerSvc    *ledger.Ledger
	notarizer    *ledger.Notarizer
	emailService *EmailService
	metrics      *SimplyChainMetrics
)

// SimplyChainMetrics holds all Prometheus metrics for the backend
type SimplyChainMetrics struct {
	CreditsGranted    *prometheus.CounterVec
	CreditsDebited    *prometheus.CounterVec
	Notarizations     *prometheus.CounterVec
	WebhookEvents     *prometheus.CounterVec
	CheckoutSessions  *prometheus.CounterVec
	WalletLogins      *prometheus.CounterVec
	AccountOperations *prometheus.CounterVec
}

// Init initializes the handlers with database, logger, and service clients
func Init(database *sql.DB, log logging.Logger, m *SimplyChainMetrics, chainAPI *chain.Client) {
	db = database
	logger = log
	ledgerSvc = ledger.New(database, log)
	notarizer = ledger.NewNotarizer(ledgerSvc, chainAPI, log)
	emailService = NewEmailService(log)
	metrics = m
}
