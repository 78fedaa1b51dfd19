package main

import (
	"simplychain/backend/internal/chain"
	"simplychain/backend/internal/handlers"
	"simplychain/backend/pkg/auth"
	"simplychain/backend/pkg/config"
	"simplychain/backend/pkg/database"
	dbsql "simplychain/backend/pkg/database/sql"
	"simplychain/backend/pkg/logging"
	"simplychain/backend/pkg/monitoring"
	"simplychain/backend/pkg/server"
	"simplychain/backend/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("simplychain")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting SimplyChain backend")

	dbURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if err := database.ApplySchema(db, dbsql.Content, "schema", logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}

	// Chain ledger API client
	chainClient := chain.NewClientFromEnv(logger)
	if !chainClient.Configured() {
		logger.Warn("Chain ledger API not configured; notarization requests will fail")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("simplychain", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("simplychain", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":          dbURL,
		"JWT_SECRET":            jwtSecret,
		"STRIPE_SECRET_KEY":     config.GetEnv("STRIPE_SECRET_KEY", ""),
		"STRIPE_WEBHOOK_SECRET": config.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	}))
	if ledgerAPI := config.GetEnv("LEDGER_API_URL", ""); ledgerAPI != "" {
		healthChecker.AddCheck("chain_api", monitoring.HTTPServiceHealthCheck("chain_api", ledgerAPI+"/health"))
	}

	// Create custom business metrics
	metrics := &handlers.SimplyChainMetrics{
		CreditsGranted:    metricsCollector.NewCounter("credits_granted_total", "Credits granted from completed payments", []string{"source"}),
		CreditsDebited:    metricsCollector.NewCounter("credits_debited_total", "Credits debited", []string{"reason"}),
		Notarizations:     metricsCollector.NewCounter("notarizations_total", "Notarization requests", []string{"outcome"}),
		WebhookEvents:     metricsCollector.NewCounter("webhook_events_total", "Webhook deliveries", []string{"provider", "outcome"}),
		CheckoutSessions:  metricsCollector.NewCounter("checkout_sessions_total", "Stripe checkout sessions", []string{"outcome"}),
		WalletLogins:      metricsCollector.NewCounter("wallet_logins_total", "Wallet login attempts", []string{"outcome"}),
		AccountOperations: metricsCollector.NewCounter("account_operations_total", "Account lifecycle operations", []string{"operation"}),
	}

	// Initialize handlers
	handlers.Init(db, logger, metrics, chainClient)
	handlers.SetJWTSecret([]byte(jwtSecret))

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "simplychain", healthChecker, metricsCollector)

	// API routes (root level - nginx adds /api/ prefix)
	{
		// Public endpoints
		router.POST("/auth/wallet/nonce", handlers.HandleWalletNonce)
		router.POST("/auth/wallet/login", handlers.HandleWalletLogin)
		router.POST("/accounts/register", handlers.RegisterAccount)
		router.GET("/packages", handlers.ListCreditPackages)

		// Webhook endpoints (signature-verified, no session auth)
		router.POST("/webhooks/stripe", handlers.HandleStripeWebhook)

		// Authentication required endpoints
		protected := router.Group("")
		protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
		{
			protected.GET("/account", handlers.GetMyAccount)
			protected.POST("/checkout/sessions", handlers.CreateCheckoutSession)
			protected.POST("/checkout/confirm", handlers.ConfirmCheckout)
			protected.POST("/notarize", handlers.HandleNotarize)
			protected.GET("/notarizations", handlers.HandleListNotarizations)

			// Admin endpoints
			admin := protected.Group("/admin")
			admin.Use(auth.RequireRole("admin", "service"))
			{
				admin.GET("/accounts", handlers.ListAccounts)
				admin.GET("/accounts/:wallet", handlers.AdminGetAccount)
				admin.POST("/accounts/:wallet/activate", handlers.ActivateAccount)
				admin.POST("/accounts/:wallet/deactivate", handlers.DeactivateAccount)
				admin.PUT("/accounts/:wallet/credits", handlers.SetCredits)
			}
		}

		// Service-to-service endpoints
		serviceAPI := router.Group("/internal")
		serviceAPI.Use(auth.ServiceAuthMiddleware(serviceToken))
		{
			serviceAPI.GET("/accounts", handlers.ListAccounts)
			serviceAPI.GET("/accounts/:wallet", handlers.AdminGetAccount)
		}
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("simplychain", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
