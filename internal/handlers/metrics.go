package handlers

// Metric helpers are nil-safe so unit tests can run without a registry.

func recordWebhookEvent(provider, outcome string) {
	if metrics == nil || metrics.WebhookEvents == nil {
		return
	}
	metrics.WebhookEvents.WithLabelValues(provider, outcome).Inc()
}

func recordCreditsGranted(source string, credits int64) {
	if metrics == nil || metrics.CreditsGranted == nil {
		return
	}
	metrics.CreditsGranted.WithLabelValues(source).Add(float64(credits))
}

func recordCreditsDebited(reason string) {
	if metrics == nil || metrics.CreditsDebited == nil {
		return
	}
	metrics.CreditsDebited.WithLabelValues(reason).Inc()
}

func recordNotarization(outcome string) {
	if metrics == nil || metrics.Notarizations == nil {
		return
	}
	metrics.Notarizations.WithLabelValues(outcome).Inc()
}

func recordCheckoutSession(outcome string) {
	if metrics == nil || metrics.CheckoutSessions == nil {
		return
	}
	metrics.CheckoutSessions.WithLabelValues(outcome).Inc()
}

func recordWalletLogin(outcome string) {
	if metrics == nil || metrics.WalletLogins == nil {
		return
	}
	metrics.WalletLogins.WithLabelValues(outcome).Inc()
}

func recordAccountOperation(op string) {
	if metrics == nil || metrics.AccountOperations == nil {
		return
	}
	metrics.AccountOperations.WithLabelValues(op).Inc()
}
