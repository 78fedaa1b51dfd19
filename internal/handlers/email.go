package handlers

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"time"

	"simplychain/backend/pkg/email"
	"simplychain/backend/pkg/logging"
)

// EmailService handles email notifications
type EmailService struct {
	smtpHost  string
	smtpUser  string
	fromEmail string
	sender    *email.Sender
	logger    logging.Logger
}

// EmailData represents data for email templates
type EmailData struct {
	CompanyName  string
	PackageName  string
	Credits      int64
	Balance      int64
	DocumentName string
	TxHash       string
	NotarizedAt  *time.Time
	LoginURL     string
}

// NewEmailService creates a new email service instance
func NewEmailService(logger logging.Logger) *EmailService {
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587" // Default SMTP port
	}

	cfg := email.Config{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     port,
		User:     os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("FROM_EMAIL"),
		FromName: os.Getenv("FROM_NAME"),
	}

	return &EmailService{
		smtpHost:  cfg.Host,
		smtpUser:  cfg.User,
		fromEmail: cfg.From,
		sender:    email.NewSender(cfg),
		logger:    logger,
	}
}

// IsConfigured checks if email service is properly configured
func (es *EmailService) IsConfigured() bool {
	return es.smtpHost != "" && es.smtpUser != "" && es.fromEmail != ""
}

// SendPurchaseConfirmationEmail sends notification when a credit purchase completes
func (es *EmailService) SendPurchaseConfirmationEmail(toEmail, companyName, packageName string, credits, balance int64) error {
	if !es.IsConfigured() {
		es.logger.Warn("Email service not configured, skipping purchase confirmation email")
		return nil
	}

	subject := fmt.Sprintf("Purchase Confirmed - %d Credits", credits)

	data := EmailData{
		CompanyName: companyName,
		PackageName: packageName,
		Credits:     credits,
		Balance:     balance,
		LoginURL:    os.Getenv("BASE_URL") + "/login",
	}

	body, err := es.renderTemplate("purchase_confirmed", data)
	if err != nil {
		return fmt.Errorf("failed to render purchase confirmed template: %w", err)
	}

	return es.sendEmail(toEmail, subject, body)
}

// SendAccountActivatedEmail sends notification when an admin activates the account
func (es *EmailService) SendAccountActivatedEmail(toEmail, companyName string, initialCredits int64) error {
	if !es.IsConfigured() {
		es.logger.Warn("Email service not configured, skipping account activated email")
		return nil
	}

	subject := "Your SimplyChain Account Is Active"

	data := EmailData{
		CompanyName: companyName,
		Credits:     initialCredits,
		LoginURL:    os.Getenv("BASE_URL") + "/login",
	}

	body, err := es.renderTemplate("account_activated", data)
	if err != nil {
		return fmt.Errorf("failed to render account activated template: %w", err)
	}

	return es.sendEmail(toEmail, subject, body)
}

// SendNotarizationReceiptEmail sends a receipt for a completed notarization
func (es *EmailService) SendNotarizationReceiptEmail(toEmail, companyName, documentName, txHash string, balance int64) error {
	if !es.IsConfigured() {
		es.logger.Warn("Email service not configured, skipping notarization receipt email")
		return nil
	}

	subject := fmt.Sprintf("Notarization Receipt - %s", documentName)
	now := time.Now()

	data := EmailData{
		CompanyName:  companyName,
		DocumentName: documentName,
		TxHash:       txHash,
		Balance:      balance,
		NotarizedAt:  &now,
		LoginURL:     os.Getenv("BASE_URL") + "/login",
	}

	body, err := es.renderTemplate("notarization_receipt", data)
	if err != nil {
		return fmt.Errorf("failed to render notarization receipt template: %w", err)
	}

	return es.sendEmail(toEmail, subject, body)
}

// sendEmail sends an email via SMTP
func (es *EmailService) sendEmail(to, subject, body string) error {
	err := es.sender.SendMail(context.Background(), to, subject, body)
	if err != nil {
		es.logger.WithFields(logging.Fields{
			"error":   err.Error(),
			"to":      to,
			"subject": subject,
		}).Error("Failed to send email")
		return err
	}

	es.logger.WithFields(logging.Fields{
		"to":      to,
		"subject": subject,
	}).Info("Email sent successfully")

	return nil
}

// renderTemplate renders an email template with data
func (es *EmailService) renderTemplate(templateName string, data EmailData) (string, error) {
	templates := map[string]string{
		"purchase_confirmed": `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Purchase Confirmed</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #27ae60;">Purchase Confirmed!</h2>

        <p>Hello {{.CompanyName}},</p>

        <p>We've successfully received your payment. Thank you!</p>

        <div style="background-color: #d4edda; padding: 20px; border-radius: 5px; margin: 20px 0; border-left: 4px solid #27ae60;">
            <p><strong>Package:</strong> {{.PackageName}}</p>
            <p><strong>Credits Purchased:</strong> {{.Credits}}</p>
            <p><strong>Current Balance:</strong> {{.Balance}} credits</p>
        </div>

        <p>Your credits are available immediately for notarizing documents.</p>

        <p style="text-align: center; margin: 30px 0;">
            <a href="{{.LoginURL}}" style="background-color: #27ae60; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; display: inline-block;">View Account</a>
        </p>

        <p>Thank you for using SimplyChain!</p>

        <p>Best regards,<br>The SimplyChain Team</p>
    </div>
</body>
</html>`,

		"account_activated": `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Account Activated</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2c3e50;">Welcome to SimplyChain</h2>

        <p>Hello {{.CompanyName}},</p>

        <p>Your SimplyChain account has been activated:</p>

        <div style="background-color: #f8f9fa; padding: 20px; border-radius: 5px; margin: 20px 0;">
            <p><strong>Starting Balance:</strong> {{.Credits}} credits</p>
        </div>

        <p>You can now log in with your wallet and start notarizing documents:</p>

        <p style="text-align: center; margin: 30px 0;">
            <a href="{{.LoginURL}}" style="background-color: #3498db; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; display: inline-block;">Log In</a>
        </p>

        <p>If you have any questions, please contact our support team.</p>

        <p>Best regards,<br>The SimplyChain Team</p>
    </div>
</body>
</html>`,

		"notarization_receipt": `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Notarization Receipt</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2c3e50;">Notarization Receipt</h2>

        <p>Hello {{.CompanyName}},</p>

        <p>Your document has been notarized on the blockchain:</p>

        <div style="background-color: #f8f9fa; padding: 20px; border-radius: 5px; margin: 20px 0;">
            <p><strong>Document:</strong> {{.DocumentName}}</p>
            <p><strong>Transaction:</strong> {{.TxHash}}</p>
            <p><strong>Notarized At:</strong> {{.NotarizedAt.Format "January 2, 2006 at 3:04 PM"}}</p>
            <p><strong>Remaining Balance:</strong> {{.Balance}} credits</p>
        </div>

        <p style="text-align: center; margin: 30px 0;">
            <a href="{{.LoginURL}}" style="background-color: #3498db; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; display: inline-block;">View History</a>
        </p>

        <p>Best regards,<br>The SimplyChain Team</p>
    </div>
</body>
</html>`,
	}

	tmplContent, exists := templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	tmpl, err := template.New(templateName).Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
