package services

import (
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"crmhub/internal/config"
)

type EmailService interface {
	// Send delivers one HTML message; campaigns go through it.
	Send(to, subject, htmlBody string) error
	SendWelcomeEmail(email, companyName string) error
	SendPasswordResetEmail(email, token string) error
}

type emailService struct {
	dialer  *gomail.Dialer
	from    string
	product string
}

func NewEmailService(cfg config.EmailConfig, product string) EmailService {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	if product == "" {
		product = "crmhub"
	}
	return &emailService{
		dialer:  dialer,
		from:    cfg.FromEmail,
		product: product,
	}
}

func (s *emailService) Send(to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}

func (s *emailService) SendWelcomeEmail(email, companyName string) error {
	body := fmt.Sprintf(`
		<h2>Welcome to %s, %s!</h2>
		<p>Your workspace has been created and you are its administrator.</p>
		<p>Invite your team from the Users page to get started.</p>
	`, html.EscapeString(s.product), html.EscapeString(companyName))

	if err := s.Send(email, "Welcome to "+s.product, body); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	return nil
}

func (s *emailService) SendPasswordResetEmail(email, token string) error {
	body := fmt.Sprintf(`
		<h3>Password reset requested</h3>
		<p>We received a request to reset the password for your account.</p>
		<p>Use the following token to reset your password: <strong>%s</strong></p>
		<p>The token is valid for one hour. If you did not request this change, you can ignore this email.</p>
	`, token)

	if err := s.Send(email, "Password reset request", body); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}
