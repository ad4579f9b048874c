package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/redmonkez12/devhub-api/internal/logging"
)

// ErrNotificationFailed is wrapped by callers whose change was saved but whose
// email could not be delivered
var ErrNotificationFailed = errors.New("email notification failed")

//go:embed templates/*.html
var templateFS embed.FS

const (
	tmplVerification       = "verification.html"
	tmplPasswordReset      = "password_reset.html"
	tmplPasswordChanged    = "password_changed.html"
	tmplEmailChangeConfirm = "email_change_confirm.html"
	tmplEmailChangeNotice  = "email_change_notice.html"
)

// Service renders the account emails and hands them to a Sender
type Service struct {
	sender      Sender
	frontendURL string
	templates   map[string]*template.Template
}

func NewService(sender Sender, frontendURL string) (*Service, error) {
	s := &Service{
		sender:      sender,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		templates:   make(map[string]*template.Template),
	}

	for _, name := range []string{
		tmplVerification,
		tmplPasswordReset,
		tmplPasswordChanged,
		tmplEmailChangeConfirm,
		tmplEmailChangeNotice,
	} {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		s.templates[name] = tmpl
	}

	return s, nil
}

type templateData struct {
	Name      string
	Link      string
	ExpiresIn string
	NewEmail  string
}

// SendVerificationEmail sends the link that confirms a new registration
func (s *Service) SendVerificationEmail(ctx context.Context, to, name, token string, ttl time.Duration) error {
	return s.send(ctx, to, "Verify Your DevHub Email", tmplVerification, templateData{
		Name:      name,
		Link:      s.link("/verify-email", token),
		ExpiresIn: humanDuration(ttl),
	})
}

// SendPasswordResetEmail sends the link used to choose a new password
func (s *Service) SendPasswordResetEmail(ctx context.Context, to, name, token string, ttl time.Duration) error {
	return s.send(ctx, to, "Reset Your Password", tmplPasswordReset, templateData{
		Name:      name,
		Link:      s.link("/reset-password", token),
		ExpiresIn: humanDuration(ttl),
	})
}

// SendPasswordChangedEmail tells the owner their password was replaced
func (s *Service) SendPasswordChangedEmail(ctx context.Context, to, name string) error {
	return s.send(ctx, to, "Your password has been changed", tmplPasswordChanged, templateData{Name: name})
}

// SendEmailChangeConfirmation goes to the new address
func (s *Service) SendEmailChangeConfirmation(ctx context.Context, to, name, token string, ttl time.Duration) error {
	return s.send(ctx, to, "Confirm Your New DevHub Email", tmplEmailChangeConfirm, templateData{
		Name:      name,
		Link:      s.link("/confirm-new-email", token),
		ExpiresIn: humanDuration(ttl),
	})
}

// SendEmailChangeNotice warns the current address about a requested change
func (s *Service) SendEmailChangeNotice(ctx context.Context, to, name, newEmail string) error {
	return s.send(ctx, to, "Email change requested on your DevHub account", tmplEmailChangeNotice, templateData{
		Name:     name,
		NewEmail: newEmail,
	})
}

func (s *Service) send(ctx context.Context, to, subject, tmplName string, data templateData) error {
	logger := logging.GetLoggerFromContext(ctx)

	var body bytes.Buffer
	if err := s.templates[tmplName].ExecuteTemplate(&body, "layout", data); err != nil {
		logger.Error("failed to render email template", "template", tmplName, "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.sender.Send(ctx, to, subject, body.String()); err != nil {
		logger.Error("failed to send email", "template", tmplName, "email", to, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("email sent", "template", tmplName, "email", to)
	return nil
}

func (s *Service) link(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", s.frontendURL, path, url.QueryEscape(token))
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
