package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/devhub-api/internal/account"
	"github.com/redmonkez12/devhub-api/internal/email"
	"github.com/redmonkez12/devhub-api/internal/federated"
	"github.com/redmonkez12/devhub-api/internal/logging"
	"github.com/redmonkez12/devhub-api/internal/token"
	"github.com/redmonkez12/devhub-api/internal/validator"
	"github.com/redmonkez12/devhub-api/internal/verification"
)

var (
	ErrPasswordMismatch     = errors.New("passwords do not match")
	ErrEmailInUse           = errors.New("email already in use")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailNotVerified     = errors.New("please verify your email first")
	ErrWrongCurrentPassword = errors.New("current password is incorrect")
	ErrInvalidSession       = errors.New("invalid session")
	ErrSessionExpired       = errors.New("session expired")
	ErrConflict             = errors.New("account was changed by another request, try again")
)

// logoutAttempts bounds how often LogoutAll re-reads an account that keeps
// changing underneath it
const logoutAttempts = 3

// Notifier sends the account emails this service triggers
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, name, token string, ttl time.Duration) error
	SendPasswordResetEmail(ctx context.Context, to, name, token string, ttl time.Duration) error
	SendPasswordChangedEmail(ctx context.Context, to, name string) error
}

// PasswordVerifier checks a plaintext against a stored hash
type PasswordVerifier interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) (bool, error)
}

type RegisterInput struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=8,maxbytes=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,maxbytes=72"`
}

type ResetPasswordInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,maxbytes=72"`
}

// Session is the result of a successful login
type Session struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Account          *account.Account
}

// AccessGrant is a fresh access token minted from a refresh token
type AccessGrant struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Service handles registration, login and session lifecycle
type Service struct {
	store     account.Store
	passwords PasswordVerifier
	tokens    *token.Issuer
	tickets   *verification.Engine
	linker    *federated.Linker
	notifier  Notifier
	validate  *validator.Validator
	ttls      verification.TTLs
	logger    *logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewService(
	store account.Store,
	passwords PasswordVerifier,
	tokens *token.Issuer,
	tickets *verification.Engine,
	linker *federated.Linker,
	notifier Notifier,
	ttls verification.TTLs,
	logger *logging.Logger,
) *Service {
	return &Service{
		store:     store,
		passwords: passwords,
		tokens:    tokens,
		tickets:   tickets,
		linker:    linker,
		notifier:  notifier,
		validate:  validator.New(),
		ttls:      ttls,
		logger:    logger,
	}
}

func (s *Service) AccessTTL() time.Duration  { return s.tokens.AccessTTL() }
func (s *Service) RefreshTTL() time.Duration { return s.tokens.RefreshTTL() }

// Register creates an unverified password account and emails its verification
// link. When the email cannot be sent the account still exists and the error
// wraps email.ErrNotificationFailed.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*account.Account, error) {
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, &validator.ValidationError{Errors: map[string]string{"name": "This field is required"}}
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	a := account.NewManual(in.Name, in.Email, in.Password)
	verifyToken, err := s.tickets.Issue(a, account.TicketRegistration)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, a); err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if err := s.notifier.SendVerificationEmail(ctx, a.Email, a.Name, verifyToken, s.ttls.Registration); err != nil {
		s.logger.Warn("failed to send verification email", "account_id", a.ID, "error", err)
		return a, fmt.Errorf("%w: %v", email.ErrNotificationFailed, err)
	}

	return a, nil
}

// Login exchanges email and password for an access/refresh token pair.
// Unknown emails, federated accounts and wrong passwords all look the same.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if in.Email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	a, err := s.store.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.verifyDummy(in.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	hash, ok := a.PasswordHash()
	if !ok {
		s.verifyDummy(in.Password)
		return nil, ErrInvalidCredentials
	}

	valid, err := s.passwords.Verify(in.Password, hash)
	if err != nil {
		s.logger.Error("stored password hash is unreadable", "account_id", a.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !valid {
		return nil, ErrInvalidCredentials
	}

	if !a.IsVerified {
		return nil, ErrEmailNotVerified
	}

	return s.issueSession(a)
}

// verifyDummy spends one hash verification on a throwaway hash, so a login
// that finds no password costs as much as a wrong password
func (s *Service) verifyDummy(plaintext string) {
	s.dummyOnce.Do(func() {
		hash, err := s.passwords.Hash("devhub-unused-login-password")
		if err != nil {
			s.logger.Error("failed to prepare login placeholder hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.passwords.Verify(plaintext, s.dummyHash)
	}
}

// Refresh mints a new access token. The refresh token is not rotated; it dies
// with its generation or its expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AccessGrant, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidSession
	}

	a, err := s.currentAccount(ctx, claims)
	if err != nil {
		return nil, err
	}

	accessToken, accessClaims, err := s.tokens.IssueAccess(a)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	return &AccessGrant{AccessToken: accessToken, ExpiresAt: accessClaims.ExpiresAt}, nil
}

// Authenticate resolves a bearer access token to its account
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*account.Account, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidSession
	}

	return s.currentAccount(ctx, claims)
}

func (s *Service) currentAccount(ctx context.Context, claims *token.Claims) (*account.Account, error) {
	a, err := s.store.FindByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !token.Current(claims, a) {
		return nil, ErrInvalidSession
	}
	return a, nil
}

// ChangePassword replaces the password of a signed-in manual account and
// revokes every token issued before the change
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, in ChangePasswordInput) error {
	if err := s.validate.Validate(in); err != nil {
		return err
	}

	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	hash, ok := a.PasswordHash()
	if !ok {
		return account.ErrFederatedAccountNoPassword
	}

	valid, err := s.passwords.Verify(in.CurrentPassword, hash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return ErrWrongCurrentPassword
	}

	if err := a.SetPassword(in.NewPassword); err != nil {
		return err
	}
	a.BumpGeneration()

	if err := s.store.Save(ctx, a); err != nil {
		if errors.Is(err, account.ErrStaleAccount) {
			return ErrConflict
		}
		return fmt.Errorf("failed to save account: %w", err)
	}

	s.notifyPasswordChanged(ctx, a)
	return nil
}

// ForgotPassword emails a reset link when the address belongs to a manual
// account. The caller sees the same result either way.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	logger := s.logger.WithFields(map[string]any{"operation": "forgot_password"})

	a, err := s.store.FindByEmail(ctx, emailAddr)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			logger.Error("failed to look up account", "error", err)
		}
		return nil
	}
	if !a.IsManual() {
		return nil
	}

	resetToken, err := s.tickets.Issue(a, account.TicketPasswordReset)
	if err != nil {
		logger.Error("failed to issue reset ticket", "account_id", a.ID, "error", err)
		return nil
	}
	if err := s.store.Save(ctx, a); err != nil {
		logger.Error("failed to save reset ticket", "account_id", a.ID, "error", err)
		return nil
	}

	if err := s.notifier.SendPasswordResetEmail(ctx, a.Email, a.Name, resetToken, s.ttls.PasswordReset); err != nil {
		logger.Warn("failed to send password reset email", "account_id", a.ID, "error", err)
	}
	return nil
}

// ResetPassword consumes a reset ticket and sets the new password
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := s.validate.Validate(in); err != nil {
		return err
	}

	a, err := s.tickets.ResetPassword(ctx, in.Token, in.NewPassword)
	if err != nil {
		return err
	}

	s.notifyPasswordChanged(ctx, a)
	return nil
}

// VerifyEmail consumes a registration ticket
func (s *Service) VerifyEmail(ctx context.Context, verifyToken string) error {
	_, err := s.tickets.VerifyRegistration(ctx, verifyToken)
	return err
}

// ResendVerification re-issues the registration ticket of an unverified manual
// account, which invalidates the previous link. Always nil to the caller.
func (s *Service) ResendVerification(ctx context.Context, emailAddr string) error {
	logger := s.logger.WithFields(map[string]any{"operation": "resend_verification"})

	a, err := s.store.FindByEmail(ctx, emailAddr)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			logger.Error("failed to look up account", "error", err)
		}
		return nil
	}
	if !a.IsManual() || a.IsVerified {
		return nil
	}

	verifyToken, err := s.tickets.Issue(a, account.TicketRegistration)
	if err != nil {
		logger.Error("failed to issue verification ticket", "account_id", a.ID, "error", err)
		return nil
	}
	if err := s.store.Save(ctx, a); err != nil {
		logger.Error("failed to save verification ticket", "account_id", a.ID, "error", err)
		return nil
	}

	if err := s.notifier.SendVerificationEmail(ctx, a.Email, a.Name, verifyToken, s.ttls.Registration); err != nil {
		logger.Warn("failed to resend verification email", "account_id", a.ID, "error", err)
	}
	return nil
}

// LogoutAll revokes every access and refresh token of the account
func (s *Service) LogoutAll(ctx context.Context, id uuid.UUID) error {
	for range logoutAttempts {
		a, err := s.store.FindByID(ctx, id)
		if err != nil {
			return err
		}

		a.BumpGeneration()
		err = s.store.Save(ctx, a)
		if err == nil {
			return nil
		}
		if !errors.Is(err, account.ErrStaleAccount) {
			return fmt.Errorf("failed to save account: %w", err)
		}
	}
	return ErrConflict
}

// FederatedLogin signs in (and on first use creates) the account behind an
// identity provider profile
func (s *Service) FederatedLogin(ctx context.Context, profile federated.Profile) (*Session, error) {
	a, err := s.linker.LinkOrCreate(ctx, profile)
	if err != nil {
		return nil, err
	}
	return s.issueSession(a)
}

func (s *Service) issueSession(a *account.Account) (*Session, error) {
	accessToken, accessClaims, err := s.tokens.IssueAccess(a)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, refreshClaims, err := s.tokens.IssueRefresh(a)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	return &Session{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
		Account:          a,
	}, nil
}

func (s *Service) notifyPasswordChanged(ctx context.Context, a *account.Account) {
	if err := s.notifier.SendPasswordChangedEmail(ctx, a.Email, a.Name); err != nil {
		s.logger.Warn("failed to send password changed email", "account_id", a.ID, "error", err)
	}
}
