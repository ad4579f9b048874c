package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/redmonkez12/devhub-api/internal/account"
	"github.com/redmonkez12/devhub-api/internal/email"
	"github.com/redmonkez12/devhub-api/internal/federated"
	"github.com/redmonkez12/devhub-api/internal/httputil"
	"github.com/redmonkez12/devhub-api/internal/logging"
	"github.com/redmonkez12/devhub-api/internal/oauth"
	"github.com/redmonkez12/devhub-api/internal/validator"
	"github.com/redmonkez12/devhub-api/internal/verification"
)

// IdentityProvider runs the browser redirect handshake with an external login provider
type IdentityProvider interface {
	Begin(ctx context.Context) (string, error)
	Complete(ctx context.Context, state, code string) (federated.Profile, error)
}

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service       *Service
	google        IdentityProvider
	frontendURL   string
	secureCookies bool
}

// NewHandler builds the auth handler. google may be nil when Google sign-in is
// not configured.
func NewHandler(service *Service, google IdentityProvider, frontendURL string, secureCookies bool) *Handler {
	return &Handler{
		service:       service,
		google:        google,
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		secureCookies: secureCookies,
	}
}

// TokenRequest carries a single-use email token
type TokenRequest struct {
	Token string `json:"token"`
}

// EmailRequest carries an email address
type EmailRequest struct {
	Email string `json:"email"`
}

// RegisterResponse represents the registration response
type RegisterResponse struct {
	Message string          `json:"message"`
	User    account.Summary `json:"user"`
}

// SessionResponse is returned by login. The refresh token travels in a cookie.
type SessionResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int64           `json:"expires_in"`
	User        account.Summary `json:"user"`
}

// AccessTokenResponse is returned by refresh-token
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Register handles account registration
// @Summary      Register a new account
// @Description  Create an email+password account. A verification email is sent before the call returns.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterInput true "Registration data"
// @Success      201 {object} RegisterResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request, validation error or password mismatch"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Failure      500 {object} httputil.ErrorResponse "Account created but the email could not be sent"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, email.ErrNotificationFailed) {
			logger.Warn("account registered without verification email", "account_id", a.ID)
			httputil.RespondError(w,
				"account created, but the verification email could not be sent; request a new one",
				httputil.CodeNotificationFailed, http.StatusInternalServerError)
			return
		}
		respondServiceError(w, r, err)
		return
	}

	logger.Info("account registered", "account_id", a.ID)
	httputil.RespondJSON(w, RegisterResponse{
		Message: "Registration successful. Please check your email to verify your account.",
		User:    a.Summary(),
	}, http.StatusCreated)
}

// VerifyEmail handles email verification
// @Summary      Verify email address
// @Description  The token is read from the query string, or from the JSON body on POST.
// @Tags         auth
// @Produce      json
// @Param        token query string false "Verification token"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token"
// @Router       /auth/verify-email [get]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ticket, ok := TicketFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.VerifyEmail(r.Context(), ticket); err != nil {
		respondServiceError(w, r, err)
		return
	}

	httputil.RespondMessage(w, "Email verified successfully. You can now log in.", http.StatusOK)
}

// ResendVerification handles re-sending the verification email
// @Summary      Resend verification email
// @Description  Always answers the same way, whether or not the address is registered.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Email address"
// @Success      200 {object} httputil.MessageResponse
// @Router       /auth/resend-verification [post]
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	_ = h.service.ResendVerification(r.Context(), req.Email)
	httputil.RespondMessage(w, "If that account exists and is not verified yet, a new verification email has been sent.", http.StatusOK)
}

// Login handles email+password login
// @Summary      Log in
// @Description  Returns an access token and sets the refresh token as an HTTP-only cookie.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginInput true "Credentials"
// @Success      200 {object} SessionResponse
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      403 {object} httputil.ErrorResponse "Email not verified"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginInput
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	logger.Info("account logged in", "account_id", session.Account.ID)
	setRefreshCookie(w, session.RefreshToken, h.service.RefreshTTL(), h.secureCookies)
	httputil.RespondJSON(w, SessionResponse{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.service.AccessTTL().Seconds()),
		User:        session.Account.Summary(),
	}, http.StatusOK)
}

// RefreshToken mints a new access token from the refresh cookie
// @Summary      Refresh access token
// @Tags         auth
// @Produce      json
// @Success      200 {object} AccessTokenResponse
// @Failure      401 {object} httputil.ErrorResponse "Missing, invalid or revoked refresh token"
// @Router       /auth/refresh-token [post]
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	refreshToken := refreshTokenFromRequest(r)
	if refreshToken == "" {
		httputil.RespondError(w, "refresh token is required", httputil.CodeRefreshRequired, http.StatusUnauthorized)
		return
	}

	grant, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			clearRefreshCookie(w, h.secureCookies)
		}
		respondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, AccessTokenResponse{
		AccessToken: grant.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.service.AccessTTL().Seconds()),
	}, http.StatusOK)
}

// Logout clears the refresh cookie on this device
// @Summary      Log out
// @Tags         auth
// @Produce      json
// @Success      200 {object} httputil.MessageResponse
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	clearRefreshCookie(w, h.secureCookies)
	httputil.RespondMessage(w, "Logged out successfully", http.StatusOK)
}

// LogoutAll revokes every session of the signed-in account
// @Summary      Log out of all devices
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} httputil.MessageResponse
// @Failure      401 {object} httputil.ErrorResponse
// @Router       /auth/logout-all [post]
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	if err := h.service.LogoutAll(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	logger.Info("all sessions revoked", "account_id", id)
	clearRefreshCookie(w, h.secureCookies)
	httputil.RespondMessage(w, "Logged out from all devices", http.StatusOK)
}

// ChangePassword changes the password of the signed-in account
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ChangePasswordInput true "Current and new password"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error or wrong current password"
// @Failure      403 {object} httputil.ErrorResponse "Account signs in with an identity provider"
// @Router       /auth/change-password [put]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req ChangePasswordInput
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), id, req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	logger.Info("password changed", "account_id", id)
	clearRefreshCookie(w, h.secureCookies)
	httputil.RespondMessage(w, "Password changed successfully. Please log in again.", http.StatusOK)
}

// ForgotPassword starts a password reset
// @Summary      Request password reset
// @Description  Always answers the same way, whether or not the address is registered.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Email address"
// @Success      200 {object} httputil.MessageResponse
// @Router       /auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	_ = h.service.ForgotPassword(r.Context(), req.Email)
	httputil.RespondMessage(w, "If an account with that email exists, a password reset link has been sent.", http.StatusOK)
}

// ResetPassword completes a password reset
// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        token   query string             false "Reset token, when not sent in the body"
// @Param        request body  ResetPasswordInput true  "Reset token and new password"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error or invalid/expired token"
// @Router       /auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}

	if err := h.service.ResetPassword(r.Context(), req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	httputil.RespondMessage(w, "Password has been reset successfully. You can now log in.", http.StatusOK)
}

// GoogleLogin redirects the browser to Google's consent screen
// @Summary      Sign in with Google
// @Tags         auth
// @Success      307
// @Failure      503 {object} httputil.ErrorResponse "Google sign-in is not configured"
// @Router       /auth/google [get]
func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.google == nil {
		httputil.RespondError(w, "google sign-in is not configured", httputil.CodeOAuthNotConfigured, http.StatusServiceUnavailable)
		return
	}

	consentURL, err := h.google.Begin(r.Context())
	if err != nil {
		logger.Error("failed to start google sign-in", "error", err)
		httputil.RespondError(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, consentURL, http.StatusTemporaryRedirect)
}

// GoogleCallback finishes the Google handshake and hands the session to the frontend
// @Summary      Google sign-in callback
// @Tags         auth
// @Param        state query string true "OAuth state"
// @Param        code  query string true "Authorization code"
// @Success      302
// @Router       /auth/google/callback [get]
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.google == nil {
		h.redirectSocial(w, r, "error", "oauth_not_configured")
		return
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		logger.Warn("google sign-in refused", "error", providerErr)
		h.redirectSocial(w, r, "error", "access_denied")
		return
	}

	profile, err := h.google.Complete(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		logger.Warn("google sign-in failed", "error", err)
		if errors.Is(err, oauth.ErrUnverifiedProviderEmail) {
			h.redirectSocial(w, r, "error", "unverified_email")
			return
		}
		h.redirectSocial(w, r, "error", "oauth_failed")
		return
	}

	session, err := h.service.FederatedLogin(r.Context(), profile)
	if err != nil {
		switch {
		case errors.Is(err, federated.ErrEmailOwnedByManualAccount):
			h.redirectSocial(w, r, "error", "email_owned_by_manual_account")
		case errors.Is(err, federated.ErrMissingProviderEmail):
			h.redirectSocial(w, r, "error", "missing_provider_email")
		default:
			logger.Error("failed to sign in federated account", "error", err)
			h.redirectSocial(w, r, "error", "server_error")
		}
		return
	}

	logger.Info("account logged in with google", "account_id", session.Account.ID)
	setRefreshCookie(w, session.RefreshToken, h.service.RefreshTTL(), h.secureCookies)
	h.redirectSocial(w, r, "token", session.AccessToken)
}

func (h *Handler) redirectSocial(w http.ResponseWriter, r *http.Request, key, value string) {
	target := h.frontendURL + "/social-login?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// TicketFromRequest reads a single-use email token from ?token= or, for
// non-GET requests, from a {"token": ...} body. It writes a 400 and returns
// false when none is present.
func TicketFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	ticket := r.URL.Query().Get("token")
	if ticket == "" && r.Method != http.MethodGet {
		var req TokenRequest
		if !decodeJSON(w, r, &req) {
			return "", false
		}
		ticket = req.Token
	}

	if ticket == "" {
		httputil.RespondError(w, "token is required", httputil.CodeTokenRequired, http.StatusBadRequest)
		return "", false
	}
	return ticket, true
}

// decodeJSON writes a 400 and returns false when the body is not valid JSON
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logging.GetLoggerFromContext(r.Context()).Warn("invalid request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return false
	}
	return true
}

// respondServiceError maps service errors to HTTP responses
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		httputil.RespondValidation(w, verr.Errors)
		return
	}

	switch {
	case errors.Is(err, ErrPasswordMismatch):
		httputil.RespondError(w, "passwords do not match", httputil.CodePasswordMismatch, http.StatusBadRequest)
	case errors.Is(err, ErrEmailInUse):
		httputil.RespondError(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
	case errors.Is(err, ErrInvalidCredentials):
		httputil.RespondError(w, "Invalid credentials", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
	case errors.Is(err, ErrEmailNotVerified):
		httputil.RespondError(w, "Please verify your email first", httputil.CodeEmailNotVerified, http.StatusForbidden)
	case errors.Is(err, ErrWrongCurrentPassword):
		httputil.RespondError(w, "current password is incorrect", httputil.CodeWrongCurrentPassword, http.StatusBadRequest)
	case errors.Is(err, account.ErrFederatedAccountNoPassword):
		httputil.RespondError(w, "this account signs in with an identity provider and has no password", httputil.CodeFederatedNoPassword, http.StatusForbidden)
	case errors.Is(err, verification.ErrInvalidOrExpiredToken):
		httputil.RespondError(w, "Invalid or expired token", httputil.CodeInvalidOrExpiredTicket, http.StatusBadRequest)
	case errors.Is(err, ErrSessionExpired):
		httputil.RespondError(w, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidSession):
		httputil.RespondError(w, "invalid or revoked session", httputil.CodeInvalidSession, http.StatusUnauthorized)
	case errors.Is(err, ErrConflict), errors.Is(err, account.ErrStaleAccount):
		httputil.RespondError(w, ErrConflict.Error(), httputil.CodeConflict, http.StatusConflict)
	case errors.Is(err, account.ErrNotFound):
		httputil.RespondError(w, "account not found", httputil.CodeNotFound, http.StatusNotFound)
	default:
		logging.GetLoggerFromContext(r.Context()).Error("request failed", "error", err)
		httputil.RespondError(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}
