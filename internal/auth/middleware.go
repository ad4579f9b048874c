package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/redmonkez12/devhub-api/internal/account"
	"github.com/redmonkez12/devhub-api/internal/httputil"
	"github.com/redmonkez12/devhub-api/internal/logging"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const AccountContextKey ContextKey = "account"

// Authenticator resolves an access token to its account
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*account.Account, error)
}

// Middleware handles authentication for protected routes
type Middleware struct {
	authenticator Authenticator
}

func NewMiddleware(authenticator Authenticator) *Middleware {
	return &Middleware{authenticator: authenticator}
}

// RequireAuth rejects requests without a current bearer access token. Tokens
// issued before the account's last logout-all or password change are refused.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.RespondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
			return
		}

		scheme, accessToken, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || accessToken == "" {
			httputil.RespondError(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
			return
		}

		a, err := m.authenticator.Authenticate(r.Context(), accessToken)
		if err != nil {
			switch {
			case errors.Is(err, ErrSessionExpired):
				httputil.RespondError(w, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
			case errors.Is(err, ErrInvalidSession):
				httputil.RespondError(w, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			default:
				logging.GetLoggerFromContext(r.Context()).Error("failed to authenticate request", "error", err)
				httputil.RespondError(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
			}
			return
		}

		logging.AddFields(r.Context(), map[string]any{"account_id": a.ID.String()})

		ctx := context.WithValue(r.Context(), AccountContextKey, a)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAccountFromContext returns the account RequireAuth attached to the request
func GetAccountFromContext(ctx context.Context) (*account.Account, bool) {
	a, ok := ctx.Value(AccountContextKey).(*account.Account)
	return a, ok
}

// GetAccountIDFromContext extracts the signed-in account ID from the request context
func GetAccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	a, ok := GetAccountFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return a.ID, true
}
