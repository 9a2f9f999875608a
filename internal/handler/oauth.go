package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/msomdec/book-catalog/internal/domain"
	"github.com/msomdec/book-catalog/internal/service"
)

const (
	oauthStateCookieName = "oauth_state"
	oauthStateMaxAge     = 10 * 60
)

// OAuthProvider is the part of an external sign-in provider the handler needs.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Identify(ctx context.Context, code string) (domain.ProviderIdentity, error)
}

// OAuthHandler runs the browser side of the external sign-in flow.
type OAuthHandler struct {
	auth         *service.AuthService
	provider     OAuthProvider
	cookieSecure bool
	cookiePath   string
}

// NewOAuthHandler creates a handler whose routes live under cookiePath, for
// example /auth/google.
func NewOAuthHandler(auth *service.AuthService, provider OAuthProvider, cookiePath string, cookieSecure bool) *OAuthHandler {
	return &OAuthHandler{auth: auth, provider: provider, cookiePath: cookiePath, cookieSecure: cookieSecure}
}

// HandleStart stores a random state value and redirects to the provider.
// GET /auth/google
func (h *OAuthHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     h.cookiePath,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   oauthStateMaxAge,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback checks the state, resolves the provider identity to a
// local user and starts a session.
// GET /auth/google/callback
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, oauthStateCookieName, h.cookiePath, h.cookieSecure)

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		writeError(w, http.StatusBadRequest, "Sign-in was cancelled or denied: "+errCode)
		return
	}

	cookie, err := r.Cookie(oauthStateCookieName)
	state := q.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeError(w, http.StatusBadRequest, "Invalid sign-in state. Please try again.")
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing authorization code.")
		return
	}

	pi, err := h.provider.Identify(r.Context(), code)
	if err != nil {
		slog.Warn("oauth identify", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusBadGateway, "Could not verify your account with the sign-in provider.")
		return
	}

	identity, err := h.auth.AuthenticateOAuth(r.Context(), pi)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "That email is already registered. Sign in with your password instead.")
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, validationMessage(err))
		default:
			slog.Error("oauth sign-in", "error", err, "request_id", RequestIDFromContext(r.Context()))
			writeError(w, http.StatusInternalServerError, "An unexpected error occurred. Please try again.")
		}
		return
	}

	token, expiresAt, err := h.auth.IssueSession(identity)
	if err != nil {
		slog.Error("issue session", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred. Please try again.")
		return
	}

	setSessionCookie(w, token, expiresAt, h.cookieSecure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
