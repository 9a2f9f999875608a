package handler

import (
	"net/http"

	"github.com/msomdec/book-catalog/internal/service"
)

// Dependencies are the services the routes are built from. Limiter and
// OAuth are optional.
type Dependencies struct {
	Auth    *service.AuthService
	Catalog *service.CatalogService

	// Limiter throttles login and registration per client address.
	Limiter service.Limiter
	// OAuth enables Google sign-in when set.
	OAuth OAuthProvider

	CookieSecure     bool
	SeedUsersEnabled bool
}

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	authH := NewAuthHandler(deps.Auth, deps.CookieSecure, deps.SeedUsersEnabled)
	bookH := NewBookHandler(deps.Catalog)
	pageH := NewPageHandler(deps.Auth, deps.Catalog, deps.OAuth != nil, deps.CookieSecure)

	requireAuth := func(h http.HandlerFunc) http.Handler { return RequireAuth(deps.Auth, h) }
	optionalAuth := func(h http.HandlerFunc) http.Handler { return OptionalAuth(deps.Auth, h) }
	rateLimited := func(h http.HandlerFunc) http.Handler {
		if deps.Limiter == nil {
			return h
		}
		return RateLimit(deps.Limiter, h)
	}

	mux.HandleFunc("GET /healthz", HandleHealthz)

	// Catalog API.
	mux.HandleFunc("GET /books", bookH.HandleList)
	mux.Handle("POST /books", requireAuth(bookH.HandleCreate))
	mux.Handle("PUT /books/{id}", requireAuth(bookH.HandleUpdate))
	mux.Handle("DELETE /books/{id}", requireAuth(bookH.HandleDelete))

	// Auth API.
	mux.Handle("POST /auth/register", rateLimited(authH.HandleRegister))
	mux.Handle("POST /auth/login", rateLimited(authH.HandleLogin))
	mux.HandleFunc("POST /auth/logout", authH.HandleLogout)
	mux.Handle("GET /auth/me", requireAuth(authH.HandleMe))
	mux.HandleFunc("POST /api/seed-user", authH.HandleSeedUser)

	if deps.OAuth != nil {
		oauthH := NewOAuthHandler(deps.Auth, deps.OAuth, "/auth/google", deps.CookieSecure)
		mux.HandleFunc("GET /auth/google", oauthH.HandleStart)
		mux.HandleFunc("GET /auth/google/callback", oauthH.HandleCallback)
	}

	// Pages.
	mux.Handle("GET /{$}", optionalAuth(pageH.HandleHome))
	mux.Handle("GET /ui/books", optionalAuth(pageH.HandleBookList))
	mux.Handle("POST /ui/login", rateLimited(pageH.HandleLogin))
	mux.Handle("POST /ui/register", rateLimited(pageH.HandleRegister))
	mux.HandleFunc("POST /ui/logout", pageH.HandleLogout)

	// Page actions. Forms redirect back to /; the rest answer with datastar
	// patches.
	mux.Handle("POST /ui/books", optionalAuth(pageH.HandleAdd))
	mux.Handle("GET /ui/books/{id}/edit", optionalAuth(pageH.HandleEditRow))
	mux.Handle("GET /ui/books/{id}/row", optionalAuth(pageH.HandleRow))
	mux.Handle("PUT /ui/books/{id}", optionalAuth(pageH.HandleSave))
	mux.Handle("DELETE /ui/books/{id}", optionalAuth(pageH.HandleDelete))
	mux.Handle("POST /ui/books/bulk-delete", optionalAuth(pageH.HandleBulkDelete))
}
