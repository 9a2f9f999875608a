package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/msomdec/book-catalog/internal/domain"
	"github.com/msomdec/book-catalog/internal/service"
	"github.com/msomdec/book-catalog/internal/view"
	"github.com/starfederation/datastar-go/datastar"
)

const (
	signInNotice     = "Please sign in to continue."
	unexpectedNotice = "An unexpected error occurred. Please try again."
)

// PageHandler serves the HTML catalog page, its forms and its datastar
// fragments.
type PageHandler struct {
	auth         *service.AuthService
	catalog      *service.CatalogService
	oauthEnabled bool
	cookieSecure bool
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(auth *service.AuthService, catalog *service.CatalogService, oauthEnabled, cookieSecure bool) *PageHandler {
	return &PageHandler{auth: auth, catalog: catalog, oauthEnabled: oauthEnabled, cookieSecure: cookieSecure}
}

// HandleHome renders the home page.
// GET /
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	page := view.Page{Identity: IdentityFromContext(r.Context())}
	if r.URL.Query().Get("signin") == "required" && page.Identity == nil {
		page.Notice = signInNotice
	}
	h.renderHome(w, r, http.StatusOK, page)
}

// HandleLogin signs in from the page's form and goes back to the catalog.
// POST /ui/login
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	email := r.FormValue("email")

	token, expiresAt, _, err := h.auth.Login(r.Context(), email, r.FormValue("password"))
	if err != nil {
		status, msg := http.StatusUnauthorized, "Invalid email or password."
		if !errors.Is(err, domain.ErrUnauthenticated) {
			slog.Error("login user from page", "error", err, "request_id", RequestIDFromContext(r.Context()))
			status, msg = http.StatusInternalServerError, unexpectedNotice
		}
		h.renderHome(w, r, status, view.Page{Login: view.LoginForm{Email: email, Error: msg}})
		return
	}

	setSessionCookie(w, token, expiresAt, h.cookieSecure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleRegister creates an account from the page's form and signs it in.
// POST /ui/register
func (h *PageHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	email, password := r.FormValue("email"), r.FormValue("password")

	if _, err := h.auth.Register(r.Context(), email, password, ""); err != nil {
		status, msg := http.StatusInternalServerError, unexpectedNotice
		switch {
		case errors.Is(err, domain.ErrDuplicateEmail):
			status, msg = http.StatusConflict, "An account with that email already exists."
		case errors.Is(err, domain.ErrInvalidInput):
			status, msg = http.StatusBadRequest, validationMessage(err)
		default:
			slog.Error("register user from page", "error", err, "request_id", RequestIDFromContext(r.Context()))
		}
		h.renderHome(w, r, status, view.Page{Login: view.LoginForm{Email: email, Error: msg}})
		return
	}

	token, expiresAt, _, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		slog.Error("sign in new user", "error", err, "request_id", RequestIDFromContext(r.Context()))
		h.renderHome(w, r, http.StatusInternalServerError, view.Page{Login: view.LoginForm{Email: email, Error: unexpectedNotice}})
		return
	}

	setSessionCookie(w, token, expiresAt, h.cookieSecure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie and goes back to the catalog.
// POST /ui/logout
func (h *PageHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, sessionCookieName, "/", h.cookieSecure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleBookList patches one page of the book table into #book-list via SSE.
// With select=all or select=none it also checks or clears every book on that
// page.
// GET /ui/books?page=N[&select=all|none]
func (h *PageHandler) HandleBookList(w http.ResponseWriter, r *http.Request) {
	signals := readPageSignals(r)
	page := signals.Page
	if v := r.URL.Query().Get("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			page = parsed
		}
	}

	books, err := h.catalog.List(r.Context())
	if err != nil {
		slog.Error("list books for fragment", "error", err, "request_id", RequestIDFromContext(r.Context()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	selected := signals.Selected
	switch r.URL.Query().Get("select") {
	case "all":
		selected = selectPage(books, page, selected, true)
	case "none":
		selected = selectPage(books, page, selected, false)
	}

	sse := datastar.NewSSE(w, r)
	patchBookList(sse, IdentityFromContext(r.Context()), books, page, selected)
}

func (h *PageHandler) renderHome(w http.ResponseWriter, r *http.Request, status int, page view.Page) {
	books, err := h.catalog.List(r.Context())
	if err != nil {
		slog.Error("list books for home page", "error", err, "request_id", RequestIDFromContext(r.Context()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if page.Identity == nil {
		page.Identity = IdentityFromContext(r.Context())
	}
	page.OAuthEnabled = h.oauthEnabled
	page.Books = books

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := view.HomePage(page).Render(r.Context(), w); err != nil {
		slog.Error("render home page", "error", err)
	}
}
