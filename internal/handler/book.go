package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/msomdec/book-catalog/internal/domain"
	"github.com/msomdec/book-catalog/internal/service"
)

// BookHandler serves the catalog JSON API.
type BookHandler struct {
	catalog *service.CatalogService
}

// NewBookHandler creates a new BookHandler.
func NewBookHandler(catalog *service.CatalogService) *BookHandler {
	return &BookHandler{catalog: catalog}
}

type bookRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
}

func (req bookRequest) input() service.BookInput {
	return service.BookInput{Title: req.Title, Author: req.Author, Genre: req.Genre}
}

// HandleList returns every book, newest first.
// GET /books
// Response: [{...}, ...]
func (h *BookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	books, err := h.catalog.List(r.Context())
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTOs(books))
}

// HandleCreate stores a book owned by the caller.
// POST /books
// Request:  {"title":"...","author":"...","genre":"..."}
// Response: 201 {...}
func (h *BookHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	book, err := h.catalog.Create(r.Context(), IdentityFromContext(r.Context()), req.input())
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookDTO(book))
}

// HandleUpdate replaces the title, author and genre of a book.
// PUT /books/{id}
// Request:  {"title":"...","author":"...","genre":"..."}
// Response: 200 {...}
func (h *BookHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := readJSON(w, r, &req); err != nil {
		// A malformed body is a validation failure, reported only after the
		// lookup and ownership checks have passed.
		req = bookRequest{}
	}

	book, err := h.catalog.Update(r.Context(), IdentityFromContext(r.Context()), r.PathValue("id"), req.input())
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(book))
}

// HandleDelete removes a book.
// DELETE /books/{id}
// Response: 200 {"success":true}
func (h *BookHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), IdentityFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Not authenticated.")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Book not found.")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "You can only change books you added.")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	default:
		slog.Error("catalog request", "method", r.Method, "path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred. Please try again.")
	}
}

// validationMessage strips the sentinel prefix from a wrapped ErrInvalidInput.
func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": ")
	if msg == "" || msg == domain.ErrInvalidInput.Error() {
		return "Invalid input."
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
