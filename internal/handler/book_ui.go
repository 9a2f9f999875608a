package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/msomdec/book-catalog/internal/domain"
	"github.com/msomdec/book-catalog/internal/service"
	"github.com/msomdec/book-catalog/internal/view"
	"github.com/starfederation/datastar-go/datastar"
)

// pageSignals mirrors the signals the catalog page keeps on <body>. Total is
// the list length the page last rendered; nil when the request carried no
// signals.
type pageSignals struct {
	Page     int      `json:"page"`
	Total    *int     `json:"total"`
	Selected []string `json:"selected"`
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Genre    string   `json:"genre"`
}

// readPageSignals must run before the SSE stream is opened. Missing or
// malformed signals read as an empty selection on page 1.
func readPageSignals(r *http.Request) pageSignals {
	var s pageSignals
	if err := datastar.ReadSignals(r, &s); err != nil {
		slog.Debug("read datastar signals", "error", err, "request_id", RequestIDFromContext(r.Context()))
		return pageSignals{}
	}
	return s
}

// HandleAdd creates a book from the page's form and goes back to the
// catalog, which refetches the list.
// POST /ui/books
func (h *PageHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		http.Redirect(w, r, "/?signin=required", http.StatusSeeOther)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	form := view.BookForm{
		Title:  r.FormValue("title"),
		Author: r.FormValue("author"),
		Genre:  r.FormValue("genre"),
	}

	_, err := h.catalog.Create(r.Context(), identity, service.BookInput{Title: form.Title, Author: form.Author, Genre: form.Genre})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidInput) {
			status, form.Error = http.StatusBadRequest, validationMessage(err)
		} else {
			slog.Error("create book from page", "error", err, "request_id", RequestIDFromContext(r.Context()))
			form.Error = unexpectedNotice
		}
		h.renderHome(w, r, status, view.Page{Form: form})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleEditRow swaps a row for its edit form and loads the book into the
// title, author and genre signals.
// GET /ui/books/{id}/edit
func (h *PageHandler) HandleEditRow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sse := datastar.NewSSE(w, r)

	book, err := h.catalog.Editable(r.Context(), IdentityFromContext(r.Context()), id)
	if err != nil {
		h.patchError(sse, r, id, err)
		return
	}

	sse.MarshalAndPatchSignals(map[string]string{"title": book.Title, "author": book.Author, "genre": book.Genre})
	sse.PatchElementTempl(view.BookEditRow(*book), datastar.WithSelectorID(view.RowID(book.ID)))
}

// HandleRow puts a row back the way it was, abandoning an edit.
// GET /ui/books/{id}/row
func (h *PageHandler) HandleRow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	signals := readPageSignals(r)
	sse := datastar.NewSSE(w, r)

	book, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.patchError(sse, r, id, err)
		return
	}

	row := view.NewRow(IdentityFromContext(r.Context()), *book, slices.Contains(signals.Selected, book.ID))
	sse.PatchElementTempl(view.BookRow(row), datastar.WithSelectorID(view.RowID(book.ID)))
}

// HandleSave stores an edit and patches only that row. A failed save leaves
// the edit form open.
// PUT /ui/books/{id}
func (h *PageHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	identity := IdentityFromContext(r.Context())
	signals := readPageSignals(r)
	sse := datastar.NewSSE(w, r)

	book, err := h.catalog.Update(r.Context(), identity, id, service.BookInput{
		Title:  signals.Title,
		Author: signals.Author,
		Genre:  signals.Genre,
	})
	if err != nil {
		h.patchError(sse, r, id, err)
		return
	}

	row := view.NewRow(identity, *book, slices.Contains(signals.Selected, book.ID))
	sse.PatchElementTempl(view.BookRow(row), datastar.WithSelectorID(view.RowID(book.ID)))
	sse.MarshalAndPatchSignals(map[string]string{"title": "", "author": "", "genre": ""})
	sse.PatchElementTempl(view.Flash(""), datastar.WithSelectorID("flash"))
}

// HandleDelete deletes one book, refetches the list and drops the book from
// the selection.
// DELETE /ui/books/{id}
func (h *PageHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	identity := IdentityFromContext(r.Context())
	signals := readPageSignals(r)
	sse := datastar.NewSSE(w, r)

	if err := h.catalog.Delete(r.Context(), identity, id); err != nil {
		h.patchError(sse, r, id, err)
		return
	}

	selected := slices.DeleteFunc(slices.Clone(signals.Selected), func(v string) bool { return v == id })
	h.refreshList(sse, r, signals, selected)
	sse.PatchElementTempl(view.Flash(""), datastar.WithSelectorID("flash"))
}

// HandleBulkDelete deletes the selected books one at a time in selection
// order. A book that is gone or belongs to someone else is counted and
// skipped. Any other failure stops the batch and keeps the books not yet
// deleted selected; a finished batch clears the selection.
// POST /ui/books/bulk-delete
func (h *PageHandler) HandleBulkDelete(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	signals := readPageSignals(r)
	sse := datastar.NewSSE(w, r)

	if identity == nil {
		h.promptSignIn(sse)
		return
	}
	if len(signals.Selected) == 0 {
		sse.PatchElementTempl(view.Flash("Select at least one book to delete."), datastar.WithSelectorID("flash"))
		return
	}

	var deleted []string
	var skipped int
	var stopErr error
	for _, id := range signals.Selected {
		err := h.catalog.Delete(r.Context(), identity, id)
		if err == nil {
			deleted = append(deleted, id)
			continue
		}
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrForbidden) {
			skipped++
			continue
		}
		stopErr = err
		break
	}

	total := len(signals.Selected)
	var selected []string
	msg := fmt.Sprintf("Deleted %d of %d selected books.", len(deleted), total)
	if skipped > 0 {
		msg += fmt.Sprintf(" %d could not be deleted.", skipped)
	}
	if stopErr != nil {
		slog.Error("bulk delete stopped", "error", stopErr, "deleted", len(deleted), "selected", total,
			"request_id", RequestIDFromContext(r.Context()))
		selected = slices.DeleteFunc(slices.Clone(signals.Selected), func(v string) bool { return slices.Contains(deleted, v) })
		msg = fmt.Sprintf("Deleted %d of %d selected books before an error stopped the rest.", len(deleted), total)
	}

	h.refreshList(sse, r, signals, selected)
	if errors.Is(stopErr, domain.ErrUnauthenticated) {
		h.promptSignIn(sse)
		return
	}
	sse.PatchElementTempl(view.Flash(msg), datastar.WithSelectorID("flash"))
}

// refreshList refetches the catalog and patches it. The page falls back to 1
// when the list changed length since the page last rendered it.
func (h *PageHandler) refreshList(sse *datastar.ServerSentEventGenerator, r *http.Request, signals pageSignals, selected []string) {
	books, err := h.catalog.List(r.Context())
	if err != nil {
		slog.Error("refetch books", "error", err, "request_id", RequestIDFromContext(r.Context()))
		sse.PatchElementTempl(view.Flash(unexpectedNotice), datastar.WithSelectorID("flash"))
		return
	}

	page := signals.Page
	if signals.Total != nil && *signals.Total != len(books) {
		page = 1
	}
	patchBookList(sse, IdentityFromContext(r.Context()), books, page, selected)
}

// patchBookList patches the table into #book-list and syncs the page, total
// and selected signals. Selected ids that are no longer listed are dropped.
func patchBookList(sse *datastar.ServerSentEventGenerator, identity *domain.Identity, books []domain.Book, page int, selected []string) {
	kept := make([]string, 0, len(selected))
	for _, id := range selected {
		if slices.ContainsFunc(books, func(b domain.Book) bool { return b.ID == id }) {
			kept = append(kept, id)
		}
	}
	current, _, _, _ := domain.PageBounds(len(books), page)

	sse.PatchElementTempl(
		view.BookList(identity, books, current, kept),
		datastar.WithSelectorID("book-list"),
		datastar.WithModeInner(),
	)
	sse.MarshalAndPatchSignals(map[string]any{
		"page":     current,
		"total":    len(books),
		"selected": kept,
	})
}

// selectPage checks or clears every book on one page, keeping the selection
// of other pages.
func selectPage(books []domain.Book, page int, selected []string, on bool) []string {
	_, _, start, end := domain.PageBounds(len(books), page)
	out := slices.Clone(selected)
	for _, b := range books[start:end] {
		has := slices.Contains(out, b.ID)
		switch {
		case on && !has:
			out = append(out, b.ID)
		case !on && has:
			out = slices.DeleteFunc(out, func(id string) bool { return id == b.ID })
		}
	}
	return out
}

// patchError reports a failed book action in the page. A book that turned
// out to be gone is also removed from the table.
func (h *PageHandler) patchError(sse *datastar.ServerSentEventGenerator, r *http.Request, id string, err error) {
	var msg string
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		h.promptSignIn(sse)
		return
	case errors.Is(err, domain.ErrNotFound):
		msg = "That book no longer exists."
		if id != "" {
			sse.RemoveElementByID(view.RowID(id))
		}
	case errors.Is(err, domain.ErrForbidden):
		msg = "You can only change books you added."
	case errors.Is(err, domain.ErrInvalidInput):
		msg = validationMessage(err)
	default:
		slog.Error("book action", "method", r.Method, "path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()), "error", err)
		msg = unexpectedNotice
	}
	sse.PatchElementTempl(view.Flash(msg), datastar.WithSelectorID("flash"))
}

// promptSignIn swaps the session bar for the sign-in form and says why.
func (h *PageHandler) promptSignIn(sse *datastar.ServerSentEventGenerator) {
	sse.PatchElementTempl(view.SessionBar(nil, h.oauthEnabled, view.LoginForm{}), datastar.WithSelectorID("session"))
	sse.PatchElementTempl(view.Flash(signInNotice), datastar.WithSelectorID("flash"))
}
