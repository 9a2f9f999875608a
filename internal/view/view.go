// Package view renders the catalog page and its datastar fragments.
package view

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/a-h/templ"
	"github.com/msomdec/book-catalog/internal/domain"
	"github.com/msomdec/book-catalog/internal/service"
)

// Page is everything the full catalog page shows.
type Page struct {
	Identity     *domain.Identity
	OAuthEnabled bool
	Books        []domain.Book
	Notice       string
	Login        LoginForm
	Form         BookForm
}

// LoginForm keeps the sign-in form's email and error across a failed attempt.
// The password is never echoed back.
type LoginForm struct {
	Email string
	Error string
}

// BookForm keeps the add-book form's values and error across a failed attempt.
type BookForm struct {
	Title  string
	Author string
	Genre  string
	Error  string
}

// Row is one rendered catalog row.
type Row struct {
	Book       domain.Book
	Selectable bool
	Selected   bool
	Mine       bool
	Unowned    bool
	Editable   bool
}

// NewRow works out how a book is shown to identity.
func NewRow(identity *domain.Identity, book domain.Book, selected bool) Row {
	return Row{
		Book:       book,
		Selectable: identity != nil,
		Selected:   selected,
		Mine:       identity != nil && book.OwnerID != nil && *book.OwnerID == identity.UserID,
		Unowned:    book.OwnerID == nil,
		Editable:   service.CanMutate(identity, &book),
	}
}

type listing struct {
	Rows        []Row
	Total       int
	Page        int
	TotalPages  int
	Selectable  bool
	AllSelected bool
}

func (l listing) HasPrev() bool { return l.Page > 1 }

func (l listing) HasNext() bool { return l.Page < l.TotalPages }

func (l listing) Summary() string {
	return fmt.Sprintf("Page %d of %d (%d books)", l.Page, l.TotalPages, l.Total)
}

// BookList renders one page of the catalog table with the given ids checked.
// It is the content patched into #book-list.
func BookList(identity *domain.Identity, books []domain.Book, page int, selected []string) templ.Component {
	return bookTable(newListing(identity, books, page, selected))
}

func newListing(identity *domain.Identity, books []domain.Book, page int, selected []string) listing {
	current, pages, start, end := domain.PageBounds(len(books), page)

	l := listing{
		Rows:       make([]Row, 0, end-start),
		Total:      len(books),
		Page:       current,
		TotalPages: pages,
		Selectable: identity != nil,
	}
	l.AllSelected = l.Selectable && end > start
	for _, b := range books[start:end] {
		checked := slices.Contains(selected, b.ID)
		l.AllSelected = l.AllSelected && checked
		l.Rows = append(l.Rows, NewRow(identity, b, checked))
	}
	return l
}

// RowID is the element id of a book's table row.
func RowID(bookID string) string {
	return "book-" + bookID
}

func displayName(identity *domain.Identity) string {
	if identity.DisplayName != "" {
		return identity.DisplayName
	}
	return identity.Email
}

// initialSignals seeds the page's datastar signals. total lets fragment
// requests notice that the list changed length.
func initialSignals(total int) string {
	return marshal(map[string]any{
		"page":     1,
		"total":    total,
		"selected": []string{},
		"title":    "",
		"author":   "",
		"genre":    "",
	})
}

func pageAction(page int) string {
	return "@get('/ui/books?page=" + strconv.Itoa(page) + "')"
}

func selectPageAction(page int) string {
	return fmt.Sprintf("@get('/ui/books?page=%d&select=' + (evt.target.checked ? 'all' : 'none'))", page)
}

func toggleAction(bookID string) string {
	id := marshal(bookID)
	return fmt.Sprintf("$selected = evt.target.checked ? [...$selected, %s] : $selected.filter(s => s !== %s)", id, id)
}

func editAction(bookID string) string {
	return "@get(" + marshal(bookPath(bookID)+"/edit") + ")"
}

func cancelAction(bookID string) string {
	return "@get(" + marshal(bookPath(bookID)+"/row") + ")"
}

func saveAction(bookID string) string {
	return "@put(" + marshal(bookPath(bookID)) + ")"
}

func deleteAction(bookID string) string {
	return "@delete(" + marshal(bookPath(bookID)) + ")"
}

func bookPath(bookID string) string {
	return "/ui/books/" + url.PathEscape(bookID)
}

// marshal encodes v as a JavaScript literal. Strings and string slices
// cannot fail to encode.
func marshal(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
