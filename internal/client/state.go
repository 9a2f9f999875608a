package client

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/msomdec/book-catalog/internal/domain"
)

// PageSize is the number of books on one page.
const PageSize = domain.PageSize

// SignInFunc is called whenever an action needs a session the client does
// not have, or the server rejected the one it has.
type SignInFunc func(ctx context.Context) error

// BulkDeleteFailure records an id the server refused to delete.
type BulkDeleteFailure struct {
	ID  string
	Err error
}

// BulkDeleteResult lists what a bulk delete did before it finished.
type BulkDeleteResult struct {
	Deleted []string
	Failed  []BulkDeleteFailure
}

// ListState holds the fetched collection and the view state around it. It
// is not safe for concurrent use.
type ListState struct {
	api    API
	signIn SignInFunc

	books    []Book
	page     int
	selected []string
	editing  *Book
}

// NewListState creates an empty state. signIn may be nil.
func NewListState(api API, signIn SignInFunc) *ListState {
	if signIn == nil {
		signIn = func(context.Context) error { return nil }
	}
	return &ListState{api: api, signIn: signIn, page: 1}
}

// Refresh refetches the whole collection. The page goes back to 1 whenever
// the number of books changed. On failure the previous state is kept.
func (s *ListState) Refresh(ctx context.Context) error {
	books, err := s.api.ListBooks(ctx)
	if err != nil {
		return fmt.Errorf("list books: %w", err)
	}
	if len(books) != len(s.books) {
		s.page = 1
	}
	s.books = books
	s.page, _, _, _ = domain.PageBounds(len(s.books), s.page)
	return nil
}

// Books returns the whole collection in server order.
func (s *ListState) Books() []Book {
	return s.books
}

// Page returns the current 1-based page number.
func (s *ListState) Page() int {
	return s.page
}

// TotalPages is at least 1, even for an empty collection.
func (s *ListState) TotalPages() int {
	_, pages, _, _ := domain.PageBounds(len(s.books), s.page)
	return pages
}

// CurrentPage returns the books on the current page.
func (s *ListState) CurrentPage() []Book {
	_, _, start, end := domain.PageBounds(len(s.books), s.page)
	return s.books[start:end]
}

// SetPage moves to page n, clamped to the valid range.
func (s *ListState) SetPage(n int) {
	s.page, _, _, _ = domain.PageBounds(len(s.books), n)
}

func (s *ListState) NextPage() { s.SetPage(s.page + 1) }
func (s *ListState) PrevPage() { s.SetPage(s.page - 1) }

// Select adds or removes id from the selection. Selection order is kept and
// an id is never held twice.
func (s *ListState) Select(id string, selected bool) {
	if selected {
		if !slices.Contains(s.selected, id) {
			s.selected = append(s.selected, id)
		}
		return
	}
	s.selected = slices.DeleteFunc(s.selected, func(v string) bool { return v == id })
}

// SelectAllOnPage selects or deselects every book on the current page,
// leaving selections on other pages alone.
func (s *ListState) SelectAllOnPage(selected bool) {
	for _, b := range s.CurrentPage() {
		s.Select(b.ID, selected)
	}
}

// Selected returns the selected ids in the order they were selected.
func (s *ListState) Selected() []string {
	return slices.Clone(s.selected)
}

func (s *ListState) IsSelected(id string) bool {
	return slices.Contains(s.selected, id)
}

// BeginEdit makes book the edit target. Without a session the sign-in hook
// runs instead.
func (s *ListState) BeginEdit(ctx context.Context, book Book) error {
	if !s.api.HasSession() {
		return s.requireSignIn(ctx)
	}
	b := book
	s.editing = &b
	return nil
}

func (s *ListState) CancelEdit() {
	s.editing = nil
}

// Editing returns the current edit target, or nil.
func (s *ListState) Editing() *Book {
	return s.editing
}

// SaveEdit sends the edit and on success replaces the record in place, by
// id, without refetching. The edit target stays open on failure.
func (s *ListState) SaveEdit(ctx context.Context, in BookInput) (*Book, error) {
	if s.editing == nil {
		return nil, errors.New("no book is being edited")
	}
	if !s.api.HasSession() {
		return nil, s.requireSignIn(ctx)
	}

	updated, err := s.api.UpdateBook(ctx, s.editing.ID, in)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, s.requireSignIn(ctx)
		}
		return nil, fmt.Errorf("update book: %w", err)
	}

	for i := range s.books {
		if s.books[i].ID == updated.ID {
			s.books[i] = *updated
		}
	}
	s.editing = nil
	return updated, nil
}

// Create adds a book and refetches the collection.
func (s *ListState) Create(ctx context.Context, in BookInput) (*Book, error) {
	if !s.api.HasSession() {
		return nil, s.requireSignIn(ctx)
	}

	book, err := s.api.CreateBook(ctx, in)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, s.requireSignIn(ctx)
		}
		return nil, fmt.Errorf("create book: %w", err)
	}
	return book, s.Refresh(ctx)
}

// Delete removes one book, drops it from the selection and refetches.
func (s *ListState) Delete(ctx context.Context, id string) error {
	if !s.api.HasSession() {
		return s.requireSignIn(ctx)
	}

	if err := s.api.DeleteBook(ctx, id); err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return s.requireSignIn(ctx)
		}
		return fmt.Errorf("delete book: %w", err)
	}
	s.Select(id, false)
	return s.Refresh(ctx)
}

// BulkDelete deletes the selected books one at a time, in selection order.
// Nothing is rolled back. A 401 stops the batch at once, leaving later ids
// untouched and selected, and runs the sign-in hook. A transport failure
// stops the batch and refetches so the surviving books show. Any other
// per-book refusal is recorded and the batch moves on. When the batch
// completes the selection is cleared and the collection refetched.
func (s *ListState) BulkDelete(ctx context.Context) (BulkDeleteResult, error) {
	var result BulkDeleteResult
	if len(s.selected) == 0 {
		return result, nil
	}
	if !s.api.HasSession() {
		return result, s.requireSignIn(ctx)
	}

	for _, id := range slices.Clone(s.selected) {
		err := s.api.DeleteBook(ctx, id)
		if err == nil {
			result.Deleted = append(result.Deleted, id)
			s.Select(id, false)
			continue
		}

		if errors.Is(err, ErrUnauthenticated) {
			return result, s.requireSignIn(ctx)
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			if refreshErr := s.Refresh(ctx); refreshErr != nil {
				return result, errors.Join(fmt.Errorf("%w: %w", ErrBulkDeleteFailed, err), refreshErr)
			}
			return result, fmt.Errorf("%w: %w", ErrBulkDeleteFailed, err)
		}
		result.Failed = append(result.Failed, BulkDeleteFailure{ID: id, Err: err})
	}

	s.selected = nil
	return result, s.Refresh(ctx)
}

func (s *ListState) requireSignIn(ctx context.Context) error {
	if err := s.signIn(ctx); err != nil {
		return errors.Join(ErrUnauthenticated, fmt.Errorf("sign in: %w", err))
	}
	return ErrUnauthenticated
}
