package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/msomdec/book-catalog/internal/domain"
)

const (
	maxTitleLength  = 200
	maxAuthorLength = 200
	maxGenreLength  = 100
)

// BookInput carries the three user-editable fields of a book. Create and
// update both require all of them.
type BookInput struct {
	Title  string
	Author string
	Genre  string
}

// Validate trims every field and rejects empty or oversized values.
func (in BookInput) Validate() (BookInput, error) {
	out := BookInput{
		Title:  strings.TrimSpace(in.Title),
		Author: strings.TrimSpace(in.Author),
		Genre:  strings.TrimSpace(in.Genre),
	}

	var missing []string
	if out.Title == "" {
		missing = append(missing, "title")
	}
	if out.Author == "" {
		missing = append(missing, "author")
	}
	if out.Genre == "" {
		missing = append(missing, "genre")
	}
	if len(missing) > 0 {
		return BookInput{}, fmt.Errorf("%w: missing required fields: %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}

	if utf8.RuneCountInString(out.Title) > maxTitleLength {
		return BookInput{}, fmt.Errorf("%w: title must be %d characters or fewer", domain.ErrInvalidInput, maxTitleLength)
	}
	if utf8.RuneCountInString(out.Author) > maxAuthorLength {
		return BookInput{}, fmt.Errorf("%w: author must be %d characters or fewer", domain.ErrInvalidInput, maxAuthorLength)
	}
	if utf8.RuneCountInString(out.Genre) > maxGenreLength {
		return BookInput{}, fmt.Errorf("%w: genre must be %d characters or fewer", domain.ErrInvalidInput, maxGenreLength)
	}
	return out, nil
}

// CatalogService applies the catalog rules on top of the book repository:
// reads are public, writes need an identity, and updates and deletes need
// ownership as decided by CanMutate.
type CatalogService struct {
	books domain.BookRepository
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(books domain.BookRepository) *CatalogService {
	return &CatalogService{books: books}
}

// List returns every book, newest first.
func (s *CatalogService) List(ctx context.Context) ([]domain.Book, error) {
	books, err := s.books.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// Get returns a single book. Reads are public.
func (s *CatalogService) Get(ctx context.Context, id string) (*domain.Book, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrNotFound
	}
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// Editable returns the book if identity may change it, with the same errors
// Update and Delete would return.
func (s *CatalogService) Editable(ctx context.Context, identity *domain.Identity, id string) (*domain.Book, error) {
	return s.authorize(ctx, identity, id)
}

// Create stores a new book owned by identity.
func (s *CatalogService) Create(ctx context.Context, identity *domain.Identity, in BookInput) (*domain.Book, error) {
	if identity == nil {
		return nil, domain.ErrUnauthenticated
	}

	in, err := in.Validate()
	if err != nil {
		return nil, err
	}

	owner := identity.UserID
	book := &domain.Book{
		Title:   in.Title,
		Author:  in.Author,
		Genre:   in.Genre,
		OwnerID: &owner,
	}
	if err := s.books.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// Update replaces all three fields of an existing book.
func (s *CatalogService) Update(ctx context.Context, identity *domain.Identity, id string, in BookInput) (*domain.Book, error) {
	book, err := s.authorize(ctx, identity, id)
	if err != nil {
		return nil, err
	}

	in, err = in.Validate()
	if err != nil {
		return nil, err
	}

	book.Title = in.Title
	book.Author = in.Author
	book.Genre = in.Genre
	if err := s.books.Update(ctx, book); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

// Delete removes a book. Deleting an id that no longer exists, including a
// second delete of the same id, is domain.ErrNotFound.
func (s *CatalogService) Delete(ctx context.Context, identity *domain.Identity, id string) error {
	if _, err := s.authorize(ctx, identity, id); err != nil {
		return err
	}

	if err := s.books.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// authorize walks a mutation request through authentication, target lookup
// and the ownership check, in that order, and returns the target on success.
func (s *CatalogService) authorize(ctx context.Context, identity *domain.Identity, id string) (*domain.Book, error) {
	if identity == nil {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrNotFound
	}

	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get book: %w", err)
	}

	if !CanMutate(identity, book) {
		return nil, domain.ErrForbidden
	}
	return book, nil
}
