package domain

import (
	"context"
	"time"
)

// Book is a catalog entry. OwnerID is nil for legacy records created before
// ownership was tracked.
type Book struct {
	ID        string
	Title     string
	Author    string
	Genre     string
	OwnerID   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookRepository defines persistence operations for books.
type BookRepository interface {
	Create(ctx context.Context, book *Book) error
	GetByID(ctx context.Context, id string) (*Book, error)
	// List returns every book, newest first.
	List(ctx context.Context) ([]Book, error)
	Update(ctx context.Context, book *Book) error
	Delete(ctx context.Context, id string) error
}
