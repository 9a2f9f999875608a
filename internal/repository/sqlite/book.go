package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/msomdec/book-catalog/internal/domain"
)

// BookRepository implements domain.BookRepository using SQLite.
type BookRepository struct {
	db *sql.DB
}

// NewBookRepository creates a new SQLite-backed BookRepository.
func NewBookRepository(db *DB) *BookRepository {
	return &BookRepository{db: db.SqlDB}
}

const bookColumns = `id, title, author, genre, owner_id, created_at, updated_at`

func (r *BookRepository) Create(ctx context.Context, book *domain.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	var owner sql.NullString
	if book.OwnerID != nil {
		owner = sql.NullString{String: *book.OwnerID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO books (`+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Author, book.Genre, owner, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}

	book.CreatedAt = now
	book.UpdatedAt = now
	return nil
}

func (r *BookRepository) GetByID(ctx context.Context, id string) (*domain.Book, error) {
	book, err := scanBook(r.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query book by id: %w", err)
	}
	return book, nil
}

// List returns all books, newest first. Books created within the same clock
// tick fall back to insertion order.
func (r *BookRepository) List(ctx context.Context) ([]domain.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []domain.Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

// Update replaces title, author and genre. Ownership and creation time are
// never changed after insert.
func (r *BookRepository) Update(ctx context.Context, book *domain.Book) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE books SET title = ?, author = ?, genre = ?, updated_at = ? WHERE id = ?`,
		book.Title, book.Author, book.Genre, now, book.ID,
	)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	book.UpdatedAt = now
	return nil
}

func (r *BookRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanBook(row rowScanner) (*domain.Book, error) {
	var (
		book  domain.Book
		owner sql.NullString
	)
	if err := row.Scan(&book.ID, &book.Title, &book.Author, &book.Genre,
		&owner, &book.CreatedAt, &book.UpdatedAt); err != nil {
		return nil, err
	}
	if owner.Valid {
		book.OwnerID = &owner.String
	}
	return &book, nil
}
