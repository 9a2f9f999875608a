package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
)

// FS holds the SQL migration files, applied in lexical filename order.
//
//go:embed *.sql
var FS embed.FS

// ErrChecksumMismatch means a migration file changed after it was applied.
var ErrChecksumMismatch = errors.New("applied migration was modified")

// Runner applies the .sql files of a file system to a database, one
// transaction per file, and records each file with a checksum of its content.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
}

// NewRunner creates a Runner reading migrations from the root of fsys.
func NewRunner(db *sql.DB, fsys fs.FS) *Runner {
	return &Runner{db: db, fsys: fsys}
}

// Run applies the embedded migrations.
func Run(ctx context.Context, db *sql.DB) error {
	_, err := NewRunner(db, FS).Run(ctx)
	return err
}

type migration struct {
	filename string
	content  string
	checksum string
}

// Run verifies the already applied migrations and applies the rest, returning
// the filenames applied by this call. Nothing is applied if any recorded file
// no longer matches its checksum.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := r.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	all, err := r.load()
	if err != nil {
		return nil, fmt.Errorf("load migration files: %w", err)
	}

	var pending []migration
	for _, m := range all {
		sum, ok := applied[m.filename]
		if !ok {
			pending = append(pending, m)
			continue
		}
		// Rows recorded without a checksum are accepted as they are.
		if sum != "" && sum != m.checksum {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, m.filename)
		}
	}

	var done []string
	for _, m := range pending {
		if err := r.apply(ctx, m); err != nil {
			return done, fmt.Errorf("apply migration %s: %w", m.filename, err)
		}
		slog.Info("migration applied", "file", m.filename)
		done = append(done, m.filename)
	}
	return done, nil
}

// Pending lists the migrations Run would apply, without applying them.
func (r *Runner) Pending(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure migrations table: %w", err)
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	all, err := r.load()
	if err != nil {
		return nil, fmt.Errorf("load migration files: %w", err)
	}

	var pending []string
	for _, m := range all {
		if _, ok := applied[m.filename]; !ok {
			pending = append(pending, m.filename)
		}
	}
	return pending, nil
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL DEFAULT '',
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// applied maps each recorded filename to its checksum.
func (r *Runner) applied(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT filename, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var filename, checksum string
		if err := rows.Scan(&filename, &checksum); err != nil {
			return nil, err
		}
		applied[filename] = checksum
	}
	return applied, rows.Err()
}

func (r *Runner) load() ([]migration, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, err
	}

	var all []migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := fs.ReadFile(r.fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(content)
		all = append(all, migration{
			filename: entry.Name(),
			content:  string(content),
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	slices.SortFunc(all, func(a, b migration) int {
		return strings.Compare(a.filename, b.filename)
	})
	return all, nil
}

// apply runs one migration and records it in the same transaction, so a
// failed migration leaves no trace.
func (r *Runner) apply(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.content); err != nil {
		return fmt.Errorf("execute sql: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (filename, checksum) VALUES (?, ?)",
		m.filename, m.checksum,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}
