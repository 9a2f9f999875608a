package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/msomdec/book-catalog/internal/client"
	"github.com/msomdec/book-catalog/internal/handler"
	"github.com/msomdec/book-catalog/internal/repository/sqlite"
	"github.com/msomdec/book-catalog/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	t      *testing.T
	server string
	config string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	auth := service.NewAuthService(db.Users(), service.NewBcryptHasher(4), "bookctl-test-secret-0123456789abcdef", time.Hour)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.Dependencies{
		Auth:    auth,
		Catalog: service.NewCatalogService(db.Books()),
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &cliEnv{t: t, server: srv.URL, config: filepath.Join(t.TempDir(), "bookctl.toml")}
}

// run executes one bookctl invocation and returns its standard output.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	var out bytes.Buffer
	err := e.runTo(&out, args...)
	return out.String(), err
}

func (e *cliEnv) runTo(out io.Writer, args ...string) error {
	e.t.Helper()
	runner := NewRunner(RunnerOpts{
		Logger: log.New(io.Discard),
		Output: out,
	})
	argv := append([]string{"bookctl", "--config", e.config, "--server", e.server}, args...)
	return newApp(runner).Run(context.Background(), argv)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "bookctl %s", strings.Join(args, " "))
	return out
}

func (e *cliEnv) signIn(email string) {
	e.t.Helper()
	e.mustRun("register", "--email", email, "--password", "password123")
	out := e.mustRun("login", "--email", email, "--password", "password123")
	require.Contains(e.t, out, "Signed in as "+email)
}

func (e *cliEnv) bookIDs() []string {
	e.t.Helper()
	config, err := LoadConfig(e.config)
	require.NoError(e.t, err)
	c := client.New(e.server)
	c.SetSessionToken(config.Session.Token)
	books, err := c.ListBooks(context.Background())
	require.NoError(e.t, err)
	ids := make([]string, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	return ids
}

func TestRunner_LoginSavesSession(t *testing.T) {
	env := newCLIEnv(t)
	env.signIn("a@x.com")

	config, err := LoadConfig(env.config)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", config.Session.Email)
	assert.NotEmpty(t, config.Session.Token)

	env.mustRun("logout")
	config, err = LoadConfig(env.config)
	require.NoError(t, err)
	assert.Empty(t, config.Session.Token)
}

func TestRunner_LoginWrongPassword(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "--email", "a@x.com", "--password", "password123")

	_, err := env.run("login", "--email", "a@x.com", "--password", "wrong-password")
	assert.ErrorContains(t, err, "invalid email or password")
}

func TestRunner_AddListEditDelete(t *testing.T) {
	env := newCLIEnv(t)
	env.signIn("a@x.com")

	out := env.mustRun("add", "--title", "Dune", "--author", "Herbert", "--genre", "SciFi")
	assert.Contains(t, out, `Added "Dune"`)

	ids := env.bookIDs()
	require.Len(t, ids, 1)

	out = env.mustRun("list")
	assert.Contains(t, out, "Dune")
	assert.Contains(t, out, "Herbert")
	assert.Contains(t, out, "Page 1 of 1 (1 books)")

	out = env.mustRun("edit", "--title", "Dune Messiah", ids[0])
	assert.Contains(t, out, `Updated "Dune Messiah"`)

	out = env.mustRun("list")
	assert.Contains(t, out, "Dune Messiah")
	assert.Contains(t, out, "Herbert", "fields not passed keep their value")

	out = env.mustRun("delete", ids[0])
	assert.Contains(t, out, "Deleted "+ids[0])
	assert.Empty(t, env.bookIDs())
}

func TestRunner_MutationsRequireSession(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("add", "--title", "Dune", "--author", "Herbert", "--genre", "SciFi")
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
}

func TestRunner_ExpiredSessionIsCleared(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, SaveConfig(env.config, &Config{
		Server:  env.server,
		Session: SessionConfig{Email: "a@x.com", Token: "not-a-valid-token"},
	}))

	_, err := env.run("add", "--title", "Dune", "--author", "Herbert", "--genre", "SciFi")
	assert.ErrorIs(t, err, client.ErrUnauthenticated)

	config, err := LoadConfig(env.config)
	require.NoError(t, err)
	assert.Empty(t, config.Session.Token)
}

func TestRunner_BulkDelete(t *testing.T) {
	env := newCLIEnv(t)
	env.signIn("a@x.com")
	for _, title := range []string{"One", "Two", "Three"} {
		env.mustRun("add", "--title", title, "--author", "Someone", "--genre", "Fiction")
	}

	ids := env.bookIDs()
	require.Len(t, ids, 3)

	out := env.mustRun("bulk-delete", ids[0], ids[2])
	assert.Contains(t, out, "Deleted 2 of 2")
	assert.Equal(t, []string{ids[1]}, env.bookIDs())

	out = env.mustRun("bulk-delete", "--all")
	assert.Contains(t, out, "Deleted 1 of 1")
	assert.Empty(t, env.bookIDs())

	_, err := env.run("bulk-delete")
	assert.ErrorContains(t, err, "nothing selected")
}

func TestRunner_BulkDeleteReportsRefusals(t *testing.T) {
	env := newCLIEnv(t)
	env.signIn("a@x.com")
	env.mustRun("add", "--title", "Mine", "--author", "A", "--genre", "G")

	env.signIn("b@x.com")
	env.mustRun("add", "--title", "Theirs", "--author", "B", "--genre", "G")

	out := env.mustRun("bulk-delete", "--all")
	assert.Contains(t, out, "Deleted 1 of 2")

	ids := env.bookIDs()
	assert.Len(t, ids, 1, "the book owned by a@x.com survives")
}

func TestRunner_BulkDeleteAbortKeepsOutputError(t *testing.T) {
	env := newCLIEnv(t)
	env.signIn("a@x.com")
	env.mustRun("add", "--title", "One", "--author", "A", "--genre", "G")

	config, err := LoadConfig(env.config)
	require.NoError(t, err)
	config.Session.Token = "revoked-token"
	require.NoError(t, SaveConfig(env.config, config))

	err = env.runTo(failingWriter{}, "bulk-delete", "--all")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
	assert.ErrorContains(t, err, "failed to write output")
}
