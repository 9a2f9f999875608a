package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/msomdec/book-catalog/internal/client"
	"github.com/msomdec/book-catalog/internal/handler"
	"github.com/msomdec/book-catalog/internal/repository/sqlite"
	"github.com/msomdec/book-catalog/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	auth := service.NewAuthService(db.Users(), service.NewBcryptHasher(4), "client-test-secret-0123456789abcdef", time.Hour)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.Dependencies{
		Auth:    auth,
		Catalog: service.NewCatalogService(db.Books()),
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func signedIn(t *testing.T, baseURL, email string) *client.Client {
	t.Helper()
	ctx := context.Background()
	c := client.New(baseURL)
	_, err := c.Register(ctx, email, "password123", "")
	require.NoError(t, err)
	user, err := c.Login(ctx, email, "password123")
	require.NoError(t, err)
	require.Equal(t, email, user.Email)
	require.True(t, c.HasSession())
	return c
}

func TestClient_ErrorMapping(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	alice := signedIn(t, srv.URL, "alice@example.com")
	bob := signedIn(t, srv.URL, "bob@example.com")
	anon := client.New(srv.URL)

	book, err := alice.CreateBook(ctx, client.BookInput{Title: "Dune", Author: "Herbert", Genre: "SciFi"})
	require.NoError(t, err)
	require.NotNil(t, book.OwnerID)
	assert.False(t, book.CreatedAt.IsZero())

	_, err = anon.CreateBook(ctx, client.BookInput{Title: "T", Author: "A", Genre: "G"})
	assert.ErrorIs(t, err, client.ErrUnauthenticated)

	_, err = alice.CreateBook(ctx, client.BookInput{Title: "T", Author: "A"})
	assert.ErrorIs(t, err, client.ErrValidation)

	err = bob.DeleteBook(ctx, book.ID)
	assert.ErrorIs(t, err, client.ErrForbidden)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.NotEmpty(t, apiErr.Message)

	_, err = alice.UpdateBook(ctx, "missing", client.BookInput{Title: "T", Author: "A", Genre: "G"})
	assert.ErrorIs(t, err, client.ErrNotFound)

	_, err = anon.Register(ctx, "alice@example.com", "password123", "")
	assert.ErrorIs(t, err, client.ErrConflict)

	_, err = anon.Login(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
	assert.False(t, anon.HasSession())
}

func TestClient_SessionTokenRoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	alice := signedIn(t, srv.URL, "alice@example.com")

	restored := client.New(srv.URL)
	restored.SetSessionToken(alice.SessionToken())
	me, err := restored.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", me.Email)

	require.NoError(t, restored.Logout(ctx))
	assert.False(t, restored.HasSession())
	_, err = restored.Me(ctx)
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
}

func TestListState_AgainstServer(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	alice := signedIn(t, srv.URL, "alice@example.com")
	bob := signedIn(t, srv.URL, "bob@example.com")

	for i := 0; i < 12; i++ {
		_, err := alice.CreateBook(ctx, client.BookInput{Title: fmt.Sprintf("Alice %02d", i), Author: "A", Genre: "G"})
		require.NoError(t, err)
	}
	bobsBook, err := bob.CreateBook(ctx, client.BookInput{Title: "Bob's", Author: "B", Genre: "G"})
	require.NoError(t, err)

	state := client.NewListState(alice, nil)
	require.NoError(t, state.Refresh(ctx))
	require.Equal(t, 2, state.TotalPages())
	assert.Equal(t, bobsBook.ID, state.CurrentPage()[0].ID, "newest book first")

	// Edit in place.
	target := state.CurrentPage()[1]
	require.NoError(t, state.BeginEdit(ctx, target))
	_, err = state.SaveEdit(ctx, client.BookInput{Title: "Renamed", Author: "A", Genre: "G"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", state.CurrentPage()[1].Title)

	// Bulk delete the first page: Bob's book is refused, the rest go.
	state.SelectAllOnPage(true)
	require.Len(t, state.Selected(), 10)
	result, err := state.BulkDelete(ctx)
	require.NoError(t, err)
	assert.Len(t, result.Deleted, 9)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, bobsBook.ID, result.Failed[0].ID)
	assert.ErrorIs(t, result.Failed[0].Err, client.ErrForbidden)

	assert.Empty(t, state.Selected())
	assert.Len(t, state.Books(), 4)
	assert.Equal(t, 1, state.TotalPages())
}
