package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/msomdec/book-catalog/internal/domain"
	"github.com/msomdec/book-catalog/internal/handler"
	"github.com/msomdec/book-catalog/internal/repository/sqlite"
	"github.com/msomdec/book-catalog/internal/service"
)

// newTestServer serves the full route table over a fresh database. mutate
// may adjust the dependencies before routes are registered.
func newTestServer(t *testing.T, mutate func(*handler.Dependencies)) *httptest.Server {
	t.Helper()
	auth, catalog, _ := newTestServices(t)

	deps := handler.Dependencies{Auth: auth, Catalog: catalog}
	if mutate != nil {
		mutate(&deps)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, deps)

	srv := httptest.NewServer(handler.RequestID(mux))
	t.Cleanup(srv.Close)
	return srv
}

func newJarClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("create cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // don't follow redirects automatically
		},
	}
}

// doJSON sends body as JSON and returns the status and raw response body.
func doJSON(t *testing.T, client *http.Client, method, url string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type bookBody struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
}

func registerAndLogin(t *testing.T, srvURL, email, password string) *http.Client {
	t.Helper()
	client := newJarClient(t)

	status, body := doJSON(t, client, http.MethodPost, srvURL+"/auth/register", credentials{email, password})
	if status != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", email, status, body)
	}
	status, body = doJSON(t, client, http.MethodPost, srvURL+"/auth/login", credentials{email, password})
	if status != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, status, body)
	}
	return client
}

func TestIntegration_BookLifecycle(t *testing.T) {
	srv := newTestServer(t, func(d *handler.Dependencies) {
		d.Auth.SetMinPasswordLength(5)
	})

	alice := registerAndLogin(t, srv.URL, "a@x.com", "pw123")

	// Who am I?
	status, body := doJSON(t, alice, http.MethodGet, srv.URL+"/auth/me", nil)
	if status != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", status)
	}
	me := decode[struct{ User handler.UserDTO }](t, body).User
	if me.Email != "a@x.com" || me.ID == "" {
		t.Fatalf("me: unexpected user %+v", me)
	}

	// Older book so ordering is observable.
	status, _ = doJSON(t, alice, http.MethodPost, srv.URL+"/books", bookBody{"Emma", "Austen", "Classic"})
	if status != http.StatusCreated {
		t.Fatalf("create first: expected 201, got %d", status)
	}

	// Create.
	status, body = doJSON(t, alice, http.MethodPost, srv.URL+"/books", bookBody{"Dune", "Herbert", "SciFi"})
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", status, body)
	}
	created := decode[handler.BookDTO](t, body)
	if created.ID == "" {
		t.Fatal("create: expected a generated id")
	}
	if created.OwnerID == nil || *created.OwnerID != me.ID {
		t.Fatalf("create: expected owner %s, got %v", me.ID, created.OwnerID)
	}

	// List, newest first, no session needed.
	status, body = doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/books", nil)
	if status != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", status)
	}
	books := decode[[]handler.BookDTO](t, body)
	if len(books) != 2 || books[0].ID != created.ID {
		t.Fatalf("list: expected Dune first of 2, got %+v", books)
	}

	// Update with an empty title.
	status, _ = doJSON(t, alice, http.MethodPut, srv.URL+"/books/"+created.ID, bookBody{"", "Herbert", "SciFi"})
	if status != http.StatusBadRequest {
		t.Fatalf("update empty title: expected 400, got %d", status)
	}

	// Delete as another user.
	bob := registerAndLogin(t, srv.URL, "b@x.com", "pw456")
	status, _ = doJSON(t, bob, http.MethodDelete, srv.URL+"/books/"+created.ID, nil)
	if status != http.StatusForbidden {
		t.Fatalf("delete as other user: expected 403, got %d", status)
	}

	// Delete as owner.
	status, body = doJSON(t, alice, http.MethodDelete, srv.URL+"/books/"+created.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("delete as owner: expected 200, got %d", status)
	}
	if res := decode[map[string]bool](t, body); !res["success"] {
		t.Fatalf("delete: expected success=true, got %s", body)
	}

	// Gone from the list.
	_, body = doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/books", nil)
	for _, b := range decode[[]handler.BookDTO](t, body) {
		if b.ID == created.ID {
			t.Fatal("deleted book still listed")
		}
	}

	// Second delete is not found.
	status, _ = doJSON(t, alice, http.MethodDelete, srv.URL+"/books/"+created.ID, nil)
	if status != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", status)
	}
}

func TestIntegration_BookErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	alice := registerAndLogin(t, srv.URL, "alice@example.com", "password123")
	anon := newJarClient(t)

	status, body := doJSON(t, alice, http.MethodPost, srv.URL+"/books", bookBody{"Dune", "Herbert", "SciFi"})
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", status)
	}
	book := decode[handler.BookDTO](t, body)

	tests := []struct {
		name   string
		client *http.Client
		method string
		path   string
		body   any
		want   int
	}{
		{"create without session", anon, http.MethodPost, "/books", bookBody{"T", "A", "G"}, http.StatusUnauthorized},
		{"update without session", anon, http.MethodPut, "/books/" + book.ID, bookBody{"T", "A", "G"}, http.StatusUnauthorized},
		{"delete without session", anon, http.MethodDelete, "/books/" + book.ID, nil, http.StatusUnauthorized},
		{"create missing genre", alice, http.MethodPost, "/books", map[string]string{"title": "T", "author": "A"}, http.StatusBadRequest},
		{"create whitespace author", alice, http.MethodPost, "/books", bookBody{"T", "   ", "G"}, http.StatusBadRequest},
		{"create malformed body", alice, http.MethodPost, "/books", "not an object", http.StatusBadRequest},
		{"update missing book", alice, http.MethodPut, "/books/does-not-exist", bookBody{"T", "A", "G"}, http.StatusNotFound},
		{"update missing book with bad body", alice, http.MethodPut, "/books/does-not-exist", "nope", http.StatusNotFound},
		{"update malformed body", alice, http.MethodPut, "/books/" + book.ID, "nope", http.StatusBadRequest},
		{"delete missing book", alice, http.MethodDelete, "/books/does-not-exist", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, tt.client, tt.method, srv.URL+tt.path, tt.body)
			if status != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, status, body)
			}
			if msg := decode[map[string]string](t, body)["error"]; msg == "" {
				t.Fatalf("expected an error message, got %s", body)
			}
		})
	}
}

func TestIntegration_Register(t *testing.T) {
	srv := newTestServer(t, nil)
	client := newJarClient(t)

	status, body := doJSON(t, client, http.MethodPost, srv.URL+"/auth/register",
		map[string]string{"email": "New@Example.com", "password": "password123", "displayName": "New"})
	if status != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", status, body)
	}
	user := decode[struct{ User handler.UserDTO }](t, body).User
	if user.Email != "new@example.com" || user.DisplayName != "New" {
		t.Fatalf("unexpected user %+v", user)
	}

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate email", credentials{"NEW@example.com", "password123"}, http.StatusConflict},
		{"short password", credentials{"short@example.com", "pw"}, http.StatusUnprocessableEntity},
		{"bad email", credentials{"nope", "password123"}, http.StatusUnprocessableEntity},
		{"malformed body", "[]", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, client, http.MethodPost, srv.URL+"/auth/register", tt.body)
			if status != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, status, body)
			}
		})
	}
}

func TestIntegration_LoginLogout(t *testing.T) {
	srv := newTestServer(t, nil)
	client := registerAndLogin(t, srv.URL, "integ@example.com", "password123")

	srvURL, _ := url.Parse(srv.URL)
	var hasAuthToken bool
	for _, c := range client.Jar.Cookies(srvURL) {
		if c.Name == "auth_token" {
			hasAuthToken = true
		}
	}
	if !hasAuthToken {
		t.Fatal("expected auth_token cookie to be set after login")
	}

	status, _ := doJSON(t, client, http.MethodPost, srv.URL+"/auth/logout", nil)
	if status != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", status)
	}

	status, _ = doJSON(t, client, http.MethodGet, srv.URL+"/auth/me", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("me after logout: expected 401, got %d", status)
	}
}

func TestIntegration_LoginWrongPassword(t *testing.T) {
	srv := newTestServer(t, nil)
	registerAndLogin(t, srv.URL, "wrong@example.com", "password123")

	client := newJarClient(t)
	wrongPassword, wrongBody := doJSON(t, client, http.MethodPost, srv.URL+"/auth/login", credentials{"wrong@example.com", "nope-nope"})
	unknownEmail, unknownBody := doJSON(t, client, http.MethodPost, srv.URL+"/auth/login", credentials{"ghost@example.com", "password123"})

	if wrongPassword != http.StatusUnauthorized || unknownEmail != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both, got %d and %d", wrongPassword, unknownEmail)
	}
	if !bytes.Equal(wrongBody, unknownBody) {
		t.Fatalf("wrong password and unknown email must look the same: %s vs %s", wrongBody, unknownBody)
	}
}

func TestIntegration_LoginRateLimited(t *testing.T) {
	limiter := service.NewTokenBucket(0, 2)
	t.Cleanup(limiter.Stop)
	srv := newTestServer(t, func(d *handler.Dependencies) { d.Limiter = limiter })

	client := newJarClient(t)
	for i := 0; i < 2; i++ {
		status, _ := doJSON(t, client, http.MethodPost, srv.URL+"/auth/login", credentials{"x@example.com", "password123"})
		if status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, status)
		}
	}
	status, _ := doJSON(t, client, http.MethodPost, srv.URL+"/auth/login", credentials{"x@example.com", "password123"})
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
}

func TestIntegration_SeedUser(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv := newTestServer(t, nil)
		status, _ := doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/seed-user", credentials{"seed@example.com", "pw"})
		if status != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", status)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		srv := newTestServer(t, func(d *handler.Dependencies) { d.SeedUsersEnabled = true })
		client := newJarClient(t)

		status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/seed-user", credentials{"Seed@Example.com", "pw"})
		if status != http.StatusOK {
			t.Fatalf("seed: expected 200, got %d: %s", status, body)
		}
		seeded := decode[map[string]string](t, body)
		if seeded["id"] == "" || seeded["email"] != "seed@example.com" {
			t.Fatalf("unexpected seed response %s", body)
		}

		status, _ = doJSON(t, client, http.MethodPost, srv.URL+"/api/seed-user", map[string]string{"email": "seed@example.com"})
		if status != http.StatusBadRequest {
			t.Fatalf("seed without password: expected 400, got %d", status)
		}

		status, _ = doJSON(t, client, http.MethodPost, srv.URL+"/auth/login", credentials{"seed@example.com", "pw"})
		if status != http.StatusOK {
			t.Fatalf("login with seeded user: expected 200, got %d", status)
		}
	})
}

// Sessions are stateless: a token stays valid after its user row is gone, and
// the books it creates still record that user as owner.
func TestIntegration_SessionOutlivesUser(t *testing.T) {
	auth, catalog, db := newTestServices(t)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.Dependencies{Auth: auth, Catalog: catalog})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Run("user never stored", func(t *testing.T) {
		token, _, err := auth.IssueSession(&domain.Identity{UserID: "ghost-user", Email: "ghost@example.com"})
		if err != nil {
			t.Fatalf("IssueSession: %v", err)
		}

		status, body := doBearer(t, token, http.MethodPost, srv.URL+"/books", bookBody{"Dune", "Herbert", "SciFi"})
		if status != http.StatusCreated {
			t.Fatalf("create: expected 201, got %d: %s", status, body)
		}
		created := decode[handler.BookDTO](t, body)
		if created.OwnerID == nil || *created.OwnerID != "ghost-user" {
			t.Fatalf("create: expected owner ghost-user, got %v", created.OwnerID)
		}
	})

	t.Run("user removed after sign-in", func(t *testing.T) {
		alice := registerAndLogin(t, srv.URL, "gone@example.com", "password123")

		status, body := doJSON(t, alice, http.MethodPost, srv.URL+"/books", bookBody{"Emma", "Austen", "Classic"})
		if status != http.StatusCreated {
			t.Fatalf("create: expected 201, got %d: %s", status, body)
		}
		emma := decode[handler.BookDTO](t, body)

		if _, err := db.SqlDB.Exec(`DELETE FROM users WHERE email = ?`, "gone@example.com"); err != nil {
			t.Fatalf("delete user: %v", err)
		}

		status, body = doJSON(t, alice, http.MethodPost, srv.URL+"/books", bookBody{"Persuasion", "Austen", "Classic"})
		if status != http.StatusCreated {
			t.Fatalf("create after user removal: expected 201, got %d: %s", status, body)
		}

		status, body = doJSON(t, alice, http.MethodPut, srv.URL+"/books/"+emma.ID, bookBody{"Emma", "Jane Austen", "Classic"})
		if status != http.StatusOK {
			t.Fatalf("update own book after user removal: expected 200, got %d: %s", status, body)
		}
	})
}

// doBearer sends body as JSON with the token in an Authorization header.
func doBearer(t *testing.T, token, method, url string, body any) (int, []byte) {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func TestBookHandler_StorageFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("disk I/O error"))

	auth, _, _ := newTestServices(t)
	catalog := service.NewCatalogService(sqlite.NewBookRepository(&sqlite.DB{SqlDB: mockDB}))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.Dependencies{Auth: auth, Catalog: catalog})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	status, body := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/books", nil)
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if bytes.Contains(body, []byte("disk I/O")) {
		t.Fatalf("storage details must not leak to the client: %s", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
