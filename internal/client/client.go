// Package client talks to the catalog JSON API and keeps the list state a
// front end renders: the current page, the selection and the edit target.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const sessionCookieName = "auth_token"

var (
	ErrUnauthenticated  = errors.New("not signed in")
	ErrForbidden        = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("invalid input")
	ErrConflict         = errors.New("already exists")
	ErrBulkDeleteFailed = errors.New("failed to delete some books")
)

// APIError is a non-2xx response from the server. It unwraps to the
// sentinel matching its status, if any.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthenticated
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

// Book is a catalog entry as the API returns it.
type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Genre     string    `json:"genre"`
	OwnerID   *string   `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BookInput is the body of create and update requests.
type BookInput struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
}

// User is the signed-in account.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// API is the subset of Client that ListState drives.
type API interface {
	HasSession() bool
	ListBooks(ctx context.Context) ([]Book, error)
	CreateBook(ctx context.Context, in BookInput) (*Book, error)
	UpdateBook(ctx context.Context, id string, in BookInput) (*Book, error)
	DeleteBook(ctx context.Context, id string) error
}

// Client calls the catalog API over HTTP. The session token is taken from
// the auth_token cookie set at login and sent back as a Bearer token, so it
// can be saved and restored between processes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New constructs a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// HasSession reports whether a session token is held.
func (c *Client) HasSession() bool {
	return c.token != ""
}

// SessionToken returns the current session token, or "".
func (c *Client) SessionToken() string {
	return c.token
}

// SetSessionToken restores a previously saved session token.
func (c *Client) SetSessionToken(token string) {
	c.token = strings.TrimSpace(token)
}

// Login signs in with email and password and keeps the session token.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	body := map[string]string{"email": email, "password": password}
	var out struct {
		User User `json:"user"`
	}
	resp, err := c.do(ctx, http.MethodPost, "/auth/login", body, &out)
	if err != nil {
		return nil, err
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == sessionCookieName && cookie.Value != "" {
			c.token = cookie.Value
		}
	}
	if c.token == "" {
		return nil, errors.New("login response did not include a session")
	}
	return &out.User, nil
}

// Register creates a password account. It does not sign in.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (*User, error) {
	body := map[string]string{"email": email, "password": password, "displayName": displayName}
	var out struct {
		User User `json:"user"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/auth/register", body, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout clears the server cookie and forgets the local token.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.token = ""
	return err
}

// Me returns the user the session belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) ListBooks(ctx context.Context) ([]Book, error) {
	var books []Book
	if _, err := c.do(ctx, http.MethodGet, "/books", nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) CreateBook(ctx context.Context, in BookInput) (*Book, error) {
	var book Book
	if _, err := c.do(ctx, http.MethodPost, "/books", in, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) UpdateBook(ctx context.Context, id string, in BookInput) (*Book, error) {
	var book Book
	if _, err := c.do(ctx, http.MethodPut, "/books/"+url.PathEscape(id), in, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) DeleteBook(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/books/"+url.PathEscape(id), nil, nil)
	return err
}

// do sends the request and decodes a 2xx body into out. Transport failures
// are returned as-is; HTTP failures as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return resp, &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
