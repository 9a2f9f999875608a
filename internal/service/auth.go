package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/msomdec/book-catalog/internal/domain"
)

const defaultMinPasswordLength = 8

// AuthService is the session authority: it verifies credentials, resolves
// OAuth identities, and issues and validates signed session tokens.
type AuthService struct {
	users      domain.UserRepository
	hasher     PasswordHasher
	jwtSecret  []byte
	sessionTTL time.Duration
	minLength  int

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService. The secret and TTL come from the
// process configuration and never change afterwards.
func NewAuthService(users domain.UserRepository, hasher PasswordHasher, jwtSecret string, sessionTTL time.Duration) *AuthService {
	return &AuthService{
		users:      users,
		hasher:     hasher,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
		minLength:  defaultMinPasswordLength,
	}
}

// SetMinPasswordLength overrides the minimum length Register accepts. It must
// be called before the service is shared between goroutines.
func (s *AuthService) SetMinPasswordLength(n int) {
	if n > 0 {
		s.minLength = n
	}
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Register creates a password account.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < s.minLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, s.minLength)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// SeedUser creates the user or resets its password. It backs the
// development-only seed endpoint.
func (s *AuthService) SeedUser(ctx context.Context, email, password string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.UpsertPassword(ctx, email, hash)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

// AuthenticateCredentials returns the identity for a matching email and
// password. Unknown email, missing password hash and wrong password all
// produce (nil, nil); only a storage fault returns an error.
func (s *AuthService) AuthenticateCredentials(ctx context.Context, email, password string) (*domain.Identity, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Burn a comparison so unknown emails cost as much as wrong passwords.
			s.hasher.Verify(s.placeholderHash(), password)
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.HasPassword() {
		s.hasher.Verify(s.placeholderHash(), password)
		return nil, nil
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, nil
	}

	return identityOf(user), nil
}

// Login verifies credentials and issues a session token.
// Any credential failure is reported as domain.ErrUnauthenticated.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, time.Time, *domain.Identity, error) {
	identity, err := s.AuthenticateCredentials(ctx, email, password)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	if identity == nil {
		return "", time.Time{}, nil, domain.ErrUnauthenticated
	}

	token, expiresAt, err := s.IssueSession(identity)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return token, expiresAt, identity, nil
}

// AuthenticateOAuth resolves the user linked to an external identity,
// creating it on first sign-in. Repeated sign-ins return the same user.
// An email already owned by an unlinked account is rejected with
// domain.ErrDuplicateEmail rather than silently linked.
func (s *AuthService) AuthenticateOAuth(ctx context.Context, pi domain.ProviderIdentity) (*domain.Identity, error) {
	if pi.Provider == "" || pi.Subject == "" {
		return nil, fmt.Errorf("%w: provider identity is incomplete", domain.ErrInvalidInput)
	}

	user, err := s.users.GetByOAuth(ctx, pi.Provider, pi.Subject)
	if err == nil {
		return identityOf(user), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get oauth user: %w", err)
	}

	email := domain.NormalizeEmail(pi.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: provider did not return an email", domain.ErrInvalidInput)
	}

	user = &domain.User{
		Email:         email,
		DisplayName:   strings.TrimSpace(pi.Name),
		OAuthProvider: pi.Provider,
		OAuthSubject:  pi.Subject,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, fmt.Errorf("create oauth user: %w", err)
		}
		// A concurrent first sign-in may have created the same link.
		existing, lookupErr := s.users.GetByOAuth(ctx, pi.Provider, pi.Subject)
		if lookupErr == nil {
			return identityOf(existing), nil
		}
		return nil, fmt.Errorf("%w: %s is registered to another account", domain.ErrDuplicateEmail, email)
	}

	return identityOf(user), nil
}

// IssueSession mints a signed session token for the identity.
func (s *AuthService) IssueSession(identity *domain.Identity) (string, time.Time, error) {
	if identity == nil || identity.UserID == "" {
		return "", time.Time{}, fmt.Errorf("%w: missing identity", domain.ErrInvalidInput)
	}

	now := time.Now()
	expiresAt := now.Add(s.sessionTTL)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: identity.Email,
		Name:  identity.DisplayName,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateSession checks signature, algorithm and expiry. It returns nil for
// every kind of invalid token so callers treat them all as unauthenticated.
func (s *AuthService) ValidateSession(tokenString string) *domain.Identity {
	if tokenString == "" {
		return nil
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil
	}

	return &domain.Identity{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}
}

func (s *AuthService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("placeholder-password-never-matches")
	})
	return s.dummyHash
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: %q is not a valid email address", domain.ErrInvalidInput, email)
	}
	return nil
}

func identityOf(user *domain.User) *domain.Identity {
	return &domain.Identity{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}
}
