package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msomdec/book-catalog/internal/config"
	"github.com/msomdec/book-catalog/internal/handler"
	"github.com/msomdec/book-catalog/internal/repository/sqlite"
	"github.com/msomdec/book-catalog/internal/service"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logOpts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	logger := slog.New(slog.NewMultiHandler(
		slog.NewTextHandler(os.Stdout, logOpts),
		slog.NewJSONHandler(os.Stderr, logOpts),
	))
	slog.SetDefault(logger)

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations applied", "path", cfg.DatabasePath)

	authService := service.NewAuthService(db.Users(), service.NewBcryptHasher(cfg.Auth.BcryptCost), cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	authService.SetMinPasswordLength(cfg.Auth.PasswordMinLength)
	catalogService := service.NewCatalogService(db.Books())

	deps := handler.Dependencies{
		Auth:             authService,
		Catalog:          catalogService,
		CookieSecure:     cfg.Auth.CookieSecure,
		SeedUsersEnabled: cfg.SeedUsersEnabled,
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		limiter, err := service.NewRedisLimiter(rdb, cfg.Redis.Prefix, cfg.RateLimit.AuthPerMinute, time.Minute)
		if err != nil {
			slog.Error("failed to create rate limiter", "error", err)
			os.Exit(1)
		}
		deps.Limiter = limiter
		slog.Info("auth rate limit shared through redis", "addr", cfg.Redis.Addr)
	} else {
		limiter := service.NewTokenBucket(float64(cfg.RateLimit.AuthPerMinute)/60, float64(cfg.RateLimit.AuthBurst))
		defer limiter.Stop()
		deps.Limiter = limiter
	}

	if cfg.OAuth.Enabled() {
		deps.OAuth = service.NewGoogleOAuth(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.RedirectURL)
		slog.Info("google sign-in enabled", "redirect", cfg.OAuth.RedirectURL)
	}

	if cfg.SeedUsersEnabled {
		slog.Warn("seed-user endpoint enabled; do not run this in production")
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.SecurityHeaders(handler.RequestID(handler.RequestLogger(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
