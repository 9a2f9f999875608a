package domain

import "context"

// Database is the lifecycle surface of the relational store backing users
// and books. The store applies its own migrations on Migrate.
type Database interface {
	Migrate(ctx context.Context) error
	Close() error
}
