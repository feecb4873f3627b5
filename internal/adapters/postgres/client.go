package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"backoffice/internal/adapters/config"
	"backoffice/pkg/errors"
)

// Client owns the shared PostgreSQL connection pool. The bridge store and
// the record repository both run through it.
type Client struct {
	db *sqlx.DB
}

// NewClient opens a pooled connection and verifies it is reachable before
// handing the pool out. Startup fails fast on an unreachable database.
func NewClient(cfg config.PostgresConfig) (*Client, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}

	idle := cfg.MaxConns / 2
	if idle < 2 {
		idle = 2
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return &Client{db: db}, nil
}

// DB exposes the pool for the repository layer.
func (c *Client) DB() *sqlx.DB {
	return c.db
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Health reports connectivity for the /status endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
