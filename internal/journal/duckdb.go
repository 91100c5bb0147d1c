// Package journal archives activity entries in DuckDB so they outlive the
// in-memory activity log.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Register DuckDB driver
)

// Config holds DuckDB tuning options.
type Config struct {
	Threads       int           // 0 = DuckDB default
	MemoryLimitGB int           // 0 = DuckDB default
	Timeout       time.Duration // connect timeout, 0 = none
}

// Client owns the connection to the DuckDB file.
type Client struct {
	db     *sql.DB
	config Config
}

type Option func(*Client)

func WithThreads(n int) Option {
	return func(c *Client) { c.config.Threads = n }
}

func WithMemoryLimit(gb int) Option {
	return func(c *Client) { c.config.MemoryLimitGB = gb }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.config.Timeout = d }
}

// OpenClient opens the database at dsn. An empty dsn or ":memory:" opens an
// in-memory database.
func OpenClient(dsn string, opts ...Option) (*Client, error) {
	client := &Client{}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	ctx := context.Background()
	if client.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, client.config.Timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	// One connection: an in-memory database is per connection, and writes
	// are serial anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	client.db = db

	if err := client.configure(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure duckdb: %w", err)
	}
	return client, nil
}

func (c *Client) configure() error {
	if c.config.Threads > 0 {
		if _, err := c.db.Exec(fmt.Sprintf("PRAGMA threads=%d", c.config.Threads)); err != nil {
			return fmt.Errorf("setting threads: %w", err)
		}
	}
	if c.config.MemoryLimitGB > 0 {
		if _, err := c.db.Exec(fmt.Sprintf("PRAGMA memory_limit='%dGB'", c.config.MemoryLimitGB)); err != nil {
			return fmt.Errorf("setting memory limit: %w", err)
		}
	}
	return nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.db == nil {
		return ErrNotOpen
	}
	return c.db.PingContext(ctx)
}
