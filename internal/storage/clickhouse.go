package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/rental-insight/internal/config"
)

// ClickHouseDB wraps the ClickHouse connection used for append-only
// reconciliation history
type ClickHouseDB struct {
	conn     driver.Conn
	database string
}

var clickHouseIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// History writes are small and rare; a handful of connections is plenty.
func clickHouseOptions(cfg *config.ClickHouseConfig, database string) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 30,
		},
		DialTimeout:      5 * time.Second,
		MaxOpenConns:     4,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
}

func openClickHouse(opts *clickhouse.Options) (driver.Conn, error) {
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return conn, nil
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := openClickHouse(clickHouseOptions(cfg, cfg.Database))
	if err != nil {
		return nil, err
	}
	return &ClickHouseDB{conn: conn, database: cfg.Database}, nil
}

// EnsureClickHouseDatabase creates the configured database if it is missing.
// It connects through the default database, so it works on a fresh server.
func EnsureClickHouseDatabase(ctx context.Context, cfg *config.ClickHouseConfig) error {
	if !clickHouseIdent.MatchString(cfg.Database) {
		return fmt.Errorf("invalid ClickHouse database name %q", cfg.Database)
	}

	conn, err := openClickHouse(clickHouseOptions(cfg, "default"))
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+cfg.Database); err != nil {
		return fmt.Errorf("failed to create database %s: %w", cfg.Database, err)
	}
	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Database returns the database the connection is bound to
func (db *ClickHouseDB) Database() string {
	return db.database
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Exec executes a statement without returning rows
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}
