package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/streed/notesai/internal/config"
	"github.com/streed/notesai/internal/logger"
	"github.com/streed/notesai/internal/migrations"
)

type DB struct {
	conn       *sql.DB
	cfg        *config.Config
	vecVersion string
}

func New(cfg *config.Config) (*DB, error) {
	// Register sqlite-vec on every new connection
	sqlite_vec.Auto()

	dbPath := cfg.GetDatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	logger.Debug("Database path: %s", dbPath)

	// Foreign keys drive the cascades (folder -> notes -> versions, embeddings, tags).
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

func (db *DB) initialize() error {
	if err := db.conn.QueryRow("SELECT vec_version()").Scan(&db.vecVersion); err != nil {
		logger.Debug("sqlite-vec not available: %v", err)
	} else {
		logger.Debug("sqlite-vec version %s loaded", db.vecVersion)
	}

	if _, err := migrations.NewMigrationRunner(db.conn).RunMigrations(); err != nil {
		return err
	}
	return nil
}

// Ping reports whether the database answers and which sqlite-vec build is loaded.
func (db *DB) Ping(ctx context.Context) (string, error) {
	if err := db.conn.PingContext(ctx); err != nil {
		return "", err
	}
	return db.vecVersion, nil
}

// InTx runs fn inside a transaction, committing on success.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to rollback transaction: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Querier is satisfied by both *sql.DB and *sql.Tx, so repositories can run
// standalone or inside a caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
