package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cabinres/internal/domain"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the sqlite booking store. A DB returned to a WithinTx callback is bound to that
// transaction and must not escape it.
type DB struct {
	conn   *sql.DB
	q      querier
	path   string
	inTx   bool
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !memory {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// каждое соединение к :memory: видит свою собственную базу
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{conn: conn, q: conn, path: path, logger: logger}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS resorts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS persons (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            email TEXT UNIQUE NOT NULL,
            first_name TEXT,
            last_name TEXT
        )`,
		`CREATE TABLE IF NOT EXISTS cabins (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            resort_id INTEGER NOT NULL REFERENCES resorts(id),
            owner_id INTEGER NOT NULL REFERENCES persons(id),
            name TEXT NOT NULL,
            price_per_day INTEGER NOT NULL CHECK (price_per_day >= 0),
            rooms INTEGER NOT NULL DEFAULT 0,
            area REAL NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS activities (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            resort_id INTEGER NOT NULL REFERENCES resorts(id),
            name TEXT NOT NULL,
            provider TEXT,
            price INTEGER NOT NULL CHECK (price >= 0)
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            cabin_id INTEGER NOT NULL REFERENCES cabins(id),
            person_id INTEGER NOT NULL REFERENCES persons(id),
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL,
            booked_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            CHECK (start_date < end_date)
        )`,
		`CREATE TABLE IF NOT EXISTS attached_activities (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
            activity_id INTEGER NOT NULL REFERENCES activities(id),
            scheduled_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS invoices (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER UNIQUE NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
            total INTEGER NOT NULL CHECK (total >= 0),
            expires_on TEXT NOT NULL,
            paid BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_cabins_resort_id ON cabins(resort_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cabins_owner_id ON cabins(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_resort_id ON activities(resort_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_cabin_id ON bookings(cabin_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_dates ON bookings(start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_attached_booking_id ON attached_activities(booking_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// WithinTx runs fn in a single transaction. Nested calls reuse the outer transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(tx domain.Repository) error) error {
	return db.atomically(ctx, func(tx *DB) error { return fn(tx) })
}

func (db *DB) atomically(ctx context.Context, fn func(tx *DB) error) error {
	if db.inTx {
		return fn(db)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	scoped := &DB{conn: db.conn, q: tx, path: db.path, inTx: true, logger: db.logger}
	if err := fn(scoped); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Path returns the sqlite file backing the store.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.conn.Close()
}

var _ domain.Repository = (*DB)(nil)
