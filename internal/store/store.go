// Package store persists organisms, scaffolds and genes in a single-file
// relational database and answers the genomic context queries used after a
// similarity search. SQLite is the default engine; DuckDB is also supported.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"
)

var (
	// ErrAlreadyExists is returned when a store file exists and overwriting was not requested.
	ErrAlreadyExists = errors.New("store already exists")
	// ErrDuplicateKey marks a batch rejected for violating a uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidRange is returned for coordinates outside a scaffold.
	ErrInvalidRange = errors.New("invalid coordinate range")
	// ErrNoSequence is returned when a slice is requested from a scaffold stored without sequence.
	ErrNoSequence = errors.New("scaffold has no stored sequence")
)

// Store manages a connection to an initialized store file.
type Store struct {
	db     *sql.DB
	path   string
	engine Engine
	logger *zap.Logger
}

// Open opens an existing store created by Initialize.
func Open(path string, engine Engine) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db, err := openDB(path, engine)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path, engine: engine, logger: zap.NewNop()}, nil
}

func openDB(path string, engine Engine) (*sql.DB, error) {
	db, err := sql.Open(engine.driverName(), engine.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", engine, err)
	}
	// One writer, no concurrent connections to the file.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", engine, err)
	}
	return db, nil
}

// SetLogger sets the logger for warning and info messages.
func (s *Store) SetLogger(l *zap.Logger) {
	s.logger = l
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// Engine returns the engine backing the store.
func (s *Store) Engine() Engine {
	return s.engine
}
