package store

import (
	"errors"
	"fmt"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Engine selects the embedded database used for the store file.
type Engine string

const (
	// EngineSQLite stores data in a SQLite3 file (pure Go driver).
	EngineSQLite Engine = "sqlite"
	// EngineDuckDB stores data in a DuckDB file.
	EngineDuckDB Engine = "duckdb"
)

// ParseEngine validates an engine name. An empty name selects SQLite.
func ParseEngine(name string) (Engine, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return EngineSQLite, nil
	case "duckdb":
		return EngineDuckDB, nil
	default:
		return "", fmt.Errorf("unknown store engine %q (want sqlite or duckdb)", name)
	}
}

// Extension returns the file extension used for store files of this engine.
func (e Engine) Extension() string {
	if e == EngineDuckDB {
		return ".duckdb"
	}
	return ".sqlite3"
}

func (e Engine) driverName() string {
	if e == EngineDuckDB {
		return "duckdb"
	}
	return "sqlite"
}

func (e Engine) dsn(path string) string {
	if e == EngineDuckDB {
		return path
	}
	return "file:" + path + "?_pragma=foreign_keys(1)"
}

// sideFiles lists auxiliary files the engine may keep next to the store.
func (e Engine) sideFiles(path string) []string {
	if e == EngineDuckDB {
		return []string{path + ".wal"}
	}
	return []string{path + "-journal", path + "-wal", path + "-shm"}
}

// isDuplicateKey reports whether err is a uniqueness violation.
func isDuplicateKey(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(se.Error(), "UNIQUE constraint failed")
		}
		return false
	}
	var de *goduckdb.Error
	if errors.As(err, &de) {
		return de.Type == goduckdb.ErrorTypeConstraint && strings.Contains(strings.ToLower(de.Msg), "duplicate key")
	}
	return false
}

const sqliteSchema = `
CREATE TABLE organisms (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE scaffolds (
	id          INTEGER PRIMARY KEY,
	organism_id INTEGER NOT NULL REFERENCES organisms(id),
	accession   TEXT NOT NULL,
	sequence    TEXT,
	UNIQUE (organism_id, accession)
);

CREATE TABLE genes (
	id          INTEGER PRIMARY KEY,
	scaffold_id INTEGER NOT NULL REFERENCES scaffolds(id),
	organism_id INTEGER NOT NULL REFERENCES organisms(id),
	name        TEXT NOT NULL,
	start_pos   INTEGER NOT NULL,
	end_pos     INTEGER NOT NULL,
	strand      INTEGER NOT NULL,
	translation TEXT NOT NULL,
	UNIQUE (scaffold_id, name),
	CHECK (start_pos <= end_pos)
);

CREATE INDEX idx_genes_location ON genes(organism_id, scaffold_id, start_pos, end_pos);
CREATE INDEX idx_genes_name ON genes(name);
`

const duckdbSchema = `
CREATE SEQUENCE organisms_id_seq START 1;
CREATE SEQUENCE scaffolds_id_seq START 1;
CREATE SEQUENCE genes_id_seq START 1;

CREATE TABLE organisms (
	id   BIGINT PRIMARY KEY DEFAULT nextval('organisms_id_seq'),
	name VARCHAR NOT NULL UNIQUE
);

CREATE TABLE scaffolds (
	id          BIGINT PRIMARY KEY DEFAULT nextval('scaffolds_id_seq'),
	organism_id BIGINT NOT NULL REFERENCES organisms(id),
	accession   VARCHAR NOT NULL,
	sequence    VARCHAR,
	UNIQUE (organism_id, accession)
);

CREATE TABLE genes (
	id          BIGINT PRIMARY KEY DEFAULT nextval('genes_id_seq'),
	scaffold_id BIGINT NOT NULL REFERENCES scaffolds(id),
	organism_id BIGINT NOT NULL REFERENCES organisms(id),
	name        VARCHAR NOT NULL,
	start_pos   BIGINT NOT NULL,
	end_pos     BIGINT NOT NULL,
	strand      TINYINT NOT NULL,
	translation VARCHAR NOT NULL,
	UNIQUE (scaffold_id, name),
	CHECK (start_pos <= end_pos)
);

CREATE INDEX idx_genes_location ON genes(organism_id, scaffold_id, start_pos, end_pos);
CREATE INDEX idx_genes_name ON genes(name);
`

// SchemaSQL returns the authoritative DDL for an engine.
func SchemaSQL(e Engine) string {
	if e == EngineDuckDB {
		return duckdbSchema
	}
	return sqliteSchema
}
