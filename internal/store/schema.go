package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Initialize creates an empty store with the full schema at path.
//
// An existing file is left untouched unless force is set, in which case the
// new store is built next to it and renamed over it once complete.
func Initialize(path string, engine Engine, force bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat store: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	// The driver creates the file itself; an empty file is not a valid database.
	os.Remove(tmpPath)

	if err := createSchema(tmpPath, engine); err != nil {
		removeStore(tmpPath, engine)
		return err
	}

	removeSideFiles(path, engine)
	if err := os.Rename(tmpPath, path); err != nil {
		removeStore(tmpPath, engine)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

func createSchema(path string, engine Engine) error {
	db, err := openDB(path, engine)
	if err != nil {
		return err
	}
	if _, err := db.Exec(SchemaSQL(engine)); err != nil {
		db.Close()
		return fmt.Errorf("create schema: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close new store: %w", err)
	}
	return nil
}

func removeStore(path string, engine Engine) {
	os.Remove(path)
	removeSideFiles(path, engine)
}

func removeSideFiles(path string, engine Engine) {
	for _, p := range engine.sideFiles(path) {
		os.Remove(p)
	}
}
