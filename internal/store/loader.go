package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/inodb/clusterdb/internal/genome"
)

// DuplicateKeyError reports a batch rolled back because a row violated a
// uniqueness constraint. It matches ErrDuplicateKey with errors.Is.
type DuplicateKeyError struct {
	Organisms []string
	Err       error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key in batch %v: %v", e.Organisms, e.Err)
}

func (e *DuplicateKeyError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDuplicateKey) true.
func (e *DuplicateKeyError) Is(target error) bool { return target == ErrDuplicateKey }

// LoadBatch inserts the organisms, their scaffolds and genes in a single
// transaction and returns the number of genes written. Either every row of
// the batch is committed or none is.
func (s *Store) LoadBatch(ctx context.Context, organisms []*genome.Organism) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	n, err := insertOrganisms(ctx, tx, organisms)
	if err != nil {
		if isDuplicateKey(err) {
			names := make([]string, len(organisms))
			for i, o := range organisms {
				names[i] = o.Name
			}
			return 0, &DuplicateKeyError{Organisms: names, Err: err}
		}
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return n, nil
}

func insertOrganisms(ctx context.Context, tx *sql.Tx, organisms []*genome.Organism) (int, error) {
	orgStmt, err := tx.PrepareContext(ctx, `INSERT INTO organisms (name) VALUES (?) RETURNING id`)
	if err != nil {
		return 0, fmt.Errorf("prepare organism insert: %w", err)
	}
	defer orgStmt.Close()

	scaffoldStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scaffolds (organism_id, accession, sequence) VALUES (?, ?, ?) RETURNING id`)
	if err != nil {
		return 0, fmt.Errorf("prepare scaffold insert: %w", err)
	}
	defer scaffoldStmt.Close()

	geneStmt, err := tx.PrepareContext(ctx, `INSERT INTO genes
		(scaffold_id, organism_id, name, start_pos, end_pos, strand, translation)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare gene insert: %w", err)
	}
	defer geneStmt.Close()

	genes := 0
	for _, org := range organisms {
		var orgID int64
		if err := orgStmt.QueryRowContext(ctx, org.Name).Scan(&orgID); err != nil {
			return 0, fmt.Errorf("insert organism %s: %w", org.Name, err)
		}

		for _, sc := range org.Scaffolds {
			var scaffoldID int64
			err := scaffoldStmt.QueryRowContext(ctx, orgID, sc.Accession, nullString(sc.Sequence)).Scan(&scaffoldID)
			if err != nil {
				return 0, fmt.Errorf("insert scaffold %s/%s: %w", org.Name, sc.Accession, err)
			}

			for _, g := range sc.Genes {
				if _, err := geneStmt.ExecContext(ctx,
					scaffoldID, orgID, g.Name, g.Start, g.End, int64(g.Strand), g.Translation,
				); err != nil {
					return 0, fmt.Errorf("insert gene %s/%s/%s: %w", org.Name, sc.Accession, g.Name, err)
				}
				genes++
			}
		}
	}
	return genes, nil
}

// nullString stores empty sequences as NULL.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
