package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// maxParams bounds the number of bound ids per statement.
const maxParams = 500

// Gene is a stored gene joined with its scaffold accession and organism name.
type Gene struct {
	ID          int64
	Organism    string
	Scaffold    string
	Name        string
	Start       int64
	End         int64
	Strand      int8
	Translation string
}

// Sequence is the protein sequence of a stored gene.
type Sequence struct {
	ID          int64
	Translation string
}

// Counts holds row counts per table.
type Counts struct {
	Organisms int64
	Scaffolds int64
	Genes     int64
}

const geneColumns = `g.id, o.name, s.accession, g.name, g.start_pos, g.end_pos, g.strand, g.translation`

const geneJoin = `FROM genes g
	JOIN scaffolds s ON s.id = g.scaffold_id
	JOIN organisms o ON o.id = g.organism_id`

// placeholders returns "?, ?, ..." with n markers. Only the count is
// interpolated into SQL; values are always bound.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// chunks splits ids into slices of at most size elements.
func chunks(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// GenesByID returns the genes with the given ids, ordered by id. Unknown ids
// are ignored.
func (s *Store) GenesByID(ctx context.Context, ids []int64) ([]Gene, error) {
	var genes []Gene
	for _, chunk := range chunks(ids, maxParams) {
		query := `SELECT ` + geneColumns + ` ` + geneJoin +
			` WHERE g.id IN (` + placeholders(len(chunk)) + `) ORDER BY g.id`
		rows, err := s.db.QueryContext(ctx, query, int64Args(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query genes by id: %w", err)
		}
		genes, err = scanGenes(rows, genes)
		if err != nil {
			return nil, err
		}
	}
	return genes, nil
}

// SequencesByID returns the protein sequences of the given genes, ordered by id.
func (s *Store) SequencesByID(ctx context.Context, ids []int64) ([]Sequence, error) {
	var seqs []Sequence
	for _, chunk := range chunks(ids, maxParams) {
		query := `SELECT id, translation FROM genes WHERE id IN (` +
			placeholders(len(chunk)) + `) ORDER BY id`
		rows, err := s.db.QueryContext(ctx, query, int64Args(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query sequences by id: %w", err)
		}
		for rows.Next() {
			var seq Sequence
			if err := rows.Scan(&seq.ID, &seq.Translation); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan sequence: %w", err)
			}
			seqs = append(seqs, seq)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate sequences: %w", err)
		}
	}
	return seqs, nil
}

// IntermediateGenes returns the genes lying entirely within [start, end] on
// the given scaffold of the given organism, except those named in excluded.
// Results are ordered by start position.
func (s *Store) IntermediateGenes(ctx context.Context, excluded []string, start, end int64, scaffold, organism string) ([]Gene, error) {
	query := `SELECT ` + geneColumns + ` ` + geneJoin + `
	WHERE o.name = ? AND s.accession = ? AND g.start_pos >= ? AND g.end_pos <= ?`
	args := []any{organism, scaffold, start, end}
	if len(excluded) > 0 {
		query += ` AND g.name NOT IN (` + placeholders(len(excluded)) + `)`
		for _, name := range excluded {
			args = append(args, name)
		}
	}
	query += ` ORDER BY g.start_pos, g.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query intermediate genes: %w", err)
	}
	return scanGenes(rows, nil)
}

// ScaffoldSlice returns sequence[start:end] of the given scaffold. The
// boolean is false when no such scaffold exists for the organism.
func (s *Store) ScaffoldSlice(ctx context.Context, scaffold, organism string, start, end int64) (string, bool, error) {
	if start < 0 || end < start {
		return "", false, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, start, end)
	}

	var (
		length sql.NullInt64
		slice  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT length(s.sequence), substr(s.sequence, ?, ?)
		FROM scaffolds s
		JOIN organisms o ON o.id = s.organism_id
		WHERE o.name = ? AND s.accession = ?`,
		start+1, end-start, organism, scaffold,
	).Scan(&length, &slice)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query scaffold slice: %w", err)
	}
	if !length.Valid {
		return "", true, fmt.Errorf("%w: %s/%s", ErrNoSequence, organism, scaffold)
	}
	if end > length.Int64 {
		return "", true, fmt.Errorf("%w: [%d, %d) exceeds scaffold %s length %d",
			ErrInvalidRange, start, end, scaffold, length.Int64)
	}
	return slice.String, true, nil
}

// Counts returns the number of rows in each table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT count(*) FROM organisms),
		(SELECT count(*) FROM scaffolds),
		(SELECT count(*) FROM genes)`,
	).Scan(&c.Organisms, &c.Scaffolds, &c.Genes)
	if err != nil {
		return Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

func scanGenes(rows *sql.Rows, genes []Gene) ([]Gene, error) {
	defer rows.Close()
	for rows.Next() {
		var g Gene
		if err := rows.Scan(&g.ID, &g.Organism, &g.Scaffold, &g.Name,
			&g.Start, &g.End, &g.Strand, &g.Translation); err != nil {
			return nil, fmt.Errorf("scan gene: %w", err)
		}
		genes = append(genes, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate genes: %w", err)
	}
	return genes, nil
}
