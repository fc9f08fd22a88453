package store

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// ExportFASTA writes every gene translation as a FASTA record headed by the
// gene id, in id order. It returns the number of records written.
func (s *Store) ExportFASTA(ctx context.Context, w io.Writer) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, translation FROM genes ORDER BY id`)
	if err != nil {
		return 0, fmt.Errorf("query translations: %w", err)
	}
	defer rows.Close()

	bw := bufio.NewWriter(w)
	n := 0
	for rows.Next() {
		var (
			id          int64
			translation string
		)
		if err := rows.Scan(&id, &translation); err != nil {
			return n, fmt.Errorf("scan translation: %w", err)
		}
		if _, err := fmt.Fprintf(bw, ">%d\n%s\n", id, translation); err != nil {
			return n, fmt.Errorf("write fasta: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate translations: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("write fasta: %w", err)
	}
	s.logger.Debug("exported translations", zap.Int("records", n))
	return n, nil
}
