package genome

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// fastaBuilder accumulates FASTA records line by line.
type fastaBuilder struct {
	sequences map[string]string // record ID -> sequence
	order     []string          // record IDs in file order

	currentID  string
	currentSeq strings.Builder
}

func newFASTABuilder() *fastaBuilder {
	return &fastaBuilder{sequences: make(map[string]string)}
}

func (b *fastaBuilder) addLine(line string) error {
	if strings.HasPrefix(line, ">") {
		b.flush()
		b.currentID = parseFASTAHeader(line)
		if b.currentID == "" {
			return fmt.Errorf("FASTA header without identifier")
		}
		if _, dup := b.sequences[b.currentID]; dup {
			return fmt.Errorf("duplicate FASTA record %s", b.currentID)
		}
		b.order = append(b.order, b.currentID)
		b.sequences[b.currentID] = ""
		return nil
	}
	if b.currentID == "" {
		if strings.TrimSpace(line) == "" {
			return nil
		}
		return fmt.Errorf("sequence data before first FASTA header")
	}
	b.currentSeq.WriteString(strings.ToUpper(strings.TrimSpace(line)))
	return nil
}

func (b *fastaBuilder) flush() {
	if b.currentID != "" {
		b.sequences[b.currentID] = b.currentSeq.String()
	}
	b.currentSeq.Reset()
}

// parseFASTAHeader extracts the record ID: the first whitespace-delimited token.
func parseFASTAHeader(header string) string {
	fields := strings.Fields(strings.TrimPrefix(header, ">"))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// readFASTA parses a whole FASTA stream.
func readFASTA(r io.Reader) (*fastaBuilder, error) {
	scanner := bufio.NewScanner(r)
	// Scaffold sequences are often written on a single line.
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024*1024)

	b := newFASTABuilder()
	for scanner.Scan() {
		if err := b.addLine(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan FASTA: %w", err)
	}
	b.flush()
	return b, nil
}
