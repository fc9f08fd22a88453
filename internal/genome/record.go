// Package genome parses genome annotation files into normalized organism records.
//
// All coordinates are 0-based and half-open: a feature annotated as 101..200
// in a GenBank or GFF file becomes Start=100, End=200, and the nucleotides it
// covers are Scaffold.Sequence[Start:End].
package genome

import (
	"errors"
	"fmt"
)

// ErrParseFailure is returned when a genome file cannot be turned into an Organism.
var ErrParseFailure = errors.New("parse failure")

// Gene is one annotated coding region on a scaffold.
type Gene struct {
	Name        string // locus tag, protein ID or feature ID
	Start       int64  // 0-based, inclusive
	End         int64  // 0-based, exclusive
	Strand      int8   // +1 or -1
	Translation string // encoded protein sequence
}

// Len returns the number of nucleotides covered by the gene.
func (g Gene) Len() int64 {
	return g.End - g.Start
}

// Scaffold is a contiguous nucleotide sequence (chromosome or contig).
type Scaffold struct {
	Accession string
	Sequence  string // may be empty when the source file carries no sequence
	Genes     []Gene
}

// Organism is the normalized result of parsing one genome file.
type Organism struct {
	Name      string
	Path      string // source file
	Scaffolds []*Scaffold
}

// GeneTuple is the flat row form of a gene used during ingestion.
type GeneTuple struct {
	Organism    string
	Scaffold    string
	Name        string
	Start       int64
	End         int64
	Strand      int8
	Translation string
}

// Tuples flattens the organism into gene tuples, scaffold by scaffold.
func (o *Organism) Tuples() []GeneTuple {
	tuples := make([]GeneTuple, 0, o.GeneCount())
	for _, s := range o.Scaffolds {
		for _, g := range s.Genes {
			tuples = append(tuples, GeneTuple{
				Organism:    o.Name,
				Scaffold:    s.Accession,
				Name:        g.Name,
				Start:       g.Start,
				End:         g.End,
				Strand:      g.Strand,
				Translation: g.Translation,
			})
		}
	}
	return tuples
}

// GeneCount returns the total number of genes across all scaffolds.
func (o *Organism) GeneCount() int {
	n := 0
	for _, s := range o.Scaffolds {
		n += len(s.Genes)
	}
	return n
}

// Validate checks positional integrity: start <= end, and end within the
// scaffold when its sequence is known.
func (o *Organism) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("%w: %s: empty organism name", ErrParseFailure, o.Path)
	}
	for _, s := range o.Scaffolds {
		seqLen := int64(len(s.Sequence))
		for _, g := range s.Genes {
			if g.Start < 0 || g.Start > g.End {
				return fmt.Errorf("%w: %s: gene %s has invalid range [%d, %d)",
					ErrParseFailure, s.Accession, g.Name, g.Start, g.End)
			}
			if seqLen > 0 && g.End > seqLen {
				return fmt.Errorf("%w: %s: gene %s ends at %d beyond scaffold length %d",
					ErrParseFailure, s.Accession, g.Name, g.End, seqLen)
			}
		}
	}
	return nil
}
