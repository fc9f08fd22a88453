package genome

import (
	"fmt"
)

// Parser turns one genome file into an Organism.
type Parser interface {
	Parse(path string) (*Organism, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(path string) (*Organism, error)

// Parse calls f(path).
func (f ParserFunc) Parse(path string) (*Organism, error) {
	return f(path)
}

// FileParser is the default Parser, dispatching on file extension.
var FileParser Parser = ParserFunc(ParseFile)

// ParseFile parses a GenBank, EMBL or GFF3 (+FASTA) file. Every error wraps
// ErrParseFailure.
func ParseFile(path string) (*Organism, error) {
	org, err := parseFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParseFailure, path, err)
	}
	if err := org.Validate(); err != nil {
		return nil, err
	}
	return org, nil
}

func parseFile(path string) (*Organism, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unrecognized file extension")
	}

	r, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if format != FormatGFF {
		records, err := parseFlatFile(r, format)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("no %s records found", format)
		}
		return flatOrganism(path, records)
	}

	gff, err := parseGFF(r)
	if err != nil {
		return nil, err
	}
	fasta := gff.fasta
	if fasta == nil {
		fastaPath := siblingFASTA(path)
		if fastaPath == "" {
			return nil, fmt.Errorf("no FASTA file found for GFF")
		}
		fr, err := openFile(fastaPath)
		if err != nil {
			return nil, err
		}
		defer fr.Close()
		if fasta, err = readFASTA(fr); err != nil {
			return nil, fmt.Errorf("%s: %w", fastaPath, err)
		}
	}
	return gffOrganism(path, gff, fasta)
}
