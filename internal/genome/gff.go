package genome

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// gffFeature represents a parsed GFF3 line.
type gffFeature struct {
	seqid       string
	featureType string
	start       int64 // 1-based, inclusive (as in the file)
	end         int64
	strand      int8
	phase       int
	attributes  map[string]string
}

// gffFile is the content of a GFF3 file: CDS features plus any embedded FASTA.
type gffFile struct {
	cds   []*gffFeature
	fasta *fastaBuilder
}

func parseGFF(r io.Reader) (*gffFile, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024*1024)

	out := &gffFile{}
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if out.fasta != nil {
			if err := out.fasta.addLine(line); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			continue
		}
		if strings.HasPrefix(line, "##FASTA") {
			out.fasta = newFASTABuilder()
			continue
		}
		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		feat, err := parseGFFLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if feat.featureType == "CDS" {
			out.cds = append(out.cds, feat)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan GFF: %w", err)
	}
	if out.fasta != nil {
		out.fasta.flush()
	}
	return out, nil
}

// parseGFFLine parses a single tab-separated GFF3 line.
func parseGFFLine(line string) (*gffFeature, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 9 {
		return nil, fmt.Errorf("invalid GFF line: expected 9 fields, got %d", len(fields))
	}

	start, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}
	end, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse end: %w", err)
	}
	if start < 1 || end < start {
		return nil, fmt.Errorf("invalid range %d..%d", start, end)
	}

	phase, _ := strconv.Atoi(fields[7])

	return &gffFeature{
		seqid:       fields[0],
		featureType: fields[2],
		start:       start,
		end:         end,
		strand:      parseStrand(fields[6]),
		phase:       phase,
		attributes:  parseGFFAttributes(fields[8]),
	}, nil
}

// parseGFFAttributes parses the GFF3 attribute column.
// Format: key=value;key=value1,value2 with %XX escapes. Only the first of
// several comma-separated values is kept.
func parseGFFAttributes(attrStr string) map[string]string {
	attrs := make(map[string]string)
	for _, part := range strings.Split(attrStr, ";") {
		part = strings.TrimSpace(part)
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			continue
		}
		value, _, _ = strings.Cut(value, ",")
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		attrs[key] = value
	}
	return attrs
}

// parseStrand converts a strand column to +1/-1.
func parseStrand(s string) int8 {
	if s == "-" {
		return -1
	}
	return 1
}

var gffNameKeys = []string{"protein_id", "locus_tag", "Name", "ID", "Parent"}

// gffOrganism assembles CDS features into genes, one per CDS ID (or Parent
// when CDS lines carry no ID), using scaffold sequences from FASTA.
func gffOrganism(path string, gff *gffFile, fasta *fastaBuilder) (*Organism, error) {
	type cdsGroup struct {
		key   string
		parts []*gffFeature
	}
	groups := make(map[string]*cdsGroup)
	var groupOrder []string
	for i, f := range gff.cds {
		key := f.attributes["ID"]
		if key == "" {
			key = f.attributes["Parent"]
		}
		if key == "" {
			key = fmt.Sprintf("cds_%d", i)
		}
		key = f.seqid + "\x00" + key
		g, ok := groups[key]
		if !ok {
			g = &cdsGroup{key: key}
			groups[key] = g
			groupOrder = append(groupOrder, key)
		}
		g.parts = append(g.parts, f)
	}

	scaffolds := make(map[string]*Scaffold, len(fasta.order))
	org := &Organism{Name: fileStem(path), Path: path}
	for _, id := range fasta.order {
		s := &Scaffold{Accession: id, Sequence: fasta.sequences[id]}
		scaffolds[id] = s
		org.Scaffolds = append(org.Scaffolds, s)
	}

	for _, key := range groupOrder {
		parts := groups[key].parts
		first := parts[0]
		scaffold, ok := scaffolds[first.seqid]
		if !ok {
			return nil, fmt.Errorf("no sequence for scaffold %s", first.seqid)
		}
		g, err := gffGene(parts, scaffold.Sequence)
		if err != nil {
			return nil, err
		}
		scaffold.Genes = append(scaffold.Genes, g)
	}
	return org, nil
}

func gffGene(parts []*gffFeature, seq string) (Gene, error) {
	strand := parts[0].strand
	sort.Slice(parts, func(i, j int) bool {
		if strand == -1 {
			return parts[i].start > parts[j].start
		}
		return parts[i].start < parts[j].start
	})

	g := Gene{Strand: strand}
	spans := make([]span, len(parts))
	for i, p := range parts {
		spans[i] = span{start: p.start - 1, end: p.end, strand: strand}
	}
	g.Start, g.End, _ = bounds(spans)

	for _, k := range gffNameKeys {
		if v := parts[0].attributes[k]; v != "" {
			g.Name = v
			break
		}
	}
	if g.Name == "" {
		g.Name = fmt.Sprintf("cds_%d_%d", g.Start+1, g.End)
	}

	cds, err := extract(seq, spans)
	if err != nil {
		return Gene{}, fmt.Errorf("CDS %s: %w", g.Name, err)
	}
	if phase := parts[0].phase; phase > 0 && phase < 3 && phase < len(cds) {
		cds = cds[phase:]
	}
	g.Translation = Translate(cds)
	return g, nil
}
