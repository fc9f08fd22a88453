package genome

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// flatFeature is one entry of a GenBank/EMBL feature table.
type flatFeature struct {
	key        string
	location   string
	qualifiers map[string]string
}

// flatRecord is one LOCUS (GenBank) or ID (EMBL) entry.
type flatRecord struct {
	accession string
	organism  string // ORGANISM line, used when no source feature names one
	features  []*flatFeature
	sequence  strings.Builder
}

// flatParser reads GenBank and EMBL flat files. EMBL feature lines are
// rewritten into the GenBank column layout (key at column 5, qualifiers at
// column 21) so both formats share one feature-table reader.
type flatParser struct {
	format  Format
	records []*flatRecord

	rec        *flatRecord
	feat       *flatFeature
	qualKey    string
	openQuote  bool
	inFeatures bool
	inSequence bool
}

func parseFlatFile(r io.Reader, format Format) ([]*flatRecord, error) {
	p := &flatParser{format: format}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var err error
		if format == FormatEMBL {
			err = p.emblLine(scanner.Text())
		} else {
			err = p.genbankLine(scanner.Text())
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", format, err)
	}
	p.endRecord()
	return p.records, nil
}

func (p *flatParser) genbankLine(line string) error {
	switch {
	case strings.HasPrefix(line, "LOCUS"):
		p.endRecord()
		p.rec = &flatRecord{}
		if fields := strings.Fields(line); len(fields) > 1 {
			p.rec.accession = fields[1]
		}
		return nil
	case p.rec == nil:
		return nil // release header before the first record
	case strings.HasPrefix(line, "//"):
		p.endRecord()
		return nil
	case strings.HasPrefix(line, "VERSION"):
		if fields := strings.Fields(line); len(fields) > 1 {
			p.rec.accession = fields[1]
		}
		return nil
	case strings.HasPrefix(line, "  ORGANISM"):
		p.rec.organism = strings.TrimSpace(strings.TrimPrefix(line, "  ORGANISM"))
		return nil
	case strings.HasPrefix(line, "FEATURES"):
		p.inFeatures = true
		return nil
	case strings.HasPrefix(line, "ORIGIN"):
		p.inFeatures = false
		p.inSequence = true
		return nil
	}

	if p.inSequence {
		p.appendSequence(line)
		return nil
	}
	if p.inFeatures {
		if line != "" && line[0] != ' ' {
			p.inFeatures = false
			return nil
		}
		return p.featureLine(line)
	}
	return nil
}

func (p *flatParser) emblLine(line string) error {
	if len(line) < 2 {
		return nil
	}
	code := line[:2]
	rest := ""
	if len(line) > 5 {
		rest = line[5:]
	}

	switch code {
	case "ID":
		p.endRecord()
		p.rec = &flatRecord{accession: emblAccession(rest)}
		return nil
	case "//":
		p.endRecord()
		return nil
	}
	if p.rec == nil {
		return nil
	}

	switch code {
	case "AC":
		if p.rec.accession == "" {
			p.rec.accession = strings.TrimSuffix(strings.Fields(rest + " ;")[0], ";")
		}
	case "OS":
		if p.rec.organism == "" {
			p.rec.organism = strings.TrimSpace(rest)
		}
	case "FT":
		p.inFeatures = true
		return p.featureLine("  " + line[2:])
	case "SQ":
		p.inFeatures = false
		p.inSequence = true
	case "  ":
		if p.inSequence {
			p.appendSequence(line)
		}
	}
	return nil
}

// emblAccession builds "ACC.version" from an EMBL ID line such as
// "X56734; SV 1; linear; mRNA; STD; PLN; 1859 BP.".
func emblAccession(id string) string {
	parts := strings.Split(id, ";")
	acc := strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		sv := strings.TrimSpace(parts[1])
		if v, ok := strings.CutPrefix(sv, "SV "); ok {
			return acc + "." + strings.TrimSpace(v)
		}
	}
	return acc
}

// featureLine handles one line of a feature table in GenBank column layout.
func (p *flatParser) featureLine(line string) error {
	if len(line) <= 5 {
		return nil
	}
	if line[5] != ' ' {
		// New feature: key in columns 5-20, location from column 21.
		p.feat = &flatFeature{qualifiers: make(map[string]string)}
		p.qualKey, p.openQuote = "", false
		if len(line) > 21 {
			p.feat.key = strings.TrimSpace(line[5:21])
			p.feat.location = strings.TrimSpace(line[21:])
		} else {
			p.feat.key = strings.TrimSpace(line[5:])
		}
		p.rec.features = append(p.rec.features, p.feat)
		return nil
	}
	if p.feat == nil {
		return fmt.Errorf("feature continuation before any feature key")
	}

	content := strings.TrimSpace(line)
	switch {
	case p.openQuote:
		p.feat.qualifiers[p.qualKey] += " " + content
		if strings.HasSuffix(content, `"`) {
			p.openQuote = false
			p.feat.qualifiers[p.qualKey] = cleanQualifier(p.qualKey, p.feat.qualifiers[p.qualKey])
		}
	case strings.HasPrefix(content, "/"):
		key, value, _ := strings.Cut(content[1:], "=")
		p.qualKey = key
		if strings.HasPrefix(value, `"`) && (len(value) == 1 || !strings.HasSuffix(value, `"`)) {
			p.openQuote = true
			p.feat.qualifiers[key] = value
			return nil
		}
		p.feat.qualifiers[key] = cleanQualifier(key, value)
	case p.qualKey == "":
		p.feat.location += content
	}
	return nil
}

func cleanQualifier(key, value string) string {
	value = strings.Trim(value, `"`)
	if key == "translation" {
		return strings.ReplaceAll(value, " ", "")
	}
	return value
}

func (p *flatParser) appendSequence(line string) {
	for i := 0; i < len(line); i++ {
		c := line[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.rec.sequence.WriteByte(c &^ 0x20) // uppercase
		}
	}
}

func (p *flatParser) endRecord() {
	if p.rec != nil {
		p.records = append(p.records, p.rec)
	}
	p.rec, p.feat = nil, nil
	p.qualKey, p.openQuote = "", false
	p.inFeatures, p.inSequence = false, false
}

// flatOrganism converts parsed flat-file records into an Organism.
func flatOrganism(path string, records []*flatRecord) (*Organism, error) {
	org := &Organism{Path: path}
	for _, rec := range records {
		seq := rec.sequence.String()
		scaffold := &Scaffold{Accession: rec.accession, Sequence: seq}

		for _, f := range rec.features {
			switch f.key {
			case "source":
				if org.Name == "" {
					org.Name = sourceName(f.qualifiers)
				}
			case "CDS":
				g, ok, err := flatGene(f, seq)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", rec.accession, err)
				}
				if ok {
					scaffold.Genes = append(scaffold.Genes, g)
				}
			}
		}
		if org.Name == "" {
			org.Name = rec.organism
		}
		org.Scaffolds = append(org.Scaffolds, scaffold)
	}
	if org.Name == "" {
		org.Name = fileStem(path)
	}
	return org, nil
}

func sourceName(q map[string]string) string {
	name := q["organism"]
	if strain := q["strain"]; strain != "" && !strings.Contains(name, strain) {
		name = strings.TrimSpace(name + " " + strain)
	}
	return name
}

// geneNameKeys lists qualifiers used as the gene identifier, in priority order.
var geneNameKeys = []string{"protein_id", "locus_tag", "gene", "ID", "Name"}

func flatGene(f *flatFeature, seq string) (Gene, bool, error) {
	spans, err := parseLocation(f.location)
	if err != nil {
		return Gene{}, false, err
	}
	start, end, strand := bounds(spans)

	g := Gene{Start: start, End: end, Strand: strand, Translation: f.qualifiers["translation"]}
	for _, k := range geneNameKeys {
		if v := f.qualifiers[k]; v != "" {
			g.Name = v
			break
		}
	}
	if g.Name == "" {
		g.Name = fmt.Sprintf("cds_%d_%d", start+1, end)
	}

	if g.Translation == "" {
		if _, pseudo := f.qualifiers["pseudo"]; pseudo {
			return Gene{}, false, nil
		}
		if seq == "" {
			return Gene{}, false, fmt.Errorf("CDS %s has no translation and record has no sequence", g.Name)
		}
		cds, err := extract(seq, spans)
		if err != nil {
			return Gene{}, false, fmt.Errorf("CDS %s: %w", g.Name, err)
		}
		if cs, err := strconv.Atoi(f.qualifiers["codon_start"]); err == nil && cs > 1 && cs <= 3 {
			if cs-1 >= len(cds) {
				return Gene{}, false, fmt.Errorf("CDS %s: codon_start %d beyond %d bp location", g.Name, cs, len(cds))
			}
			cds = cds[cs-1:]
		}
		g.Translation = Translate(cds)
	}
	return g, true, nil
}
