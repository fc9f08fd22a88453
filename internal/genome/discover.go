package genome

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/pgzip"
)

// Format identifies a genome file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatGenBank
	FormatEMBL
	FormatGFF
)

func (f Format) String() string {
	switch f {
	case FormatGenBank:
		return "genbank"
	case FormatEMBL:
		return "embl"
	case FormatGFF:
		return "gff"
	default:
		return "unknown"
	}
}

var formatExtensions = map[string]Format{
	".gb":      FormatGenBank,
	".gbk":     FormatGenBank,
	".gbff":    FormatGenBank,
	".genbank": FormatGenBank,
	".embl":    FormatEMBL,
	".emb":     FormatEMBL,
	".gff":     FormatGFF,
	".gff3":    FormatGFF,
}

var fastaExtensions = []string{".fa", ".fasta", ".fna", ".fsa"}

// DetectFormat guesses the format of a genome file from its extension.
// A trailing .gz is ignored.
func DetectFormat(path string) Format {
	return formatExtensions[strings.ToLower(filepath.Ext(trimGz(path)))]
}

// FindFiles expands directories and keeps the paths that can be parsed:
// GenBank and EMBL files, and GFF files with either a sibling FASTA file
// sharing their stem or an embedded ##FASTA section. Explicit file paths keep
// their order; directory entries are sorted by name.
func FindFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat input: %w", err)
		}
		if !info.IsDir() {
			if validFile(p) {
				files = append(files, p)
			}
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read input directory: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			full := filepath.Join(p, name)
			if validFile(full) {
				files = append(files, full)
			}
		}
	}
	return files, nil
}

func validFile(path string) bool {
	switch DetectFormat(path) {
	case FormatGenBank, FormatEMBL:
		return true
	case FormatGFF:
		return siblingFASTA(path) != "" || hasEmbeddedFASTA(path)
	default:
		return false
	}
}

// siblingFASTA returns the FASTA file accompanying a GFF file, or "".
func siblingFASTA(gffPath string) string {
	stem := strings.TrimSuffix(trimGz(gffPath), filepath.Ext(trimGz(gffPath)))
	for _, ext := range fastaExtensions {
		for _, candidate := range []string{stem + ext, stem + ext + ".gz"} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}
	return ""
}

func hasEmbeddedFASTA(path string) bool {
	r, err := openFile(path)
	if err != nil {
		return false
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "##FASTA") {
			return true
		}
	}
	return false
}

// openFile opens a possibly gzipped file for reading.
func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

func trimGz(path string) string {
	return strings.TrimSuffix(path, ".gz")
}

// fileStem returns the base name without format and .gz extensions.
func fileStem(path string) string {
	base := filepath.Base(trimGz(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
