package makedb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/clusterdb/internal/diamond"
	"github.com/inodb/clusterdb/internal/ingest"
	"github.com/inodb/clusterdb/internal/store"
)

func genbank(accession, organism, locusTag, seq string) string {
	return fmt.Sprintf(`LOCUS       %s                        %d bp    DNA     linear   BCT 01-JAN-2020
ACCESSION   %s
FEATURES             Location/Qualifiers
     source          1..%d
                     /organism="%s"
     CDS             1..%d
                     /locus_tag="%s"
ORIGIN
        1 %s
//
`, accession, len(seq), accession, len(seq), organism, len(seq), locusTag, seq)
}

// writeInputs creates orgA (g1 [0,30) on s1) and orgB (g2 [0,45) on s2).
func writeInputs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	seqA := "atg" + strings.Repeat("aaa", 9)
	seqB := "atg" + strings.Repeat("gca", 14)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orgA.gbk"), []byte(genbank("s1", "orgA", "g1", seqA)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orgB.gbk"), []byte(genbank("s2", "orgB", "g2", seqB)), 0644))
	return dir
}

// installAligner puts a fake diamond on PATH that writes its arguments to the --db file.
func installAligner(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	dir := t.TempDir()
	script := `#!/bin/sh
db=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--db" ]; then db="$a"; fi
  prev="$a"
done
echo "$@" > "$db"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "diamond"), []byte(script), 0755))
	t.Setenv("PATH", dir)
}

func TestRun_EndToEnd(t *testing.T) {
	installAligner(t)
	inputs := writeInputs(t)
	out := t.TempDir()
	metricsFile := filepath.Join(out, "run.prom")

	res, err := Run(context.Background(), Options{
		Paths:       []string{inputs},
		Database:    filepath.Join(out, "db"),
		CPUs:        2,
		Batch:       1,
		MetricsFile: metricsFile,
	})
	require.NoError(t, err)

	assert.Equal(t, store.Counts{Organisms: 2, Scaffolds: 2, Genes: 2}, res.Counts)
	assert.Equal(t, 2, res.Exported)
	assert.Equal(t, 2, res.Report.Batches)
	assert.True(t, res.Report.Complete())

	fasta, err := os.ReadFile(res.Artifacts.FASTA)
	require.NoError(t, err)
	want := ">1\nM" + strings.Repeat("K", 9) + "\n>2\nM" + strings.Repeat("A", 14) + "\n"
	assert.Equal(t, want, string(fasta))

	index, err := os.ReadFile(res.Artifacts.Index)
	require.NoError(t, err)
	assert.Contains(t, string(index), "makedb --in "+res.Artifacts.FASTA+" --db "+res.Artifacts.Index)
	assert.Contains(t, string(index), "--threads 2")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "clusterdb_genes_loaded_total 2")

	s, err := store.Open(res.Artifacts.Store, store.EngineSQLite)
	require.NoError(t, err)
	defer s.Close()

	genes, err := s.IntermediateGenes(context.Background(), nil, 0, 45, "s2", "orgB")
	require.NoError(t, err)
	require.Len(t, genes, 1)
	assert.Equal(t, "g2", genes[0].Name)
	assert.Equal(t, int64(0), genes[0].Start)
	assert.Equal(t, int64(45), genes[0].End)

	slice, ok, err := s.ScaffoldSlice(context.Background(), "s1", "orgA", 0, 6)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ATGAAA", slice)
}

func TestRun_ExistingArtifacts(t *testing.T) {
	installAligner(t)
	inputs := writeInputs(t)
	opts := Options{Paths: []string{inputs}, Database: filepath.Join(t.TempDir(), "db")}

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)

	before, err := os.ReadFile(opts.Database + ".sqlite3")
	require.NoError(t, err)

	_, err = Run(context.Background(), opts)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	after, err := os.ReadFile(opts.Database + ".sqlite3")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	opts.Force = true
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Counts.Genes)
}

func TestRun_ForceRemovesStaleOutputs(t *testing.T) {
	installAligner(t)
	inputs := writeInputs(t)
	opts := Options{Paths: []string{inputs}, Database: filepath.Join(t.TempDir(), "db")}

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.FileExists(t, res.Artifacts.Index)

	// rebuild with no aligner available
	t.Setenv("PATH", t.TempDir())
	opts.Force = true
	opts.Binaries = []string{"no-such-aligner"}
	res, err = Run(context.Background(), opts)
	assert.ErrorIs(t, err, diamond.ErrIndexBuild)
	require.NotNil(t, res)
	assert.NoFileExists(t, res.Artifacts.Index)
	assert.FileExists(t, res.Artifacts.FASTA)
}

func TestRun_InvalidParameters(t *testing.T) {
	out := t.TempDir()
	base := Options{Paths: []string{out}, Database: filepath.Join(out, "db")}

	for name, mutate := range map[string]func(*Options){
		"negative cpus":  func(o *Options) { o.CPUs = -1 },
		"negative batch": func(o *Options) { o.Batch = -2 },
		"no database":    func(o *Options) { o.Database = "" },
		"no inputs":      func(o *Options) { o.Paths = nil },
	} {
		t.Run(name, func(t *testing.T) {
			opts := base
			mutate(&opts)
			_, err := Run(context.Background(), opts)
			assert.ErrorIs(t, err, ErrInvalidParameter)
			assert.NoFileExists(t, filepath.Join(out, "db.sqlite3"))
		})
	}
}

func TestParseCount(t *testing.T) {
	n, err := ParseCount("cpus", "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = ParseCount("cpus", " 8 ")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = ParseCount("cpus", "four")
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = ParseCount("batch", "-1")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRun_IncompleteStillIndexes(t *testing.T) {
	installAligner(t)
	inputs := writeInputs(t)
	require.NoError(t, os.WriteFile(filepath.Join(inputs, "broken.gbk"), []byte("garbage\n"), 0644))

	res, err := Run(context.Background(), Options{
		Paths:    []string{inputs},
		Database: filepath.Join(t.TempDir(), "db"),
		Batch:    1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrIncomplete)

	require.NotNil(t, res)
	require.Len(t, res.Report.Failed, 1)
	assert.Equal(t, int64(2), res.Counts.Genes)
	assert.Equal(t, 2, res.Exported)
	assert.FileExists(t, res.Artifacts.Index)
}

func TestRun_NoValidInputs(t *testing.T) {
	installAligner(t)
	inputs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inputs, "notes.txt"), []byte("x"), 0644))
	db := filepath.Join(t.TempDir(), "db")

	_, err := Run(context.Background(), Options{Paths: []string{inputs}, Database: db})
	assert.ErrorIs(t, err, ingest.ErrNoValidInputs)
	assert.FileExists(t, db+".sqlite3")
	assert.NoFileExists(t, db+".fasta")
}

func TestRun_MissingAligner(t *testing.T) {
	inputs := writeInputs(t)
	t.Setenv("PATH", t.TempDir())

	res, err := Run(context.Background(), Options{
		Paths:    []string{inputs},
		Database: filepath.Join(t.TempDir(), "db"),
		Binaries: []string{"no-such-aligner"},
	})
	assert.ErrorIs(t, err, diamond.ErrIndexBuild)
	require.NotNil(t, res)
	assert.FileExists(t, res.Artifacts.FASTA)
	assert.NoFileExists(t, res.Artifacts.Index)
}
