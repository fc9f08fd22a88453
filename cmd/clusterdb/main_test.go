package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGenBank = `LOCUS       s1                        30 bp    DNA     linear   BCT 01-JAN-2020
FEATURES             Location/Qualifiers
     source          1..30
                     /organism="orgA"
     CDS             1..9
                     /locus_tag="g1"
     CDS             13..21
                     /locus_tag="g2"
ORIGIN
        1 atgaaagtat aaatgcccta aaaaaaaaaa
//
`

// setup isolates global viper state and HOME for one test.
func setup(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func installAligner(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	dir := t.TempDir()
	script := "#!/bin/sh\nprev=\"\"\nfor a in \"$@\"; do\n  if [ \"$prev\" = \"--db\" ]; then : > \"$a\"; fi\n  prev=\"$a\"\ndone\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "diamond"), []byte(script), 0755))
	t.Setenv("PATH", dir)
}

func TestVersion(t *testing.T) {
	setup(t)
	code, stdout, _ := runCLI(t, "--version")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "dev")
}

func TestUsageErrors(t *testing.T) {
	setup(t)
	inputs := t.TempDir()
	db := filepath.Join(t.TempDir(), "db")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"unknown flag", []string{"makedb", "--nope"}},
		{"no inputs", []string{"makedb", "--db", db}},
		{"non-integer cpus", []string{"makedb", "--db", db, "--cpus", "four", inputs}},
		{"negative batch", []string{"makedb", "--db", db, "--batch", "-3", inputs}},
		{"unknown engine", []string{"makedb", "--db", db, "--engine", "oracle", inputs}},
		{"missing slice range", []string{"query", "--store", db, "slice", "--organism", "x"}},
		{"bad gene id", []string{"query", "--store", db, "genes", "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, ExitUsage, code, stderr)
			assert.NoFileExists(t, db+".sqlite3")
		})
	}
}

func TestMakedbAndQuery(t *testing.T) {
	setup(t)
	installAligner(t)

	inputs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inputs, "orgA.gbk"), []byte(testGenBank), 0644))
	db := filepath.Join(t.TempDir(), "db")

	code, stdout, stderr := runCLI(t, "makedb", "--db", db, "--cpus", "2", "--batch", "1", inputs)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Loaded 1 organisms, 1 scaffolds, 2 genes")
	assert.FileExists(t, db+".sqlite3")
	assert.FileExists(t, db+".fasta")
	assert.FileExists(t, db+".dmnd")

	// second run refuses to overwrite
	viper.Reset()
	code, _, _ = runCLI(t, "makedb", "--db", db, inputs)
	assert.Equal(t, ExitError, code)

	store := db + ".sqlite3"

	viper.Reset()
	code, stdout, _ = runCLI(t, "query", "--store", store, "genes", "2")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "g2")
	assert.NotContains(t, stdout, "g1")

	viper.Reset()
	code, stdout, _ = runCLI(t, "query", "--store", store, "sequences", "1")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, ">1\nMKV\n", stdout)

	viper.Reset()
	code, stdout, _ = runCLI(t, "query", "--store", store, "intermediate",
		"--organism", "orgA", "--scaffold", "s1", "--start", "0", "--end", "30", "--exclude", "g1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "g2")
	assert.NotContains(t, stdout, "g1")

	viper.Reset()
	code, stdout, _ = runCLI(t, "query", "--store", store, "slice",
		"--organism", "orgA", "--scaffold", "s1", "--start", "0", "--end", "9")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "ATGAAAGTA\n", stdout)

	viper.Reset()
	code, _, _ = runCLI(t, "query", "--store", store, "slice",
		"--organism", "orgZ", "--scaffold", "s1", "--end", "9")
	assert.Equal(t, ExitError, code)
}

func TestConfigSetGet(t *testing.T) {
	home := setup(t)

	code, stdout, _ := runCLI(t, "config")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "No configuration set")

	code, _, stderr := runCLI(t, "config", "set", "makedb.cpus", "8")
	require.Equal(t, ExitSuccess, code, stderr)

	data, err := os.ReadFile(filepath.Join(home, ".clusterdb.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "cpus: \"8\"")
	assert.NotContains(t, string(data), "engine")

	viper.Reset()
	code, stdout, _ = runCLI(t, "config", "get", "makedb.cpus")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "8\n", stdout)

	viper.Reset()
	code, _, _ = runCLI(t, "config", "get", "makedb.batch")
	assert.Equal(t, ExitError, code)
}
