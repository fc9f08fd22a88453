// Package makedb builds the complete database: the relational store, the
// protein FASTA export and the DIAMOND search index.
package makedb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/clusterdb/internal/diamond"
	"github.com/inodb/clusterdb/internal/ingest"
	"github.com/inodb/clusterdb/internal/metrics"
	"github.com/inodb/clusterdb/internal/store"
)

// ErrInvalidParameter is returned for unusable options, before anything is written.
var ErrInvalidParameter = errors.New("invalid parameter")

// Options configures a build.
type Options struct {
	Paths    []string     // genome files or directories
	Database string       // output path prefix, without extension
	Engine   store.Engine // defaults to SQLite
	Force    bool         // overwrite existing artifacts

	CPUs  int // parser workers and aligner threads; 0 uses every CPU
	Batch int // files per load transaction; 0 loads everything at once

	Binaries    []string  // aligner executables to try
	Progress    io.Writer // progress bar destination, nil for none
	MetricsFile string    // Prometheus textfile, empty for none
	Logger      *zap.Logger
}

// Artifacts are the files produced by a build.
type Artifacts struct {
	Store string
	FASTA string
	Index string
}

// ArtifactPaths derives the output file names for a database prefix.
func ArtifactPaths(database string, engine store.Engine) Artifacts {
	return Artifacts{
		Store: database + engine.Extension(),
		FASTA: database + ".fasta",
		Index: database + ".dmnd",
	}
}

// Result describes a finished build.
type Result struct {
	Report    *ingest.Report
	Counts    store.Counts
	Exported  int
	Artifacts Artifacts
}

// ParseCount parses an optional non-negative integer flag. An empty value is 0.
func ParseCount(name, value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidParameter, name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidParameter, name, n)
	}
	return n, nil
}

func (o *Options) validate() error {
	if strings.TrimSpace(o.Database) == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidParameter)
	}
	if len(o.Paths) == 0 {
		return fmt.Errorf("%w: at least one input path is required", ErrInvalidParameter)
	}
	if o.CPUs < 0 {
		return fmt.Errorf("%w: cpus must not be negative, got %d", ErrInvalidParameter, o.CPUs)
	}
	if o.Batch < 0 {
		return fmt.Errorf("%w: batch must not be negative, got %d", ErrInvalidParameter, o.Batch)
	}
	if o.Engine == "" {
		o.Engine = store.EngineSQLite
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return nil
}

// Run initializes the store, ingests the inputs, exports translations and
// builds the search index, in that order.
//
// When ingestion is incomplete the export and index are still produced from
// what was loaded, and the ingestion error is returned with the result.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	artifacts := ArtifactPaths(opts.Database, opts.Engine)
	result := &Result{Artifacts: artifacts}

	if !opts.Force {
		for _, p := range []string{artifacts.Store, artifacts.Index} {
			if _, err := os.Stat(p); err == nil {
				return nil, fmt.Errorf("%w: %s (use --force to overwrite)", store.ErrAlreadyExists, p)
			}
		}
	}

	var m *metrics.Run
	if opts.MetricsFile != "" {
		m = metrics.New()
		defer func() {
			if err := m.WriteTextfile(opts.MetricsFile); err != nil {
				logger.Warn("could not write metrics", zap.Error(err))
			}
		}()
	}

	if err := store.Initialize(artifacts.Store, opts.Engine, opts.Force); err != nil {
		return nil, err
	}
	logger.Info("initialized store", zap.String("path", artifacts.Store), zap.String("engine", string(opts.Engine)))

	// Outputs of an earlier build refer to ids of the replaced store.
	for _, p := range []string{artifacts.FASTA, artifacts.Index} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale %s: %w", p, err)
		}
	}

	s, err := store.Open(artifacts.Store, opts.Engine)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	s.SetLogger(logger)

	coord := ingest.NewCoordinator(s)
	coord.Workers = opts.CPUs
	coord.BatchSize = opts.Batch
	coord.SetLogger(logger)
	if m != nil {
		coord.SetMetrics(m)
	}
	if opts.Progress != nil {
		coord.SetProgress(opts.Progress)
	}

	report, ingestErr := coord.Run(ctx, opts.Paths)
	result.Report = report
	if ingestErr != nil && !errors.Is(ingestErr, ingest.ErrIncomplete) {
		return result, ingestErr
	}

	if result.Counts, err = s.Counts(ctx); err != nil {
		return result, err
	}

	if result.Exported, err = exportFASTA(ctx, s, artifacts.FASTA); err != nil {
		return result, err
	}
	logger.Info("exported translations", zap.String("path", artifacts.FASTA), zap.Int("records", result.Exported))

	builder := diamond.NewBuilder(opts.Binaries...)
	builder.Threads = opts.CPUs
	builder.SetLogger(logger)
	if err := builder.Makedb(ctx, artifacts.FASTA, artifacts.Index); err != nil {
		return result, err
	}

	return result, ingestErr
}

func exportFASTA(ctx context.Context, s *store.Store, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create fasta: %w", err)
	}
	n, err := s.ExportFASTA(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close fasta: %w", cerr)
	}
	return n, err
}
