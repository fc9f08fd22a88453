// Package ingest parses genome files in parallel and loads them into the
// store one batch at a time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"

	"github.com/inodb/clusterdb/internal/genome"
	"github.com/inodb/clusterdb/internal/metrics"
	"github.com/inodb/clusterdb/internal/store"
)

var (
	// ErrNoValidInputs is returned when discovery finds no usable genome files.
	ErrNoValidInputs = errors.New("no valid input files")
	// ErrIncomplete is returned when some files or batches could not be loaded.
	ErrIncomplete = errors.New("ingestion incomplete")
)

// Loader writes a batch of organisms. Implemented by *store.Store.
type Loader interface {
	LoadBatch(ctx context.Context, organisms []*genome.Organism) (int, error)
}

// FileFailure records a file excluded because it could not be parsed.
type FileFailure struct {
	Path string
	Err  error
}

// BatchFailure records a batch rolled back by the store.
type BatchFailure struct {
	Batch     int
	Organisms []string
	Err       error
}

// Report summarizes one ingestion run.
type Report struct {
	Files     int // files discovered
	Batches   int // batches attempted
	Organisms int // organisms committed
	Genes     int // genes committed
	Failed    []FileFailure
	Dropped   []BatchFailure
}

// Complete reports whether every discovered file was loaded.
func (r *Report) Complete() bool {
	return len(r.Failed) == 0 && len(r.Dropped) == 0
}

// Err returns nil for a complete run, otherwise an error matching
// ErrIncomplete that also wraps each underlying failure.
func (r *Report) Err() error {
	if r.Complete() {
		return nil
	}
	errs := []error{fmt.Errorf("%w: %d of %d files failed to parse, %d of %d batches dropped",
		ErrIncomplete, len(r.Failed), r.Files, len(r.Dropped), r.Batches)}
	for _, f := range r.Failed {
		errs = append(errs, f.Err)
	}
	for _, b := range r.Dropped {
		errs = append(errs, b.Err)
	}
	return errors.Join(errs...)
}

// Coordinator drives discovery, parallel parsing and batch loading.
type Coordinator struct {
	// Workers bounds concurrent parsers; 0 means runtime.NumCPU().
	Workers int
	// BatchSize is the number of files per load transaction; 0 loads all files in one batch.
	BatchSize int

	loader   Loader
	parser   genome.Parser
	logger   *zap.Logger
	metrics  *metrics.Run
	progress io.Writer
}

// NewCoordinator creates a coordinator that loads into l.
func NewCoordinator(l Loader) *Coordinator {
	return &Coordinator{
		loader: l,
		parser: genome.FileParser,
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for warning and info messages.
func (c *Coordinator) SetLogger(l *zap.Logger) {
	c.logger = l
}

// SetParser replaces the file parser.
func (c *Coordinator) SetParser(p genome.Parser) {
	c.parser = p
}

// SetMetrics enables run counters.
func (c *Coordinator) SetMetrics(m *metrics.Run) {
	c.metrics = m
}

// SetProgress enables a progress bar over parsed files written to w.
func (c *Coordinator) SetProgress(w io.Writer) {
	c.progress = w
}

// Run discovers genome files under paths and loads them batch by batch.
//
// Files that fail to parse are left out of their batch and batches rejected
// for duplicate keys are rolled back; both are recorded in the report and
// processing continues. In that case the report is returned together with an
// error matching ErrIncomplete. Any other load error aborts the run.
func (c *Coordinator) Run(ctx context.Context, paths []string) (*Report, error) {
	files, err := genome.FindFiles(paths)
	if err != nil {
		return nil, fmt.Errorf("discover inputs: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoValidInputs
	}

	batches := partition(files, c.BatchSize)
	report := &Report{Files: len(files)}
	c.logger.Info("starting ingestion",
		zap.Int("files", len(files)),
		zap.Int("batches", len(batches)),
		zap.Int("workers", c.workers(len(files))))

	var bar *pb.ProgressBar
	if c.progress != nil {
		bar = pb.Simple.New(len(files)).SetWriter(c.progress).Start()
		defer bar.Finish()
	}

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := c.runBatch(ctx, i+1, batch, report, bar); err != nil {
			return report, err
		}
	}

	c.logger.Info("ingestion finished",
		zap.Int("organisms", report.Organisms),
		zap.Int("genes", report.Genes),
		zap.Int("failed_files", len(report.Failed)),
		zap.Int("dropped_batches", len(report.Dropped)))
	return report, report.Err()
}

func (c *Coordinator) runBatch(ctx context.Context, index int, files []string, report *Report, bar *pb.ProgressBar) error {
	start := time.Now()
	report.Batches++

	items := make(chan WorkItem, len(files))
	for i, path := range files {
		items <- WorkItem{Seq: i, Path: path}
	}
	close(items)

	var organisms []*genome.Organism
	results := ParallelParse(c.parser, items, c.workers(len(files)))
	err := OrderedCollect(results, func(r WorkResult) error {
		if bar != nil {
			bar.Increment()
		}
		if r.Err != nil {
			c.logger.Warn("skipping unparseable file", zap.String("path", r.Path), zap.Error(r.Err))
			report.Failed = append(report.Failed, FileFailure{Path: r.Path, Err: r.Err})
			if c.metrics != nil {
				c.metrics.FilesFailed.Inc()
			}
			return nil
		}
		if c.metrics != nil {
			c.metrics.FilesParsed.Inc()
		}
		organisms = append(organisms, r.Organism)
		return nil
	})
	if err != nil {
		return err
	}

	if len(organisms) == 0 {
		c.logger.Warn("batch has no parseable files", zap.Int("batch", index))
		return nil
	}

	n, err := c.loader.LoadBatch(ctx, organisms)
	if c.metrics != nil {
		c.metrics.BatchSeconds.Observe(time.Since(start).Seconds())
	}
	if errors.Is(err, store.ErrDuplicateKey) {
		names := organismNames(organisms)
		c.logger.Error("batch rolled back on duplicate key",
			zap.Int("batch", index), zap.Strings("organisms", names), zap.Error(err))
		report.Dropped = append(report.Dropped, BatchFailure{Batch: index, Organisms: names, Err: err})
		if c.metrics != nil {
			c.metrics.BatchesDropped.Inc()
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load batch %d: %w", index, err)
	}

	report.Organisms += len(organisms)
	report.Genes += n
	if c.metrics != nil {
		c.metrics.BatchesLoaded.Inc()
		c.metrics.GenesLoaded.Add(float64(n))
	}
	c.logger.Info("loaded batch",
		zap.Int("batch", index),
		zap.Strings("files", baseNames(files)),
		zap.Int("genes", n),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (c *Coordinator) workers(files int) int {
	w := c.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if files > 0 && w > files {
		w = files
	}
	return w
}

// partition splits files into consecutive groups of size n, preserving order.
func partition(files []string, n int) [][]string {
	if n <= 0 || n >= len(files) {
		return [][]string{files}
	}
	var out [][]string
	for len(files) > n {
		out = append(out, files[:n])
		files = files[n:]
	}
	return append(out, files)
}

func organismNames(orgs []*genome.Organism) []string {
	names := make([]string, len(orgs))
	for i, o := range orgs {
		names[i] = o.Name
	}
	return names
}

func baseNames(paths []string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}
