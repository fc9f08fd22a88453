package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/clusterdb/internal/diamond"
	"github.com/inodb/clusterdb/internal/makedb"
	"github.com/inodb/clusterdb/internal/store"
)

func newMakedbCmd() *cobra.Command {
	var (
		database    string
		force       bool
		progress    bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "makedb [flags] <genome-file-or-dir>...",
		Short: "Build the database and DIAMOND index from genome files",
		Long: `Parse GenBank (.gb, .gbk, .gbff), EMBL (.embl) and GFF3 (.gff, .gff3, with a
sibling or embedded FASTA) files, optionally gzipped, and write:

  <db>.sqlite3 (or <db>.duckdb)  organisms, scaffolds and genes
  <db>.fasta                      encoded proteins, headed by gene id
  <db>.dmnd                       DIAMOND index of the proteins`,
		Example: `  clusterdb makedb --db out/genomes genomes/
  clusterdb makedb --db out/genomes --cpus 8 --batch 50 a.gbk b.gff3
  clusterdb makedb --db out/genomes --engine duckdb --force genomes/`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cpus, err := makedb.ParseCount("cpus", viper.GetString("makedb.cpus"))
			if err != nil {
				return err
			}
			batch, err := makedb.ParseCount("batch", viper.GetString("makedb.batch"))
			if err != nil {
				return err
			}
			engine, err := store.ParseEngine(viper.GetString("makedb.engine"))
			if err != nil {
				return usageError{err}
			}
			if database == "" {
				return usageError{fmt.Errorf("--db is required")}
			}

			logger, err := newLogger(viper.GetString("log.level"), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := makedb.Options{
				Paths:       args,
				Database:    database,
				Engine:      engine,
				Force:       force,
				CPUs:        cpus,
				Batch:       batch,
				Binaries:    viper.GetStringSlice("diamond.binaries"),
				MetricsFile: metricsFile,
				Logger:      logger,
			}
			if progress {
				opts.Progress = cmd.ErrOrStderr()
			}
			return runMakedb(ctx, opts, cmd.OutOrStdout(), logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&database, "db", "", "Output path prefix for the database files (required)")
	flags.String("cpus", "", "Parser workers and aligner threads (default: all CPUs)")
	flags.String("batch", "", "Genome files per load transaction (default: all files in one batch)")
	flags.String("engine", string(store.EngineSQLite), "Store engine: sqlite or duckdb")
	flags.StringSlice("diamond", diamond.DefaultBinaries, "DIAMOND executables to try, in order")
	flags.BoolVar(&force, "force", false, "Overwrite existing database files")
	flags.BoolVar(&progress, "progress", false, "Show a progress bar while parsing")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")

	viper.BindPFlag("makedb.cpus", flags.Lookup("cpus"))
	viper.BindPFlag("makedb.batch", flags.Lookup("batch"))
	viper.BindPFlag("makedb.engine", flags.Lookup("engine"))
	viper.BindPFlag("diamond.binaries", flags.Lookup("diamond"))

	return cmd
}

func runMakedb(ctx context.Context, opts makedb.Options, out io.Writer, logger *zap.Logger) error {
	res, err := makedb.Run(ctx, opts)
	if res != nil {
		printSummary(out, res)
	}
	if err != nil {
		logger.Error("makedb failed", zap.Error(err))
	}
	return err
}

func printSummary(w io.Writer, res *makedb.Result) {
	ok := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	if r := res.Report; r != nil {
		status := ok("complete")
		if !r.Complete() {
			status = warn("incomplete")
		}
		fmt.Fprintf(w, "Ingestion %s: %d files in %d batches\n", status, r.Files, r.Batches)
		for _, f := range r.Failed {
			fmt.Fprintf(w, "  %s %s: %v\n", bad("FAILED "), f.Path, f.Err)
		}
		for _, b := range r.Dropped {
			fmt.Fprintf(w, "  %s batch %d %v: %v\n", bad("DROPPED"), b.Batch, b.Organisms, b.Err)
		}
	}

	c := res.Counts
	fmt.Fprintf(w, "Loaded %s organisms, %s scaffolds, %s genes\n",
		humanize.Comma(c.Organisms), humanize.Comma(c.Scaffolds), humanize.Comma(c.Genes))

	for _, a := range []struct{ label, path string }{
		{"store", res.Artifacts.Store},
		{"fasta", res.Artifacts.FASTA},
		{"index", res.Artifacts.Index},
	} {
		info, err := os.Stat(a.path)
		if err != nil {
			fmt.Fprintf(w, "  %-6s %s %s\n", a.label, a.path, warn("(missing)"))
			continue
		}
		fmt.Fprintf(w, "  %-6s %s (%s)\n", a.label, a.path, humanize.Bytes(uint64(info.Size())))
	}
}
