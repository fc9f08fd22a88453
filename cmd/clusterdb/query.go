package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inodb/clusterdb/internal/store"
)

// errNotFound is returned when a query matches nothing.
var errNotFound = errors.New("not found")

func newQueryCmd() *cobra.Command {
	var (
		storePath string
		engine    string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Look up genomic context in a built database",
		Example: `  clusterdb query --store out/genomes.sqlite3 genes 12 15
  clusterdb query --store out/genomes.sqlite3 intermediate --organism "E. coli K-12" --scaffold NC_000913.3 --start 1000 --end 9000 --exclude b0001
  clusterdb query --store out/genomes.sqlite3 slice --organism "E. coli K-12" --scaffold NC_000913.3 --start 1000 --end 1300`,
	}

	cmd.PersistentFlags().StringVar(&storePath, "store", "", "Store file (.sqlite3 or .duckdb) (required)")
	cmd.PersistentFlags().StringVar(&engine, "engine", "", "Store engine (default: from the file extension)")

	open := func() (*store.Store, error) {
		if storePath == "" {
			return nil, usageError{fmt.Errorf("--store is required")}
		}
		name := engine
		if name == "" {
			name = engineFromPath(storePath)
		}
		e, err := store.ParseEngine(name)
		if err != nil {
			return nil, usageError{err}
		}
		return store.Open(storePath, e)
	}

	cmd.AddCommand(newQueryGenesCmd(open))
	cmd.AddCommand(newQuerySequencesCmd(open))
	cmd.AddCommand(newQueryIntermediateCmd(open))
	cmd.AddCommand(newQuerySliceCmd(open))
	return cmd
}

type storeOpener func() (*store.Store, error)

func engineFromPath(path string) string {
	if strings.HasSuffix(path, store.EngineDuckDB.Extension()) {
		return string(store.EngineDuckDB)
	}
	return string(store.EngineSQLite)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, usageError{fmt.Errorf("invalid gene id %q", a)}
		}
		ids[i] = id
	}
	return ids, nil
}

func newQueryGenesCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "genes <id>...",
		Short: "Print genes by id as tab-separated rows",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()

			genes, err := s.GenesByID(cmd.Context(), ids)
			if err != nil {
				return err
			}
			if len(genes) == 0 {
				return fmt.Errorf("genes %v: %w", args, errNotFound)
			}
			return writeGenes(cmd.OutOrStdout(), genes)
		},
	}
}

func newQuerySequencesCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "sequences <id>...",
		Short: "Print protein sequences by gene id as FASTA",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()

			seqs, err := s.SequencesByID(cmd.Context(), ids)
			if err != nil {
				return err
			}
			if len(seqs) == 0 {
				return fmt.Errorf("sequences %v: %w", args, errNotFound)
			}
			out := cmd.OutOrStdout()
			for _, seq := range seqs {
				fmt.Fprintf(out, ">%d\n%s\n", seq.ID, seq.Translation)
			}
			return nil
		},
	}
}

// locusFlags are the organism/scaffold/range flags shared by intermediate and slice.
type locusFlags struct {
	organism string
	scaffold string
	start    int64
	end      int64
}

func (l *locusFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.organism, "organism", "", "Organism name (required)")
	cmd.Flags().StringVar(&l.scaffold, "scaffold", "", "Scaffold accession (required)")
	cmd.Flags().Int64Var(&l.start, "start", 0, "Start, 0-based inclusive")
	cmd.Flags().Int64Var(&l.end, "end", 0, "End, 0-based exclusive (required)")
	cmd.MarkFlagRequired("organism")
	cmd.MarkFlagRequired("scaffold")
	cmd.MarkFlagRequired("end")
}

func newQueryIntermediateCmd(open storeOpener) *cobra.Command {
	var (
		locus    locusFlags
		excluded []string
	)
	cmd := &cobra.Command{
		Use:   "intermediate",
		Short: "Print genes lying entirely within a window of a scaffold",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()

			genes, err := s.IntermediateGenes(cmd.Context(), excluded, locus.start, locus.end, locus.scaffold, locus.organism)
			if err != nil {
				return err
			}
			return writeGenes(cmd.OutOrStdout(), genes)
		},
	}
	locus.register(cmd)
	cmd.Flags().StringSliceVar(&excluded, "exclude", nil, "Gene names to leave out")
	return cmd
}

func newQuerySliceCmd(open storeOpener) *cobra.Command {
	var locus locusFlags
	cmd := &cobra.Command{
		Use:   "slice",
		Short: "Print a nucleotide slice of a scaffold",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()

			seq, ok, err := s.ScaffoldSlice(cmd.Context(), locus.scaffold, locus.organism, locus.start, locus.end)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("scaffold %s of %s: %w", locus.scaffold, locus.organism, errNotFound)
			}
			fmt.Fprintln(cmd.OutOrStdout(), seq)
			return nil
		},
	}
	locus.register(cmd)
	return cmd
}

func writeGenes(w io.Writer, genes []store.Gene) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "id\torganism\tscaffold\tname\tstart\tend\tstrand")
	for _, g := range genes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
			g.ID, g.Organism, g.Scaffold, g.Name, g.Start, g.End, g.Strand)
	}
	return tw.Flush()
}
