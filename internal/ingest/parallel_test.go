package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/clusterdb/internal/genome"
)

// stubParser names each organism after its file and fails on files containing "bad".
var stubParser = genome.ParserFunc(func(path string) (*genome.Organism, error) {
	base := filepath.Base(path)
	if strings.Contains(base, "bad") {
		return nil, fmt.Errorf("%w: %s", genome.ErrParseFailure, base)
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return &genome.Organism{
		Name: name,
		Path: path,
		Scaffolds: []*genome.Scaffold{{
			Accession: "s1",
			Genes:     []genome.Gene{{Name: name + "_1", Start: 0, End: 3, Strand: 1, Translation: "M"}},
		}},
	}, nil
})

func makeItems(n int) <-chan WorkItem {
	ch := make(chan WorkItem, n)
	for i := 0; i < n; i++ {
		ch <- WorkItem{Seq: i, Path: fmt.Sprintf("org%03d.gbk", i)}
	}
	close(ch)
	return ch
}

func TestParallelParse_OrderPreservation(t *testing.T) {
	results := ParallelParse(stubParser, makeItems(200), 8)

	var collected []int
	err := OrderedCollect(results, func(r WorkResult) error {
		require.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("org%03d", r.Seq), r.Organism.Name)
		collected = append(collected, r.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, collected, 200)
	for i, seq := range collected {
		assert.Equal(t, i, seq, "result %d out of order", i)
	}
}

func TestParallelParse_SingleWorker(t *testing.T) {
	results := ParallelParse(stubParser, makeItems(50), 1)

	var collected []int
	err := OrderedCollect(results, func(r WorkResult) error {
		collected = append(collected, r.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, collected, 50)
	for i, seq := range collected {
		assert.Equal(t, i, seq)
	}
}

func TestParallelParse_EmptyInput(t *testing.T) {
	ch := make(chan WorkItem)
	close(ch)
	results := ParallelParse(stubParser, ch, 4)

	count := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestParallelParse_ErrorsCarried(t *testing.T) {
	ch := make(chan WorkItem, 3)
	ch <- WorkItem{Seq: 0, Path: "a.gbk"}
	ch <- WorkItem{Seq: 1, Path: "bad.gbk"}
	ch <- WorkItem{Seq: 2, Path: "c.gbk"}
	close(ch)

	var errs []bool
	err := OrderedCollect(ParallelParse(stubParser, ch, 2), func(r WorkResult) error {
		errs = append(errs, r.Err != nil)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, errs)
}

func TestParallelParse_PanicBecomesParseFailure(t *testing.T) {
	p := genome.ParserFunc(func(path string) (*genome.Organism, error) {
		if path == "boom.gbk" {
			panic("slice bounds out of range")
		}
		return stubParser(path)
	})

	ch := make(chan WorkItem, 3)
	ch <- WorkItem{Seq: 0, Path: "a.gbk"}
	ch <- WorkItem{Seq: 1, Path: "boom.gbk"}
	ch <- WorkItem{Seq: 2, Path: "c.gbk"}
	close(ch)

	var got []WorkResult
	err := OrderedCollect(ParallelParse(p, ch, 2), func(r WorkResult) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.NoError(t, got[0].Err)
	assert.ErrorIs(t, got[1].Err, genome.ErrParseFailure)
	assert.Contains(t, got[1].Err.Error(), "boom.gbk")
	assert.Nil(t, got[1].Organism)
	assert.NoError(t, got[2].Err)
}

func TestOrderedCollect_EarlyError(t *testing.T) {
	results := ParallelParse(stubParser, makeItems(100), 4)

	count := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		count++
		if count == 5 {
			return fmt.Errorf("stop at 5")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 5, count)
}
