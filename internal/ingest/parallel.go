package ingest

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/inodb/clusterdb/internal/genome"
)

// WorkItem is one genome file queued for parsing.
type WorkItem struct {
	Seq  int
	Path string
}

// WorkResult holds the parse output for a single file.
type WorkResult struct {
	Seq      int
	Path     string
	Organism *genome.Organism
	Err      error
}

// ParallelParse parses work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func ParallelParse(p genome.Parser, items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for item := range items {
				org, err := parseItem(p, item.Path)
				results <- WorkResult{
					Seq:      item.Seq,
					Path:     item.Path,
					Organism: org,
					Err:      err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// parseItem runs one parse, reporting a panic as a parse failure of that file.
func parseItem(p genome.Parser, path string) (org *genome.Organism, err error) {
	defer func() {
		if r := recover(); r != nil {
			org, err = nil, fmt.Errorf("%w: %s: panic: %v", genome.ErrParseFailure, path, r)
		}
	}()
	return p.Parse(path)
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}
