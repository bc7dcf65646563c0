package parser

import (
	"sync"

	"github.com/plc-visualizer/logparse/internal/models"
	"golang.org/x/sync/errgroup"
)

// lineRange is a half-open [start, end) index range into the line slice.
type lineRange struct {
	start, end int
}

// splitRanges cuts n lines into workers contiguous ranges of n/workers
// lines each; the last range absorbs the remainder. workers must be in
// [1, max(n,1)].
func splitRanges(n, workers int) []lineRange {
	if n == 0 {
		return []lineRange{{0, 0}}
	}
	size := n / workers
	ranges := make([]lineRange, workers)
	for i := range ranges {
		start := i * size
		end := start + size
		if i == workers-1 {
			end = n
		}
		ranges[i] = lineRange{start, end}
	}
	return ranges
}

// normalizeWorkers clamps the worker count to [1, max(lines,1)].
func normalizeWorkers(workers, lines int) int {
	if workers < 1 {
		workers = 1
	}
	if lines > 0 && workers > lines {
		workers = lines
	}
	if lines == 0 {
		workers = 1
	}
	return workers
}

// RunParallel parses lines with up to workers goroutines. Output order is
// line order and does not depend on the worker count.
func RunParallel(lines []Line, p LineParser, workers int) ([]models.LogEntry, []models.ParseError) {
	return runParallel(lines, p, workers, nil)
}

func runParallel(lines []Line, p LineParser, workers int, onProgress ProgressCallback) ([]models.LogEntry, []models.ParseError) {
	workers = normalizeWorkers(workers, len(lines))
	ranges := splitRanges(len(lines), workers)
	results := make([]chunkResult, len(ranges))

	var (
		progressMu sync.Mutex
		linesDone  int
	)
	report := func(n int) {
		if onProgress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		linesDone += n
		onProgress(linesDone, len(lines))
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, r := range ranges {
		g.Go(func() error {
			results[i] = parseChunk(p, lines[r.start:r.end])
			report(r.end - r.start)
			return nil
		})
	}
	// Workers never return an error; Wait is the barrier.
	_ = g.Wait()

	return mergeChunks(results)
}

// mergeChunks concatenates per-chunk results in chunk order.
func mergeChunks(results []chunkResult) ([]models.LogEntry, []models.ParseError) {
	nEntries, nErrors := 0, 0
	for _, r := range results {
		nEntries += len(r.entries)
		nErrors += len(r.errors)
	}
	entries := make([]models.LogEntry, 0, nEntries)
	errs := make([]models.ParseError, 0, nErrors)
	for _, r := range results {
		entries = append(entries, r.entries...)
		errs = append(errs, r.errors...)
	}
	return entries, errs
}
