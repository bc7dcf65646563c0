package parser

import (
	"sort"
	"time"

	"github.com/plc-visualizer/logparse/internal/models"
)

// MergeConfig configures the merge behavior.
type MergeConfig struct {
	// DedupeWindow is the maximum time difference between two entries
	// with the same signal and value to be considered duplicates.
	// Zero disables deduplication.
	DedupeWindow time.Duration
}

// DefaultMergeConfig returns the default merge configuration.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		DedupeWindow: 1000 * time.Millisecond,
	}
}

// MergeResults combines per-file results into one. It:
// 1. Tags every entry with its source file
// 2. Stable-sorts all entries by timestamp (ties keep input order)
// 3. Drops same signal+value repeats inside the dedupe window
// 4. Re-assembles the signal index
//
// Errors from every input are kept. The merge fails only when every input failed.
func MergeResults(results []models.ParseResult, config MergeConfig) models.ParseResult {
	if len(results) == 0 {
		return models.FailedResult(models.ParseError{Reason: "no results to merge"})
	}

	totalEntries, totalErrors := 0, 0
	anySuccess := false
	for _, r := range results {
		totalErrors += len(r.Errors)
		if r.Success && r.Data != nil {
			anySuccess = true
			totalEntries += len(r.Data.Entries)
		}
	}

	errs := make([]models.ParseError, 0, totalErrors)
	for _, r := range results {
		for _, e := range r.Errors {
			if e.FilePath == "" {
				e.FilePath = r.FilePath
			}
			errs = append(errs, e)
		}
	}

	if !anySuccess {
		return models.FailedResult(errs...)
	}

	allEntries := make([]models.LogEntry, 0, totalEntries)
	dialect := ""
	for _, r := range results {
		if !r.Success || r.Data == nil {
			continue
		}
		if dialect == "" {
			dialect = r.Dialect
		} else if dialect != r.Dialect {
			dialect = "mixed"
		}
		for _, entry := range r.Data.Entries {
			if entry.SourceID == "" {
				entry.SourceID = r.FilePath
			}
			allEntries = append(allEntries, entry)
		}
	}

	sort.SliceStable(allEntries, func(i, j int) bool {
		return allEntries[i].Timestamp.Before(allEntries[j].Timestamp)
	})

	merged := models.SucceededResult(Assemble(deduplicateEntries(allEntries, config.DedupeWindow)), errs)
	merged.Dialect = dialect
	return merged
}

// deduplicateEntries removes entries whose signal last carried the same
// value less than window ago. Entries must be sorted by timestamp.
func deduplicateEntries(entries []models.LogEntry, window time.Duration) []models.LogEntry {
	if len(entries) <= 1 || window <= 0 {
		return entries
	}

	result := make([]models.LogEntry, 0, len(entries))
	last := make(map[string]int) // signal key -> index into result

	for _, current := range entries {
		key := current.Key()
		if idx, ok := last[key]; ok {
			prev := result[idx]
			if current.Timestamp.Sub(prev.Timestamp) < window && valuesEqual(current.Value, prev.Value) {
				continue
			}
		}
		last[key] = len(result)
		result = append(result, current)
	}

	return result
}

// valuesEqual compares two entry values. Values are bool, int64 or string,
// all of which are comparable.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}
