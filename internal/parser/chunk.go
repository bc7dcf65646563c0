package parser

import (
	"fmt"

	"github.com/plc-visualizer/logparse/internal/models"
)

// chunkResult is one worker's output, in line order.
type chunkResult struct {
	entries []models.LogEntry
	errors  []models.ParseError
}

// parseChunk runs p over a contiguous slice of lines. It touches nothing but
// its own result and intern pool, so chunks can run in parallel without locks.
func parseChunk(p LineParser, lines []Line) chunkResult {
	res := chunkResult{
		entries: make([]models.LogEntry, 0, len(lines)),
	}
	pool := newInternPool()

	for _, ln := range lines {
		if isBlank(ln.Text) {
			continue
		}

		entry, perr := safeParseLine(p, ln)
		switch {
		case perr != nil:
			e := *perr
			e.Line = ln.Number
			if e.Content == "" {
				e.Content = models.Excerpt(ln.Text)
			}
			res.errors = append(res.errors, e)
		case entry != nil:
			ent := *entry
			ent.Line = ln.Number
			ent.DeviceID = pool.intern(ent.DeviceID)
			ent.SignalName = pool.intern(ent.SignalName)
			ent.Category = pool.intern(ent.Category)
			res.entries = append(res.entries, ent)
		}
	}
	return res
}

// safeParseLine turns a panicking dialect into a line error for that line.
func safeParseLine(p LineParser, ln Line) (entry *models.LogEntry, perr *models.ParseError) {
	defer func() {
		if r := recover(); r != nil {
			entry = nil
			perr = models.NewParseError(ln.Number, ln.Text, fmt.Sprintf("parser panic: %v", r))
		}
	}()
	return p.ParseLine(ln.Text, ln.Number)
}
