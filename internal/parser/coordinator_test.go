package parser

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"unsafe"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/plc-visualizer/logparse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRanges(t *testing.T) {
	tests := []struct {
		n, workers int
		expected   []lineRange
	}{
		{0, 1, []lineRange{{0, 0}}},
		{10, 1, []lineRange{{0, 10}}},
		{10, 3, []lineRange{{0, 3}, {3, 6}, {6, 10}}},
		{10, 10, []lineRange{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}, {6, 7}, {7, 8}, {8, 9}, {9, 10}}},
		{7, 2, []lineRange{{0, 3}, {3, 7}}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.workers), func(t *testing.T) {
			assert.Equal(t, tt.expected, splitRanges(tt.n, tt.workers))
		})
	}
}

func TestNormalizeWorkers(t *testing.T) {
	assert.Equal(t, 1, normalizeWorkers(0, 100))
	assert.Equal(t, 1, normalizeWorkers(-5, 100))
	assert.Equal(t, 8, normalizeWorkers(8, 100))
	assert.Equal(t, 3, normalizeWorkers(8, 3))
	assert.Equal(t, 1, normalizeWorkers(8, 0))
}

// lineKinds are the building blocks for generated debug logs.
var lineKinds = []func(i int) string{
	func(i int) string {
		return fmt.Sprintf("2024-01-15 10:%02d:%02d.000 [INFO] [/PLC/Dev%d] [CAT:Sig%d] (bool) : ON", i/60%60, i%60, i%3, i%4)
	},
	func(i int) string {
		return fmt.Sprintf("2024-01-15 10:%02d:%02d.000 [INFO] [/PLC/Dev%d] [CAT:Count] (int) : %d", i/60%60, i%60, i%2, i)
	},
	func(i int) string { return "" },
	func(i int) string { return "2024-01-15 10:00:00.000 [INFO] heartbeat" },
	func(i int) string { return fmt.Sprintf("garbage line %d", i) },
}

func buildLines(kinds []int) []Line {
	lines := make([]Line, len(kinds))
	for i, k := range kinds {
		lines[i] = Line{Number: i + 1, Text: lineKinds[k](i)}
	}
	return lines
}

func TestRunParallel_DeterministicAcrossWorkers(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	parser := NewPLCDebugParser()

	properties.Property("output is independent of worker count", prop.ForAll(
		func(kinds []int, workers int) bool {
			lines := buildLines(kinds)
			wantEntries, wantErrs := RunParallel(lines, parser, 1)
			gotEntries, gotErrs := RunParallel(lines, parser, workers)
			return reflect.DeepEqual(wantEntries, gotEntries) && reflect.DeepEqual(wantErrs, gotErrs)
		},
		gen.SliceOf(gen.IntRange(0, len(lineKinds)-1)),
		gen.IntRange(1, 16),
	))

	properties.Property("entries and errors follow line order", prop.ForAll(
		func(kinds []int, workers int) bool {
			entries, errs := RunParallel(buildLines(kinds), parser, workers)
			for i := 1; i < len(entries); i++ {
				if entries[i].Line <= entries[i-1].Line {
					return false
				}
			}
			for i := 1; i < len(errs); i++ {
				if errs[i].Line <= errs[i-1].Line {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(lineKinds)-1)),
		gen.IntRange(1, 16),
	))

	properties.Property("every non-blank line is an entry, an error or a skip", prop.ForAll(
		func(kinds []int, workers int) bool {
			want := map[int]int{}
			for _, k := range kinds {
				want[k]++
			}
			entries, errs := RunParallel(buildLines(kinds), parser, workers)
			return len(entries) == want[0]+want[1] && len(errs) == want[4]
		},
		gen.SliceOf(gen.IntRange(0, len(lineKinds)-1)),
		gen.IntRange(1, 16),
	))

	properties.TestingRun(t)
}

type panickyParser struct{}

func (panickyParser) ParseLine(raw string, lineNum int) (*models.LogEntry, *models.ParseError) {
	if raw == "boom" {
		panic("bad input")
	}
	return nil, nil
}

func TestRunParallel_RecoversParserPanic(t *testing.T) {
	entries, errs := RunParallel(toLines("ok", "boom", "ok"), panickyParser{}, 2)

	assert.Empty(t, entries)
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].Line)
	assert.Equal(t, "boom", errs[0].Content)
	assert.Equal(t, "parser panic: bad input", errs[0].Reason)
}

func TestRunParallel_Empty(t *testing.T) {
	entries, errs := RunParallel(nil, NewPLCDebugParser(), 4)
	assert.NotNil(t, entries)
	assert.NotNil(t, errs)
	assert.Empty(t, entries)
	assert.Empty(t, errs)
}

func TestRunParallel_Progress(t *testing.T) {
	lines := toLines(
		"2024-01-15 10:30:45.123 [INFO] [/PLC/D1] [C:S] (bool) : ON",
		"2024-01-15 10:30:46.123 [INFO] [/PLC/D1] [C:S] (bool) : OFF",
		"2024-01-15 10:30:47.123 [INFO] [/PLC/D1] [C:S] (bool) : ON",
		"2024-01-15 10:30:48.123 [INFO] [/PLC/D1] [C:S] (bool) : OFF",
	)

	var (
		mu    sync.Mutex
		calls []int
	)
	entries, _ := runParallel(lines, NewPLCDebugParser(), 2, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 4, total)
		calls = append(calls, done)
	})

	assert.Len(t, entries, 4)
	assert.Equal(t, []int{2, 4}, calls)
}

func TestParseChunk_InternsStrings(t *testing.T) {
	lines := toLines(
		"2024-01-15 10:30:45.123 [INFO] [/PLC/D1] [C:S] (bool) : ON",
		"2024-01-15 10:30:46.123 [INFO] [/PLC/D1] [C:S] (bool) : OFF",
	)
	res := parseChunk(NewPLCDebugParser(), lines)
	require.Len(t, res.entries, 2)
	assert.Equal(t, res.entries[0].DeviceID, res.entries[1].DeviceID)
	assert.Equal(t, 1, res.entries[1].Line-res.entries[0].Line)
}

func TestInternPool(t *testing.T) {
	ip := newInternPool()
	a := ip.intern(string([]byte("PLC1")))
	b := ip.intern(string([]byte("PLC1")))
	assert.Equal(t, a, b)
	assert.Equal(t, "", ip.intern(""))
	assert.Equal(t, 1, ip.size())
}

func TestInternPool_OwnsCopy(t *testing.T) {
	ip := newInternPool()
	line := "2024-01-15 10:30:45.123 [INFO] [/PLC/D1] [C:S] (bool) : ON"
	i := strings.Index(line, "D1")
	sub := line[i : i+2]

	got := ip.intern(sub)
	assert.Equal(t, "D1", got)
	assert.NotEqual(t, unsafe.StringData(sub), unsafe.StringData(got), "pooled string must not share the line's backing array")

	again := ip.intern(string([]byte("D1")))
	assert.Equal(t, unsafe.StringData(got), unsafe.StringData(again))
}
