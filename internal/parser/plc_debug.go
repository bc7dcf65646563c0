package parser

import (
	"fmt"
	"strings"

	"github.com/plc-visualizer/logparse/internal/models"
)

// PLCDebugName is the registry name of the debug dialect.
const PLCDebugName = "plc_debug"

// PLCDebugParser handles bracket-delimited logs.
// Format: "YYYY-MM-DD HH:MM:SS.fff [Level] [path] [cat:signal] (dtype) : value"
//
// Blank lines, comments and levelled free-text messages are skipped (see
// DebugLineRules). Every other line must be a complete signal event.
type PLCDebugParser struct {
	rules []LineRule
}

func NewPLCDebugParser() *PLCDebugParser {
	return &PLCDebugParser{rules: DebugLineRules}
}

func (p *PLCDebugParser) CanParse(sample []string) bool {
	return sampleMatches(sample, func(line string) bool {
		entry, _ := p.ParseLine(line, 0)
		return entry != nil
	})
}

func (p *PLCDebugParser) ParseLine(raw string, lineNum int) (*models.LogEntry, *models.ParseError) {
	if action, _ := evaluateRules(p.rules, raw); action == ActionSkip {
		return nil, nil
	}

	fail := func(reason string) (*models.LogEntry, *models.ParseError) {
		return nil, models.NewParseError(lineNum, raw, reason)
	}

	line := strings.TrimSpace(raw)

	// Single pass over the delimiters: [level] [path] [signal] (dtype) :
	levelStart := strings.IndexByte(line, '[')
	if levelStart < 0 {
		return fail("line does not match PLC debug format")
	}
	ts, err := ParseTimestamp(strings.TrimSpace(line[:levelStart]))
	if err != nil {
		return fail(ReasonInvalidTimestamp)
	}

	var groups [3][2]int
	pos := levelStart
	for i := range groups {
		open := indexFrom(line, '[', pos)
		if open < 0 {
			return fail("line does not match PLC debug format")
		}
		end := indexFrom(line, ']', open+1)
		if end < 0 {
			return fail("line does not match PLC debug format")
		}
		groups[i] = [2]int{open, end}
		pos = end + 1
	}

	rest := strings.TrimLeft(line[pos:], " \t")
	if !strings.HasPrefix(rest, "(") {
		return fail("missing data type marker")
	}
	dtypeEnd := strings.IndexByte(rest, ')')
	if dtypeEnd < 0 {
		return fail("missing data type marker")
	}
	dtype := strings.TrimSpace(rest[1:dtypeEnd])

	afterType := strings.TrimLeft(rest[dtypeEnd+1:], " \t")
	if !strings.HasPrefix(afterType, ":") {
		return fail("missing value separator")
	}
	valueStr := strings.TrimSpace(afterType[1:])

	path := line[groups[1][0]+1 : groups[1][1]]
	deviceID, reason := ExtractDeviceID(path)
	if reason != "" {
		return fail(reason)
	}

	category, signal := splitCategory(line[groups[2][0]+1 : groups[2][1]])
	if signal == "" {
		return fail(ReasonEmptySignal)
	}

	stype, declared := typeFromDeclared(dtype)
	if !declared {
		stype = Classify(valueStr)
	}
	value, ok := ConvertValue(valueStr, stype)
	if !ok {
		return fail(fmt.Sprintf("value %q is not a valid %s", valueStr, stype))
	}

	return &models.LogEntry{
		DeviceID:   deviceID,
		SignalName: signal,
		Timestamp:  ts,
		Value:      value,
		SignalType: stype,
		Category:   category,
		Line:       lineNum,
	}, nil
}

// splitCategory splits "CATEGORY:SIGNAL" on the first colon. Without a
// colon the whole token is the signal name.
func splitCategory(token string) (string, string) {
	token = strings.TrimSpace(token)
	if idx := strings.IndexByte(token, ':'); idx >= 0 {
		return strings.TrimSpace(token[:idx]), strings.TrimSpace(token[idx+1:])
	}
	return "", token
}

func indexFrom(s string, c byte, from int) int {
	if from >= len(s) {
		return -1
	}
	idx := strings.IndexByte(s[from:], c)
	if idx < 0 {
		return -1
	}
	return from + idx
}
