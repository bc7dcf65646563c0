package parser

import (
	"fmt"
	"strings"

	"github.com/plc-visualizer/logparse/internal/models"
)

// PLCTabName is the registry name of the tab-delimited dialect.
const PLCTabName = "plc_tab"

// minTabColumns counts the head column ("ts [level] path") plus signal,
// type hint and value.
const minTabColumns = 4

// PLCTabParser handles tab-delimited logs.
// Format: "YYYY-MM-DD HH:MM:SS.fff [] path\tsignal\thint\tvalue\t..."
//
// Only blank lines are skipped. Extra trailing columns are ignored.
type PLCTabParser struct {
	rules []LineRule
}

func NewPLCTabParser() *PLCTabParser {
	return &PLCTabParser{rules: TabLineRules}
}

func (p *PLCTabParser) CanParse(sample []string) bool {
	return sampleMatches(sample, func(line string) bool {
		entry, _ := p.ParseLine(line, 0)
		return entry != nil
	})
}

func (p *PLCTabParser) ParseLine(raw string, lineNum int) (*models.LogEntry, *models.ParseError) {
	if action, _ := evaluateRules(p.rules, raw); action == ActionSkip {
		return nil, nil
	}

	fail := func(reason string) (*models.LogEntry, *models.ParseError) {
		return nil, models.NewParseError(lineNum, raw, reason)
	}

	cols := strings.Split(raw, "\t")
	if len(cols) < minTabColumns {
		return fail(fmt.Sprintf("expected at least %d tab-separated columns, got %d", minTabColumns, len(cols)))
	}

	head := cols[0]
	levelStart := strings.IndexByte(head, '[')
	if levelStart < 0 {
		return fail("missing level marker")
	}
	ts, err := ParseTimestamp(strings.TrimSpace(head[:levelStart]))
	if err != nil {
		return fail(ReasonInvalidTimestamp)
	}
	levelEnd := indexFrom(head, ']', levelStart+1)
	if levelEnd < 0 {
		return fail("missing level marker")
	}

	deviceID, reason := ExtractDeviceID(head[levelEnd+1:])
	if reason != "" {
		return fail(reason)
	}

	signal := strings.TrimSpace(cols[1])
	if signal == "" {
		return fail(ReasonEmptySignal)
	}

	hint := strings.TrimSpace(cols[2])
	valueStr := strings.TrimSpace(cols[3])
	if valueStr == "" && len(cols) > 4 {
		valueStr = strings.TrimSpace(cols[4])
	}

	stype, strict := typeFromHint(hint, valueStr)
	value, ok := ConvertValue(valueStr, stype)
	if !ok && strict {
		return fail(fmt.Sprintf("value %q is not a valid %s", valueStr, stype))
	}

	return &models.LogEntry{
		DeviceID:   deviceID,
		SignalName: signal,
		Timestamp:  ts,
		Value:      value,
		SignalType: stype,
		Line:       lineNum,
	}, nil
}

// typeFromHint applies the tab dialect's type hint column. Direction hints
// (IN/OUT/DIGITAL) and BOOL only select Boolean when the value is boolean;
// integer hints are strict, so a non-integer value becomes a line error.
func typeFromHint(hint, value string) (models.SignalType, bool) {
	switch strings.ToUpper(hint) {
	case "BOOL", "BOOLEAN", "DIGITAL", "IN", "OUT":
		if _, ok := ParseBool(value); ok {
			return models.SignalTypeBoolean, true
		}
	case "INT", "INTEGER", "DINT", "WORD", "DWORD":
		return models.SignalTypeInteger, true
	}
	return Classify(value), false
}
