package parser

import (
	"fmt"
	"strings"

	"github.com/plc-visualizer/logparse/internal/models"
)

// CSVSignalName is the registry name of the comma-separated dialect.
const CSVSignalName = "csv_signal"

// CSVSignalParser handles CSV signal logs.
// Format: "Timestamp,DeviceID,Signal,Value". The value column keeps any
// further commas.
type CSVSignalParser struct {
	rules []LineRule
}

func NewCSVSignalParser() *CSVSignalParser {
	return &CSVSignalParser{rules: CSVLineRules}
}

func (p *CSVSignalParser) CanParse(sample []string) bool {
	return sampleMatches(sample, func(line string) bool {
		entry, _ := p.ParseLine(line, 0)
		return entry != nil
	})
}

func (p *CSVSignalParser) ParseLine(raw string, lineNum int) (*models.LogEntry, *models.ParseError) {
	if action, _ := evaluateRules(p.rules, raw); action == ActionSkip {
		return nil, nil
	}

	parts := strings.SplitN(raw, ",", 4)
	if len(parts) < 4 {
		return nil, models.NewParseError(lineNum, raw,
			fmt.Sprintf("expected at least 4 comma-separated columns, got %d", len(parts)))
	}

	ts, err := ParseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, models.NewParseError(lineNum, raw, ReasonInvalidTimestamp)
	}

	deviceID, reason := ExtractDeviceID(parts[1])
	if reason != "" {
		return nil, models.NewParseError(lineNum, raw, reason)
	}

	signal := strings.TrimSpace(parts[2])
	if signal == "" {
		return nil, models.NewParseError(lineNum, raw, ReasonEmptySignal)
	}

	valueStr := strings.TrimSpace(parts[3])
	stype := Classify(valueStr)
	value, _ := ConvertValue(valueStr, stype)

	return &models.LogEntry{
		DeviceID:   deviceID,
		SignalName: signal,
		Timestamp:  ts,
		Value:      value,
		SignalType: stype,
		Line:       lineNum,
	}, nil
}
