package parser

import (
	"strconv"
	"strings"

	"github.com/plc-visualizer/logparse/internal/models"
)

// boolLexicon is matched case-insensitively after trimming.
var boolLexicon = map[string]bool{
	"TRUE": true, "ON": true, "1": true, "HIGH": true, "SET": true, "YES": true,
	"FALSE": false, "OFF": false, "0": false, "LOW": false, "RESET": false, "NO": false,
}

// Classify decides the value domain of a raw token. It never fails:
// booleans win over integers ("1" is Boolean), and anything that is
// neither is a String.
func Classify(raw string) models.SignalType {
	if _, ok := ParseBool(raw); ok {
		return models.SignalTypeBoolean
	}
	if _, ok := ParseInteger(raw); ok {
		return models.SignalTypeInteger
	}
	return models.SignalTypeString
}

// ParseBool looks raw up in the boolean lexicon.
func ParseBool(raw string) (bool, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return false, false
	}
	v, ok := boolLexicon[strings.ToUpper(s)]
	return v, ok
}

// ParseInteger accepts an optional sign followed by decimal digits only.
// Values that overflow int64 are rejected.
func ParseInteger(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if !isIntegerLiteral(s) {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isIntegerLiteral(s string) bool {
	if len(s) == 0 {
		return false
	}
	i := 0
	if s[0] == '+' || s[0] == '-' {
		i++
	}
	if i >= len(s) {
		return false
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ConvertValue converts raw to the Go value for stype: bool, int64 or the
// trimmed string. ok is false when raw does not belong to stype.
func ConvertValue(raw string, stype models.SignalType) (any, bool) {
	switch stype {
	case models.SignalTypeBoolean:
		v, ok := ParseBool(raw)
		return v, ok
	case models.SignalTypeInteger:
		v, ok := ParseInteger(raw)
		return v, ok
	default:
		return strings.TrimSpace(raw), true
	}
}

// typeFromDeclared maps a debug-dialect "(dtype)" token. Unknown tokens
// report false so the caller falls back to Classify.
func typeFromDeclared(dtype string) (models.SignalType, bool) {
	switch strings.ToUpper(strings.TrimSpace(dtype)) {
	case "BOOL", "BOOLEAN":
		return models.SignalTypeBoolean, true
	case "INT", "INTEGER", "DINT", "UINT16", "UINT32", "WORD", "DWORD":
		return models.SignalTypeInteger, true
	case "STRING", "STR":
		return models.SignalTypeString, true
	}
	return "", false
}
