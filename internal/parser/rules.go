package parser

import "strings"

// LineAction is what a dialect does with a line before field extraction.
type LineAction int

const (
	// ActionParse hands the line to field extraction; any failure there is a line error.
	ActionParse LineAction = iota
	// ActionSkip drops the line silently: no entry, no error.
	ActionSkip
)

func (a LineAction) String() string {
	if a == ActionSkip {
		return "skip"
	}
	return "parse"
}

// LineRule is one row of a dialect's skip table.
type LineRule struct {
	Name   string
	Match  func(line string) bool
	Action LineAction
}

// evaluateRules returns the action of the first matching rule, or ActionParse.
func evaluateRules(rules []LineRule, line string) (LineAction, string) {
	for _, r := range rules {
		if r.Match(line) {
			return r.Action, r.Name
		}
	}
	return ActionParse, ""
}

// DebugLineRules is the plc_debug skip table, evaluated top to bottom.
// Lines that match no rule are parsed as signal events.
var DebugLineRules = []LineRule{
	{Name: "blank", Match: isBlank, Action: ActionSkip},
	{Name: "comment", Match: isComment, Action: ActionSkip},
	{Name: "non-event", Match: isDebugNoise, Action: ActionSkip},
}

// TabLineRules is the plc_tab skip table.
var TabLineRules = []LineRule{
	{Name: "blank", Match: isBlank, Action: ActionSkip},
}

// CSVLineRules is the csv_signal skip table.
var CSVLineRules = []LineRule{
	{Name: "blank", Match: isBlank, Action: ActionSkip},
	{Name: "header", Match: isCSVHeader, Action: ActionSkip},
}

func isComment(line string) bool {
	s := strings.TrimSpace(line)
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, "//")
}

// isDebugNoise matches timestamped, levelled free-text messages such as
// "2024-01-15 10:30:45.123 [INFO] controller started": a valid timestamp,
// a [Level] group, fewer than the three bracket groups a signal event
// carries, and no "(dtype) :" event marker. A line with the marker is a
// broken event and must surface as a line error.
func isDebugNoise(line string) bool {
	s := strings.TrimSpace(line)
	open := strings.IndexByte(s, '[')
	if open <= 0 {
		return false
	}
	if _, err := ParseTimestamp(strings.TrimSpace(s[:open])); err != nil {
		return false
	}
	if strings.IndexByte(s[open:], ']') < 0 {
		return false
	}
	if hasEventMarker(s[open:]) {
		return false
	}
	return countBracketGroups(s[open:]) < 3
}

// hasEventMarker reports whether s holds "(...)" followed by optional
// blanks and a colon.
func hasEventMarker(s string) bool {
	for {
		open := strings.IndexByte(s, '(')
		if open < 0 {
			return false
		}
		end := strings.IndexByte(s[open:], ')')
		if end < 0 {
			return false
		}
		s = s[open+end+1:]
		if strings.HasPrefix(strings.TrimLeft(s, " \t"), ":") {
			return true
		}
	}
}

func countBracketGroups(s string) int {
	groups := 0
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
				if depth == 0 {
					groups++
				}
			}
		}
	}
	return groups
}

func isCSVHeader(line string) bool {
	s := strings.ToLower(strings.TrimSpace(line))
	return strings.HasPrefix(s, "timestamp")
}
