package parser

import "testing"

func TestEvaluateRules(t *testing.T) {
	tests := []struct {
		rules  []LineRule
		line   string
		action LineAction
		rule   string
	}{
		{DebugLineRules, "", ActionSkip, "blank"},
		{DebugLineRules, "  # note", ActionSkip, "comment"},
		{DebugLineRules, "2024-01-15 10:30:45.123 [INFO] started", ActionSkip, "non-event"},
		{DebugLineRules, "2024-01-15 10:30:45.123 [INFO] [/PLC/D1] [C:S] (bool) : ON", ActionParse, ""},
		{DebugLineRules, "not-a-timestamp [INFO] started", ActionParse, ""},
		{DebugLineRules, "2024-01-15 10:30:45.123 [INFO] [/A/B/PLC1] (boolean) : true", ActionParse, ""},
		{DebugLineRules, "2024-01-15 10:30:45.123 [INFO] [/A/B/PLC1]:MOTOR_RUN (bool) : true", ActionParse, ""},
		{DebugLineRules, "2024-01-15 10:30:45.123 [INFO] (boolean) : true", ActionParse, ""},
		{DebugLineRules, "2024-01-15 10:30:45.123 [INFO] retry (attempt 2) later", ActionSkip, "non-event"},
		{TabLineRules, "# not a comment here", ActionParse, ""},
		{CSVLineRules, "timestamp,device,signal,value", ActionSkip, "header"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			action, rule := evaluateRules(tt.rules, tt.line)
			if action != tt.action || rule != tt.rule {
				t.Errorf("evaluateRules(%q) = (%v, %q), expected (%v, %q)", tt.line, action, rule, tt.action, tt.rule)
			}
		})
	}
}

func TestHasEventMarker(t *testing.T) {
	tests := map[string]bool{
		"(bool) : ON":           true,
		"(int):5":               true,
		"(a) then (bool)\t: 1": true,
		"retry (attempt 2)":     false,
		"no markers":            false,
		"(unclosed : x":         false,
	}
	for in, want := range tests {
		if got := hasEventMarker(in); got != want {
			t.Errorf("hasEventMarker(%q) = %v, expected %v", in, got, want)
		}
	}
}

func TestCountBracketGroups(t *testing.T) {
	tests := map[string]int{
		"":                 0,
		"[a]":              1,
		"[a] [b] [c]":      3,
		"[a [nested]] [b]": 2,
		"] stray [open":    0,
	}
	for in, want := range tests {
		if got := countBracketGroups(in); got != want {
			t.Errorf("countBracketGroups(%q) = %d, expected %d", in, got, want)
		}
	}
}
