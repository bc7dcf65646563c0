package models

import "fmt"

// MaxErrorContent bounds the raw line excerpt kept in a ParseError.
const MaxErrorContent = 200

// ParseError represents an error encountered during parsing.
// Line is 0 for errors that concern the whole file.
type ParseError struct {
	Line     int    `json:"line" msgpack:"line"`
	Content  string `json:"content" msgpack:"content"`
	Reason   string `json:"reason" msgpack:"reason"`
	FilePath string `json:"filePath,omitempty" msgpack:"filePath,omitempty"`
}

// NewParseError builds a line error, truncating content to MaxErrorContent bytes.
func NewParseError(line int, content, reason string) *ParseError {
	return &ParseError{Line: line, Content: Excerpt(content), Reason: reason}
}

// Excerpt truncates s to MaxErrorContent bytes without splitting a UTF-8 sequence.
func Excerpt(s string) string {
	if len(s) <= MaxErrorContent {
		return s
	}
	cut := MaxErrorContent
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}

func (e ParseError) String() string {
	if e.Line == 0 {
		return fmt.Sprintf("[%s] %s", e.FilePath, e.Reason)
	}
	return fmt.Sprintf("[%s] Line %d: %s | %s", e.FilePath, e.Line, e.Reason, e.Content)
}

// ParseResult is the outcome of parsing one file (or a merge of several).
// Data is nil only when the file could not be parsed at all.
type ParseResult struct {
	Success  bool         `json:"success" msgpack:"success"`
	Data     *ParsedLog   `json:"data" msgpack:"data"`
	Errors   []ParseError `json:"errors" msgpack:"errors"`
	Dialect  string       `json:"dialect,omitempty" msgpack:"dialect,omitempty"`
	FilePath string       `json:"filePath,omitempty" msgpack:"filePath,omitempty"`
}

// HasErrors reports whether any line or file errors were collected.
func (r ParseResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// FailedResult builds a result for a call that produced no data.
func FailedResult(errs ...ParseError) ParseResult {
	if errs == nil {
		errs = []ParseError{}
	}
	return ParseResult{Success: false, Errors: errs}
}

// SucceededResult builds a result around parsed data.
func SucceededResult(data *ParsedLog, errs []ParseError) ParseResult {
	if errs == nil {
		errs = []ParseError{}
	}
	return ParseResult{Success: true, Data: data, Errors: errs}
}
