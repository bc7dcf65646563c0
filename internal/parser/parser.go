package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/plc-visualizer/logparse/internal/models"
)

// LineParser turns one raw line of a dialect into an entry or a line error.
// Returning (nil, nil) means the line was recognized but carries no signal
// event and is skipped.
//
// Implementations must be safe for concurrent use: chunk workers call
// ParseLine from several goroutines at once.
type LineParser interface {
	ParseLine(raw string, lineNum int) (*models.LogEntry, *models.ParseError)
}

// Detector is implemented by dialects that can recognize their own format
// from a handful of sample lines.
type Detector interface {
	CanParse(sample []string) bool
}

// Line is one raw line tagged with its 1-based number in the source file.
type Line struct {
	Number int
	Text   string
}

// ProgressCallback is called as chunks finish with the number of lines
// processed so far and the total line count. It runs on the worker
// goroutine that finished the chunk; calls are serialized, never concurrent.
type ProgressCallback func(linesDone, totalLines int)

// Line error reasons shared by the shipped dialects.
const (
	ReasonInvalidTimestamp = "invalid timestamp"
	ReasonEmptyDevice      = "empty device id"
	ReasonInvalidDevice    = "invalid device id"
	ReasonEmptySignal      = "empty signal name"
)

// ParseTimestamp parses "YYYY-MM-DD HH:MM:SS[.f...]" as UTC.
// The fraction may have 1 to 9 digits. Calendar fields are range checked
// rather than normalized, so "2024-02-30" is rejected.
func ParseTimestamp(ts string) (time.Time, error) {
	// Example: "2025-09-25 06:02:11.086"
	if len(ts) < 19 {
		return time.Time{}, fmt.Errorf("timestamp too short: %q", ts)
	}
	if ts[4] != '-' || ts[7] != '-' || ts[10] != ' ' || ts[13] != ':' || ts[16] != ':' {
		return time.Time{}, fmt.Errorf("malformed timestamp: %q", ts)
	}

	year := parseInt4(ts[0:4])
	month := parseInt2(ts[5:7])
	day := parseInt2(ts[8:10])
	hour := parseInt2(ts[11:13])
	min := parseInt2(ts[14:16])
	sec := parseInt2(ts[17:19])

	if year < 0 || month < 1 || month > 12 || day < 1 ||
		hour < 0 || hour > 23 || min < 0 || min > 59 || sec < 0 || sec > 59 {
		return time.Time{}, fmt.Errorf("timestamp out of range: %q", ts)
	}
	if day > daysIn(time.Month(month), year) {
		return time.Time{}, fmt.Errorf("timestamp out of range: %q", ts)
	}

	var nsec int
	if len(ts) > 19 {
		if ts[19] != '.' {
			return time.Time{}, fmt.Errorf("malformed timestamp: %q", ts)
		}
		frac := ts[20:]
		if len(frac) == 0 || len(frac) > 9 {
			return time.Time{}, fmt.Errorf("malformed fractional seconds: %q", ts)
		}
		n, ok := parseDigits(frac)
		if !ok {
			return time.Time{}, fmt.Errorf("malformed fractional seconds: %q", ts)
		}
		nsec = n
		for i := len(frac); i < 9; i++ {
			nsec *= 10
		}
	}

	return time.Date(year, time.Month(month), day, hour, min, sec, nsec, time.UTC), nil
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// parseInt2 parses a 2-digit decimal string. Returns -1 on error.
func parseInt2(s string) int {
	if len(s) != 2 {
		return -1
	}
	d1, d2 := s[0]-'0', s[1]-'0'
	if d1 > 9 || d2 > 9 {
		return -1
	}
	return int(d1)*10 + int(d2)
}

// parseInt4 parses a 4-digit decimal string. Returns -1 on error.
func parseInt4(s string) int {
	if len(s) != 4 {
		return -1
	}
	d1, d2, d3, d4 := s[0]-'0', s[1]-'0', s[2]-'0', s[3]-'0'
	if d1 > 9 || d2 > 9 || d3 > 9 || d4 > 9 {
		return -1
	}
	return int(d1)*1000 + int(d2)*100 + int(d3)*10 + int(d4)
}

func parseDigits(s string) (int, bool) {
	result := 0
	for i := 0; i < len(s); i++ {
		d := s[i] - '0'
		if d > 9 {
			return 0, false
		}
		result = result*10 + int(d)
	}
	return result, true
}

// ExtractDeviceID pulls the device ID out of a controller path.
// "SYSTEM/LINE1/DEV-123@D19" yields "DEV-123". On failure it returns an
// empty ID and one of ReasonEmptyDevice or ReasonInvalidDevice.
func ExtractDeviceID(path string) (string, string) {
	p := strings.TrimSpace(path)
	p = strings.TrimRight(p, `/\`)

	segment := p
	if lastSep := strings.LastIndexAny(p, `/\`); lastSep >= 0 {
		segment = p[lastSep+1:]
	}

	// Strip @ suffix if present (e.g., "DEVICE-123@D19" -> "DEVICE-123")
	if atIdx := strings.IndexByte(segment, '@'); atIdx >= 0 {
		segment = segment[:atIdx]
	}
	segment = strings.TrimSpace(segment)

	if segment == "" {
		return "", ReasonEmptyDevice
	}
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') || c == '_' || c == '-' || c == '.') {
			return "", ReasonInvalidDevice
		}
	}
	return segment, ""
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// sampleMatches applies the detection threshold: of the first five
// non-blank sample lines, at least 60% (rounded up) must match.
func sampleMatches(sample []string, match func(string) bool) bool {
	inspected, matched := 0, 0
	for _, line := range sample {
		if isBlank(line) {
			continue
		}
		inspected++
		if match(line) {
			matched++
		}
		if inspected >= 5 {
			break
		}
	}
	if inspected == 0 {
		return false
	}
	threshold := (inspected*6 + 9) / 10
	if threshold < 1 {
		threshold = 1
	}
	return matched >= threshold
}
