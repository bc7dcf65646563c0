package models

// SessionStatus represents the status of a parse session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusParsing  SessionStatus = "parsing"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// ParseSession represents a file parsing session.
type ParseSession struct {
	ID               string        `json:"id"`
	FilePaths        []string      `json:"filePaths"`
	Dialect          string        `json:"dialect,omitempty"`
	Workers          int           `json:"workers"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	EntryCount       int           `json:"entryCount,omitempty"`
	SignalCount      int           `json:"signalCount,omitempty"`
	ErrorCount       int           `json:"errorCount,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	StartTime        int64         `json:"startTime,omitempty"` // Unix ms
	EndTime          int64         `json:"endTime,omitempty"`   // Unix ms
	Message          string        `json:"message,omitempty"`
}

// NewParseSession creates a new ParseSession in pending status.
func NewParseSession(id string, paths []string, dialect string, workers int) *ParseSession {
	return &ParseSession{
		ID:        id,
		FilePaths: paths,
		Dialect:   dialect,
		Workers:   workers,
		Status:    SessionStatusPending,
	}
}
