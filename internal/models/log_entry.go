// Package models contains domain types for the PLC log parsing engine.
package models

import "time"

// SignalType represents the type of a signal value.
type SignalType string

const (
	SignalTypeBoolean SignalType = "boolean"
	SignalTypeString  SignalType = "string"
	SignalTypeInteger SignalType = "integer"
)

// Valid reports whether t is one of the three known signal types.
func (t SignalType) Valid() bool {
	switch t {
	case SignalTypeBoolean, SignalTypeInteger, SignalTypeString:
		return true
	}
	return false
}

// KeySeparator joins device ID and signal name in a signal key.
const KeySeparator = "::"

// SignalKey builds the composite "<device>::<signal>" key. Both parts are used verbatim.
func SignalKey(deviceID, signalName string) string {
	return deviceID + KeySeparator + signalName
}

// LogEntry represents a single signal transition from a PLC log file.
type LogEntry struct {
	DeviceID   string     `json:"deviceId" msgpack:"deviceId"`
	SignalName string     `json:"signalName" msgpack:"signalName"`
	Timestamp  time.Time  `json:"timestamp" msgpack:"timestamp"`
	Value      any        `json:"value" msgpack:"value"` // bool, int64 or string
	SignalType SignalType `json:"signalType" msgpack:"signalType"`
	Category   string     `json:"category,omitempty" msgpack:"category,omitempty"`
	Line       int        `json:"line" msgpack:"line"`
	SourceID   string     `json:"sourceId,omitempty" msgpack:"sourceId,omitempty"` // file path for merged results
}

// Key returns the entry's signal key.
func (e LogEntry) Key() string {
	return SignalKey(e.DeviceID, e.SignalName)
}
