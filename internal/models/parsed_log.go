package models

import (
	"encoding/json"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ParsedLog represents the result of parsing a log file.
type ParsedLog struct {
	Entries    []LogEntry   `json:"entries" msgpack:"entries"`
	Signals    *SignalIndex `json:"signals" msgpack:"signals"`
	Devices    []string     `json:"devices" msgpack:"devices"`
	EntryCount int          `json:"entryCount" msgpack:"entryCount"`
	TimeRange  *TimeRange   `json:"timeRange,omitempty" msgpack:"timeRange,omitempty"`
}

// TimeRange represents a time window.
type TimeRange struct {
	Start time.Time `json:"start" msgpack:"start"`
	End   time.Time `json:"end" msgpack:"end"`
}

// NewParsedLog creates a new empty ParsedLog.
func NewParsedLog() *ParsedLog {
	return &ParsedLog{
		Entries: make([]LogEntry, 0),
		Signals: NewSignalIndex(),
		Devices: make([]string, 0),
	}
}

// SignalInfo is the aggregated metadata of one signal.
type SignalInfo struct {
	Key        string     `json:"key" msgpack:"key"`
	DeviceID   string     `json:"deviceId" msgpack:"deviceId"`
	SignalName string     `json:"signalName" msgpack:"signalName"`
	Type       SignalType `json:"type" msgpack:"type"`
	Count      int        `json:"count" msgpack:"count"`
	FirstSeen  time.Time  `json:"firstSeen" msgpack:"firstSeen"`
	LastSeen   time.Time  `json:"lastSeen" msgpack:"lastSeen"`
	FirstLine  int        `json:"firstLine" msgpack:"firstLine"`
	LastLine   int        `json:"lastLine" msgpack:"lastLine"`
}

// SignalIndex maps signal keys to their metadata and remembers
// first-insertion order.
type SignalIndex struct {
	keys  []string
	byKey map[string]*SignalInfo
}

// NewSignalIndex creates an empty index.
func NewSignalIndex() *SignalIndex {
	return &SignalIndex{byKey: make(map[string]*SignalInfo)}
}

// Get returns the metadata stored under key.
func (si *SignalIndex) Get(key string) (*SignalInfo, bool) {
	if si == nil {
		return nil, false
	}
	info, ok := si.byKey[key]
	return info, ok
}

// Insert adds info under info.Key. It returns false and leaves the index
// untouched if the key already exists.
func (si *SignalIndex) Insert(info *SignalInfo) bool {
	if _, ok := si.byKey[info.Key]; ok {
		return false
	}
	si.keys = append(si.keys, info.Key)
	si.byKey[info.Key] = info
	return true
}

// Keys returns the keys in first-occurrence order.
func (si *SignalIndex) Keys() []string {
	if si == nil {
		return nil
	}
	out := make([]string, len(si.keys))
	copy(out, si.keys)
	return out
}

// List returns the signal metadata in first-occurrence order.
func (si *SignalIndex) List() []SignalInfo {
	if si == nil {
		return nil
	}
	out := make([]SignalInfo, 0, len(si.keys))
	for _, k := range si.keys {
		out = append(out, *si.byKey[k])
	}
	return out
}

// Len returns the number of distinct signals.
func (si *SignalIndex) Len() int {
	if si == nil {
		return 0
	}
	return len(si.keys)
}

// MarshalJSON encodes the index as an ordered array.
func (si *SignalIndex) MarshalJSON() ([]byte, error) {
	list := si.List()
	if list == nil {
		list = []SignalInfo{}
	}
	return json.Marshal(list)
}

// UnmarshalJSON restores an index from its ordered array form.
func (si *SignalIndex) UnmarshalJSON(data []byte) error {
	var list []SignalInfo
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	si.fill(list)
	return nil
}

// EncodeMsgpack encodes the index as an ordered array.
func (si *SignalIndex) EncodeMsgpack(enc *msgpack.Encoder) error {
	list := si.List()
	if list == nil {
		list = []SignalInfo{}
	}
	return enc.Encode(list)
}

// DecodeMsgpack restores an index from its ordered array form.
func (si *SignalIndex) DecodeMsgpack(dec *msgpack.Decoder) error {
	var list []SignalInfo
	if err := dec.Decode(&list); err != nil {
		return err
	}
	si.fill(list)
	return nil
}

func (si *SignalIndex) fill(list []SignalInfo) {
	si.keys = make([]string, 0, len(list))
	si.byKey = make(map[string]*SignalInfo, len(list))
	for i := range list {
		info := list[i]
		si.Insert(&info)
	}
}
