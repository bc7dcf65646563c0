package parser

import (
	"github.com/plc-visualizer/logparse/internal/models"
)

// Assemble folds ordered entries into a ParsedLog. The first occurrence of
// a signal key creates its SignalInfo (and fixes its type); later
// occurrences bump the count and move LastSeen/LastLine.
func Assemble(entries []models.LogEntry) *models.ParsedLog {
	if entries == nil {
		entries = make([]models.LogEntry, 0)
	}

	log := &models.ParsedLog{
		Entries:    entries,
		Signals:    models.NewSignalIndex(),
		Devices:    make([]string, 0),
		EntryCount: len(entries),
	}

	seenDevices := make(map[string]struct{})
	for i := range entries {
		e := &entries[i]
		key := e.Key()

		if info, ok := log.Signals.Get(key); ok {
			info.Count++
			info.LastSeen = e.Timestamp
			info.LastLine = e.Line
		} else {
			log.Signals.Insert(&models.SignalInfo{
				Key:        key,
				DeviceID:   e.DeviceID,
				SignalName: e.SignalName,
				Type:       e.SignalType,
				Count:      1,
				FirstSeen:  e.Timestamp,
				LastSeen:   e.Timestamp,
				FirstLine:  e.Line,
				LastLine:   e.Line,
			})
		}

		if _, ok := seenDevices[e.DeviceID]; !ok {
			seenDevices[e.DeviceID] = struct{}{}
			log.Devices = append(log.Devices, e.DeviceID)
		}

		if log.TimeRange == nil {
			log.TimeRange = &models.TimeRange{Start: e.Timestamp, End: e.Timestamp}
			continue
		}
		if e.Timestamp.Before(log.TimeRange.Start) {
			log.TimeRange.Start = e.Timestamp
		}
		if e.Timestamp.After(log.TimeRange.End) {
			log.TimeRange.End = e.Timestamp
		}
	}

	return log
}
