// Package export encodes parse results for files and HTTP responses.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/plc-visualizer/logparse/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypeMsgpack is the media type served for msgpack payloads.
const ContentTypeMsgpack = "application/msgpack"

// WriteMsgpack encodes result as msgpack.
func WriteMsgpack(w io.Writer, result models.ParseResult) error {
	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode msgpack: %w", err)
	}
	return nil
}

// MarshalMsgpack encodes v (a page of entries, a signal list) with the
// same settings as WriteMsgpack.
func MarshalMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode msgpack: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadMsgpack decodes a result written by WriteMsgpack. Entry values are
// restored to bool, int64 or string according to their signal type.
func ReadMsgpack(r io.Reader) (models.ParseResult, error) {
	var result models.ParseResult
	if err := msgpack.NewDecoder(r).Decode(&result); err != nil {
		return models.ParseResult{}, fmt.Errorf("decode msgpack: %w", err)
	}
	if err := normalizeResult(&result); err != nil {
		return models.ParseResult{}, err
	}
	return result, nil
}

// WriteJSON encodes result as JSON, optionally indented.
func WriteJSON(w io.Writer, result models.ParseResult, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// ReadJSON decodes a result written by WriteJSON.
func ReadJSON(r io.Reader) (models.ParseResult, error) {
	var result models.ParseResult
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return models.ParseResult{}, fmt.Errorf("decode json: %w", err)
	}
	if err := normalizeResult(&result); err != nil {
		return models.ParseResult{}, err
	}
	return result, nil
}

func normalizeResult(result *models.ParseResult) error {
	if result.Errors == nil {
		result.Errors = []models.ParseError{}
	}
	if result.Data == nil {
		return nil
	}
	if result.Data.Signals == nil {
		result.Data.Signals = models.NewSignalIndex()
	}
	for i := range result.Data.Entries {
		e := &result.Data.Entries[i]
		v, err := normalizeValue(e.Value, e.SignalType)
		if err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, e.Key(), err)
		}
		e.Value = v
	}
	return nil
}

// normalizeValue maps decoder-specific number types back to the entry
// value domain.
func normalizeValue(v any, stype models.SignalType) (any, error) {
	switch stype {
	case models.SignalTypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case models.SignalTypeInteger:
		switch n := v.(type) {
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		case uint64:
			if n <= math.MaxInt64 {
				return int64(n), nil
			}
		case json.Number:
			if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
				return i, nil
			}
		}
	case models.SignalTypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) does not match type %q", v, v, stype)
}
