// Package manifest defines the typed manifest records carried inside
// MANIFEST_ENTRY frames and the pluggable byte serializer they are encoded
// with.
package manifest

import (
	"github.com/qsfio/qsf/varint"
)

// FilterConfig is an open-world tagged variant: any record with a string
// "type" discriminant is a valid filter config, and unknown shapes round
// trip opaquely as a plain map.
type FilterConfig map[string]interface{}

// FilterResult mirrors FilterConfig's tagging rule for encoder results.
type FilterResult map[string]interface{}

// Type returns the "type" discriminant, or "" if missing/not a string.
func (c FilterConfig) Type() string { return stringField(c, "type") }

// Type returns the "type" discriminant, or "" if missing/not a string.
func (r FilterResult) Type() string { return stringField(r, "type") }

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Record type discriminants.
const (
	RecordStreamConfig = "stream.config"
	RecordStreamResult = "stream.result"
)

// StreamConfigRecord is emitted by the writer right before a stream's
// STREAM_HEADER frame, declaring the encode pipeline a reader must resolve
// decoders for.
type StreamConfigRecord struct {
	Type      string         `json:"type" cbor:"type"`
	StreamID  varint.Object  `json:"streamId" cbor:"streamId"`
	CombineID string         `json:"combineId,omitempty" cbor:"combineId,omitempty"`
	Filters   []FilterConfig `json:"filters" cbor:"filters"`
}

// StreamResultRecord is emitted by the writer right after a stream's
// STREAM_TRAILER frame, carrying each encoder's terminal result.
type StreamResultRecord struct {
	Type         string         `json:"type" cbor:"type"`
	StreamID     varint.Object  `json:"streamId" cbor:"streamId"`
	Offset       uint64         `json:"offset" cbor:"offset"`
	Length       uint64         `json:"length" cbor:"length"`
	FilterResult []FilterResult `json:"filterResult" cbor:"filterResult"`
}

// NewStreamConfigRecord builds a StreamConfigRecord for streamID.
func NewStreamConfigRecord(streamID uint64, combineID string, filters []FilterConfig) StreamConfigRecord {
	return StreamConfigRecord{
		Type:      RecordStreamConfig,
		StreamID:  varint.ToObject(streamID),
		CombineID: combineID,
		Filters:   filters,
	}
}

// NewStreamResultRecord builds a StreamResultRecord for streamID.
func NewStreamResultRecord(streamID, offset, length uint64, results []FilterResult) StreamResultRecord {
	return StreamResultRecord{
		Type:         RecordStreamResult,
		StreamID:     varint.ToObject(streamID),
		Offset:       offset,
		Length:       length,
		FilterResult: results,
	}
}
