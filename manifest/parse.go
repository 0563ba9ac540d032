package manifest

import (
	"encoding/json"

	"github.com/qsfio/qsf/qsferr"
	"github.com/qsfio/qsf/varint"
)

// Parse classifies an already-decoded generic manifest body (the output of
// a Serializer.Decode call) into a StreamConfigRecord or StreamResultRecord.
// If raw doesn't structurally match either known schema, it returns an
// UnknownManifestShape error; this is non-fatal and the caller should
// forward the raw frame unchanged rather than abort.
func Parse(raw map[string]interface{}) (interface{}, error) {
	switch stringField(raw, "type") {
	case RecordStreamConfig:
		ok, err := matchesSchema(raw, configLoader)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, qsferr.New(qsferr.UnknownManifestShape, "stream.config does not match schema")
		}
		rec, err := decodeInto[StreamConfigRecord](raw)
		if err != nil {
			return nil, err
		}
		if !varint.IsWellFormed(rec.StreamID) {
			return nil, qsferr.New(qsferr.UnknownManifestShape, "stream.config streamId is not a well-formed varint object")
		}
		return rec, nil
	case RecordStreamResult:
		ok, err := matchesSchema(raw, resultLoader)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, qsferr.New(qsferr.UnknownManifestShape, "stream.result does not match schema")
		}
		rec, err := decodeInto[StreamResultRecord](raw)
		if err != nil {
			return nil, err
		}
		if !varint.IsWellFormed(rec.StreamID) {
			return nil, qsferr.New(qsferr.UnknownManifestShape, "stream.result streamId is not a well-formed varint object")
		}
		return rec, nil
	default:
		return nil, qsferr.New(qsferr.UnknownManifestShape, "unrecognized manifest record type %q", stringField(raw, "type"))
	}
}

// decodeInto maps an already schema-validated generic body into a concrete
// record type via a JSON round trip, since both StreamConfigRecord and
// StreamResultRecord carry `json` struct tags describing the same shape
// every Serializer implementation normalizes to.
func decodeInto[T any](raw map[string]interface{}) (T, error) {
	var zero T
	b, err := json.Marshal(raw)
	if err != nil {
		return zero, qsferr.Wrap(qsferr.ManifestDecode, err, "re-encode manifest body")
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, qsferr.Wrap(qsferr.ManifestDecode, err, "decode manifest body")
	}
	return out, nil
}
