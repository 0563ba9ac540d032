package manifest

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/qsfio/qsf/qsferr"
)

// streamConfigSchema and streamResultSchema give structural validation of
// decoded manifest bodies a concrete, testable boundary instead of a handful
// of ad hoc type assertions.
const streamConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "streamId", "filters"],
  "properties": {
    "type": {"const": "stream.config"},
    "streamId": {
      "type": "object",
      "required": ["f", "v"],
      "properties": {
        "f": {"enum": ["1B", "2B", "4B", "8B"]},
        "v": {"type": "string"}
      }
    },
    "combineId": {"type": "string"},
    "filters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {"type": {"type": "string"}}
      }
    }
  }
}`

const streamResultSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "streamId", "offset", "length", "filterResult"],
  "properties": {
    "type": {"const": "stream.result"},
    "streamId": {
      "type": "object",
      "required": ["f", "v"],
      "properties": {
        "f": {"enum": ["1B", "2B", "4B", "8B"]},
        "v": {"type": "string"}
      }
    },
    "offset": {"type": "integer", "minimum": 0},
    "length": {"type": "integer", "minimum": 0},
    "filterResult": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {"type": {"type": "string"}}
      }
    }
  }
}`

var (
	configLoader = gojsonschema.NewStringLoader(streamConfigSchema)
	resultLoader = gojsonschema.NewStringLoader(streamResultSchema)
)

// matchesSchema re-serializes raw (already decoded by a Serializer) to JSON
// and validates it against schema, regardless of which Serializer produced
// raw originally.
func matchesSchema(raw map[string]interface{}, schema gojsonschema.JSONLoader) (bool, error) {
	docBytes, err := json.Marshal(raw)
	if err != nil {
		return false, qsferr.Wrap(qsferr.ManifestDecode, err, "re-encode for schema validation")
	}
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(docBytes))
	if err != nil {
		return false, qsferr.Wrap(qsferr.ManifestDecode, err, "schema validation")
	}
	return result.Valid(), nil
}
