package manifest

import (
	"encoding/json"
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"

	"github.com/qsfio/qsf/qsferr"
)

// Serializer is the pluggable byte codec for manifest record bodies.
// Implementations must be lossless for the manifest record schemas.
type Serializer interface {
	Encode(v interface{}) ([]byte, error)
	// Decode parses data into a generic field map, the shape Parse expects.
	Decode(data []byte) (map[string]interface{}, error)
}

// JSONSerializer is the default manifest serializer: UTF-8 JSON.
type JSONSerializer struct{}

func (JSONSerializer) Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, qsferr.Wrap(qsferr.ManifestDecode, err, "json encode")
	}
	return b, nil
}

func (JSONSerializer) Decode(data []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, qsferr.Wrap(qsferr.ManifestDecode, err, "json decode")
	}
	return m, nil
}

// CBORSerializer is an alternate manifest serializer. It demonstrates that
// the manifest serializer boundary is genuinely pluggable, not JSON-only.
type CBORSerializer struct{}

func (CBORSerializer) Encode(v interface{}) ([]byte, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, qsferr.Wrap(qsferr.ManifestDecode, err, "cbor encode")
	}
	return b, nil
}

// cborDecMode forces every map cbor decodes into an interface{} destination
// — not just the top-level one passed to Unmarshal — to come back as
// map[string]interface{}. Without this, fxamacker/cbor's default decodes
// nested maps (e.g. each entry of a "filters" array) as
// map[interface{}]interface{}, which downstream field access and the
// re-encode-to-JSON path in Parse can't handle; this keeps CBORSerializer's
// output shape identical to JSONSerializer's regardless of nesting depth.
var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{MapType: reflect.TypeOf(map[string]interface{}{})}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

func (CBORSerializer) Decode(data []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := cborDecMode.Unmarshal(data, &m); err != nil {
		return nil, qsferr.Wrap(qsferr.ManifestDecode, err, "cbor decode")
	}
	return m, nil
}
