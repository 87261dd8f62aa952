package persistence

import (
	"bytes"
	"encoding/gob"
)

func init() {
	// State data is stored as interface payloads; register the types that
	// commonly flow through task results so gob can round-trip them.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register([]int{})
}

// encodeValue serializes an arbitrary Go value using encoding/gob.
// Callers must ensure that values are gob-encodable; custom result types
// need a gob.Register call on the application side.
func encodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Encode as interface{} so decoding into interface{} round-trips the
	// concrete type.
	iv := v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeValue reverses encodeValue. Empty input decodes to nil.
func decodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}
