package sentriq

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Encoder defines the interface for value serialization. The library uses it
// for cache-key derivation and for block records stored in Redis.
type Encoder interface {
	// Encode serializes a value to bytes.
	Encode(any) ([]byte, error)
	// Decode deserializes bytes to a value.
	Decode([]byte, any) error
}

// JSONEncoder is the default implementation of Encoder using JSON.
// It uses the standard library for encoding and sonic for decoding.
// Encoding must stay on the standard library: cache keys hash the encoded
// form, and encoding/json's sorted map keys make that deterministic.
type JSONEncoder struct{}

// Encode serializes a value to JSON using the standard library.
func (*JSONEncoder) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserializes JSON bytes using sonic.
func (*JSONEncoder) Decode(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// defaultEncoder is shared by components that need serialization but were
// not handed a custom Encoder.
var defaultEncoder Encoder = &JSONEncoder{}
