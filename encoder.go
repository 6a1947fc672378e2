package taskhive

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Encoder defines the interface for task record serialization.
type Encoder interface {
	// Encode serializes a value to bytes.
	Encode(any) ([]byte, error)
	// Decode deserializes bytes to a value.
	Decode([]byte, any) error
}

// sonicAPI decodes integer literals inside bags as int64, matching Bag normalization.
var sonicAPI = sonic.Config{UseInt64: true}.Froze()

// JSONEncoder is the default implementation of Encoder using JSON.
// It uses standard library for encoding and sonic for decoding.
type JSONEncoder struct{}

// Encode serializes a value to JSON using standard library.
func (*JSONEncoder) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserializes JSON bytes using sonic.
func (*JSONEncoder) Decode(data []byte, v any) error {
	return sonicAPI.Unmarshal(data, v)
}
