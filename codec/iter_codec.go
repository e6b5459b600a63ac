package codec

import (
	jsoniter "github.com/json-iterator/go"
)

// Matches JSONCodec output: sorted map keys, no HTML escaping.
var iterJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// IterCodec uses json-iterator, a drop-in replacement for encoding/json.
// It avoids most of the reflection cost on hot frames (events, large results).
type IterCodec struct{}

func (c *IterCodec) Encode(v any) ([]byte, error) {
	return iterJSON.Marshal(v)
}

func (c *IterCodec) Decode(data []byte, v any) error {
	return iterJSON.Unmarshal(data, v)
}

func (c *IterCodec) Type() CodecType {
	return CodecTypeIter
}
