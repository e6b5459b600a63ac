package codec

import "fmt"

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeIter CodecType = 1
)

// Codec turns wire messages into payload bytes and back. Both implementations
// produce the same JSON; they differ only in speed.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeIter {
		return &IterCodec{}
	}

	return &JSONCodec{}
}

// ParseCodecType maps a configuration name to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "json":
		return CodecTypeJSON, nil
	case "jsoniter":
		return CodecTypeIter, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", name)
	}
}
