package protocol

import "github.com/bytedance/sonic"

// JSONCodec encodes frames as JSON using sonic in std-compatible mode.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}

func (JSONCodec) Name() string { return CodecNameJSON }
