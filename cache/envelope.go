package cache

import (
	"encoding"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/vmihailenco/msgpack/v5"
)

// Encoding names the payload format inside an envelope.
type Encoding string

// Envelope encodings.
const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

type envelope struct {
	Encoding Encoding `msgpack:"e"`
	Payload  []byte   `msgpack:"p"`
}

// encode wraps v in a tagged envelope.
func encode(v any) ([]byte, Encoding, error) {
	env := envelope{}
	if _, binary := v.(encoding.BinaryMarshaler); !binary {
		if b, err := sonic.ConfigStd.Marshal(v); err == nil {
			env.Encoding, env.Payload = EncodingJSON, b
		}
	}
	if env.Encoding == "" {
		b, err := msgpack.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("cache: encode %T: %w", v, err)
		}
		env.Encoding, env.Payload = EncodingMsgpack, b
	}
	out, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, "", fmt.Errorf("cache: encode envelope: %w", err)
	}
	return out, env.Encoding, nil
}

// decode unwraps an envelope into dst.
func decode(data []byte, dst any) (Encoding, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("cache: decode envelope: %w", err)
	}
	switch env.Encoding {
	case EncodingJSON:
		if err := sonic.ConfigStd.Unmarshal(env.Payload, dst); err != nil {
			return env.Encoding, fmt.Errorf("cache: decode json payload: %w", err)
		}
	case EncodingMsgpack:
		if err := msgpack.Unmarshal(env.Payload, dst); err != nil {
			return env.Encoding, fmt.Errorf("cache: decode msgpack payload: %w", err)
		}
	default:
		return env.Encoding, fmt.Errorf("cache: unknown encoding %q", env.Encoding)
	}
	return env.Encoding, nil
}
