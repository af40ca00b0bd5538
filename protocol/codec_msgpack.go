package protocol

import "github.com/vmihailenco/msgpack/v5"

// MsgpackCodec encodes frames as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }
