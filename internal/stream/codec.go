package stream

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The upstream proto has exactly two messages and no published Go binding,
// so the codec is written against the proto wire format directly.
//
//	message SubscribeEntriesRequest {}
//	message Entry { uint64 slot = 1; bytes entries = 2; }

// wireMessage is implemented by the stream's message types.
type wireMessage interface {
	marshalWire() ([]byte, error)
	unmarshalWire(data []byte) error
}

// subscribeEntriesRequest is the empty subscribe request.
type subscribeEntriesRequest struct{}

func (subscribeEntriesRequest) marshalWire() ([]byte, error) { return nil, nil }
func (subscribeEntriesRequest) unmarshalWire([]byte) error   { return nil }

// entryMessage is one streamed slot of entries.
type entryMessage struct {
	Slot    uint64
	Entries []byte
}

func (m *entryMessage) marshalWire() ([]byte, error) {
	var buf []byte
	if m.Slot != 0 {
		buf = protowire.AppendTag(buf, 1, protowire.VarintType)
		buf = protowire.AppendVarint(buf, m.Slot)
	}
	if len(m.Entries) > 0 {
		buf = protowire.AppendTag(buf, 2, protowire.BytesType)
		buf = protowire.AppendBytes(buf, m.Entries)
	}
	return buf, nil
}

func (m *entryMessage) unmarshalWire(data []byte) error {
	m.Slot = 0
	m.Entries = nil
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Slot = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Entries = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// rawCodec marshals wireMessage values. Registered per-call via ForceCodec.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("stream codec: unsupported type %T", v)
	}
	return m.marshalWire()
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("stream codec: unsupported type %T", v)
	}
	return m.unmarshalWire(data)
}

func (rawCodec) Name() string { return "shredstream-raw" }
