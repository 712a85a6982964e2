package jito

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Searcher messages encoded against the proto wire format; only the fields
// the engine touches are modeled.
//
//	message GetTipAccountsRequest {}
//	message GetTipAccountsResponse { repeated string accounts = 1; }
//	message Packet { bytes data = 1; }
//	message Bundle { repeated Packet packets = 2; }
//	message SendBundleRequest { Bundle bundle = 1; }
//	message SendBundleResponse { string uuid = 1; }

type wireMessage interface {
	marshalWire() ([]byte, error)
	unmarshalWire(data []byte) error
}

type getTipAccountsRequest struct{}

func (getTipAccountsRequest) marshalWire() ([]byte, error) { return nil, nil }
func (getTipAccountsRequest) unmarshalWire([]byte) error   { return nil }

type getTipAccountsResponse struct {
	Accounts []string
}

func (m *getTipAccountsResponse) marshalWire() ([]byte, error) {
	var buf []byte
	for _, a := range m.Accounts {
		buf = protowire.AppendTag(buf, 1, protowire.BytesType)
		buf = protowire.AppendString(buf, a)
	}
	return buf, nil
}

func (m *getTipAccountsResponse) unmarshalWire(data []byte) error {
	m.Accounts = nil
	return walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) error {
		if num == 1 && typ == protowire.BytesType {
			m.Accounts = append(m.Accounts, string(field))
		}
		return nil
	})
}

type sendBundleRequest struct {
	Transactions [][]byte
}

func (m *sendBundleRequest) marshalWire() ([]byte, error) {
	var bundle []byte
	for _, tx := range m.Transactions {
		var packet []byte
		packet = protowire.AppendTag(packet, 1, protowire.BytesType)
		packet = protowire.AppendBytes(packet, tx)

		bundle = protowire.AppendTag(bundle, 2, protowire.BytesType)
		bundle = protowire.AppendBytes(bundle, packet)
	}

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, bundle)
	return buf, nil
}

func (m *sendBundleRequest) unmarshalWire([]byte) error {
	return fmt.Errorf("jito codec: sendBundleRequest is send-only")
}

type sendBundleResponse struct {
	UUID string
}

func (m *sendBundleResponse) marshalWire() ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendString(buf, m.UUID)
	return buf, nil
}

func (m *sendBundleResponse) unmarshalWire(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, field []byte) error {
		if num == 1 && typ == protowire.BytesType {
			m.UUID = string(field)
		}
		return nil
	})
}

// walkFields iterates top-level fields, handing length-delimited payloads
// to fn and skipping everything else.
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, field []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, v); err != nil {
				return err
			}
			data = data[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
	}
	return nil
}

// rawCodec marshals wireMessage values. Registered per-call via ForceCodec.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("jito codec: unsupported type %T", v)
	}
	return m.marshalWire()
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("jito codec: unsupported type %T", v)
	}
	return m.unmarshalWire(data)
}

func (rawCodec) Name() string { return "jito-searcher-raw" }
