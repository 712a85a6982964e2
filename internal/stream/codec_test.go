package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryMessage_RoundTrip(t *testing.T) {
	in := &entryMessage{Slot: 346_789_123, Entries: []byte{1, 2, 3, 4, 5}}
	raw, err := in.marshalWire()
	require.NoError(t, err)

	var out entryMessage
	require.NoError(t, out.unmarshalWire(raw))
	assert.Equal(t, in.Slot, out.Slot)
	assert.Equal(t, in.Entries, out.Entries)
}

func TestEntryMessage_ZeroValues(t *testing.T) {
	raw, err := (&entryMessage{}).marshalWire()
	require.NoError(t, err)
	assert.Empty(t, raw)

	var out entryMessage
	require.NoError(t, out.unmarshalWire(nil))
	assert.Zero(t, out.Slot)
	assert.Empty(t, out.Entries)
}

func TestEntryMessage_SkipsUnknownFields(t *testing.T) {
	in := &entryMessage{Slot: 9, Entries: []byte{0xff}}
	raw, err := in.marshalWire()
	require.NoError(t, err)

	// Append an unknown varint field 7.
	raw = append(raw, 0x38, 0x2a)

	var out entryMessage
	require.NoError(t, out.unmarshalWire(raw))
	assert.Equal(t, uint64(9), out.Slot)
	assert.Equal(t, []byte{0xff}, out.Entries)
}

func TestSubscribeRequest_Empty(t *testing.T) {
	raw, err := subscribeEntriesRequest{}.marshalWire()
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestRawCodec_TypeChecks(t *testing.T) {
	c := rawCodec{}
	_, err := c.Marshal("wrong")
	assert.Error(t, err)
	assert.Error(t, c.Unmarshal(nil, 12))

	msg := &entryMessage{Slot: 1}
	raw, err := c.Marshal(msg)
	require.NoError(t, err)
	var out entryMessage
	require.NoError(t, c.Unmarshal(raw, &out))
	assert.Equal(t, uint64(1), out.Slot)
}
