package stream

// Frame is one shred-stream message: the slot and its serialized entries.
type Frame struct {
	Slot    uint64
	Payload []byte
}
