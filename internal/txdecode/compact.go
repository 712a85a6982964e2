package txdecode

import "errors"

// ErrShortBuffer is returned when a read would run past the end of input.
var ErrShortBuffer = errors.New("txdecode: short buffer")

// ReadCompactU16 reads the chain's compact-u16 encoding at buf[pos]:
// 1-3 bytes, 7 value bits per byte, continuation in the high bit.
// Returns the value and the number of bytes consumed.
func ReadCompactU16(buf []byte, pos int) (int, int, error) {
	var val, size int
	for {
		if pos+size >= len(buf) || pos+size < 0 {
			return 0, 0, ErrShortBuffer
		}
		b := buf[pos+size]
		val |= int(b&0x7f) << (size * 7)
		size++
		if b&0x80 == 0 {
			break
		}
		if size == 3 {
			return 0, 0, errors.New("txdecode: compact-u16 overlong")
		}
	}
	if val > 0xffff {
		return 0, 0, errors.New("txdecode: compact-u16 out of range")
	}
	return val, size, nil
}

// AppendCompactU16 appends the compact-u16 encoding of v to dst.
func AppendCompactU16(dst []byte, v uint16) []byte {
	rem := int(v)
	for {
		b := byte(rem & 0x7f)
		rem >>= 7
		if rem == 0 {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}
