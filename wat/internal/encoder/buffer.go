package encoder

import (
	"encoding/binary"
)

// Buffer accumulates encoded bytes.
type Buffer struct {
	Bytes []byte
}

func (b *Buffer) AppendByte(v byte) {
	b.Bytes = append(b.Bytes, v)
}

func (b *Buffer) WriteBytes(v []byte) {
	b.Bytes = append(b.Bytes, v...)
}

// WriteU32 writes unsigned LEB128 encoding.
func (b *Buffer) WriteU32(v uint32) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			byt |= 0x80
		}
		b.AppendByte(byt)
		if v == 0 {
			break
		}
	}
}

// WriteI32 writes signed LEB128 encoding.
func (b *Buffer) WriteI32(v int32) {
	b.WriteI64(int64(v))
}

// WriteI64 writes signed LEB128 encoding.
func (b *Buffer) WriteI64(v int64) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && byt&0x40 == 0) || (v == -1 && byt&0x40 != 0) {
			b.AppendByte(byt)
			break
		}
		b.AppendByte(byt | 0x80)
	}
}

// WriteI33 writes a signed 33-bit LEB128 block type index.
func (b *Buffer) WriteI33(v int64) {
	b.WriteI64(v)
}

// WriteF32 writes the IEEE 754 bit pattern little-endian.
func (b *Buffer) WriteF32(bits uint32) {
	b.Bytes = binary.LittleEndian.AppendUint32(b.Bytes, bits)
}

// WriteF64 writes the IEEE 754 bit pattern little-endian.
func (b *Buffer) WriteF64(bits uint64) {
	b.Bytes = binary.LittleEndian.AppendUint64(b.Bytes, bits)
}

// WriteLimits writes a limits flag followed by min and optional max.
func (b *Buffer) WriteLimits(lo uint32, hi *uint32) {
	if hi != nil {
		b.AppendByte(0x01)
		b.WriteU32(lo)
		b.WriteU32(*hi)
	} else {
		b.AppendByte(0x00)
		b.WriteU32(lo)
	}
}
