// Package wire implements the extent-vector serialization of spec §6: a
// length-prefixed flat buffer used to ship multi-read requests to the
// delegator. It's kept independent of internal/delegator's Extent type
// (callers convert at the boundary) so internal/delegator can import this
// package for its own wire encoding without an import cycle.
package wire

import (
	"encoding/binary"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/filetable"
)

const extentWireSize = 8 + 8 + 8 // gfid:u64, offset:u64, length:u64

// ExtentSpan is the wire-level mirror of delegator.Extent.
type ExtentSpan struct {
	GFID   filetable.GFID
	Offset uint64
	Length uint64
}

// EncodeExtents serializes spans as count, then count tuples of
// (gfid:u64, offset:u64, length:u64), little-endian, matching the
// client/delegator pair assumed throughout this module.
func EncodeExtents(spans []ExtentSpan) []byte {
	buf := make([]byte, 4+len(spans)*extentWireSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(spans)))
	off := 4
	for _, s := range spans {
		binary.LittleEndian.PutUint64(buf[off:], uint64(s.GFID))
		binary.LittleEndian.PutUint64(buf[off+8:], s.Offset)
		binary.LittleEndian.PutUint64(buf[off+16:], s.Length)
		off += extentWireSize
	}
	return buf
}

// DecodeExtents is the inverse of EncodeExtents.
func DecodeExtents(buf []byte) ([]ExtentSpan, error) {
	if len(buf) < 4 {
		return nil, bbfserr.New("wire.decodeextents", bbfserr.InvalidArg)
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	need := 4 + int(count)*extentWireSize
	if len(buf) < need {
		return nil, bbfserr.New("wire.decodeextents", bbfserr.InvalidArg)
	}
	out := make([]ExtentSpan, count)
	off := 4
	for i := range out {
		out[i] = ExtentSpan{
			GFID:   filetable.GFID(binary.LittleEndian.Uint64(buf[off:])),
			Offset: binary.LittleEndian.Uint64(buf[off+8:]),
			Length: binary.LittleEndian.Uint64(buf[off+16:]),
		}
		off += extentWireSize
	}
	return out, nil
}
