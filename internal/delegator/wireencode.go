package delegator

import (
	"encoding/binary"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/filetable"
	"github.com/avogabo/bbfs/internal/wire"
)

// These helpers encode/decode the small fixed-shape payloads that cross
// the Transport boundary. Client uses the Encode* half to build requests
// and the Decode* half to read responses; a Transport's server side (see
// cmd/bbfsd's RPC adapter) uses the same pair in reverse, so the two ends
// never drift out of sync. The extent-vector format (used by mread, the
// only multi-extent call) is delegated to internal/wire rather than
// reimplemented here.

func EncodeGFID(g filetable.GFID) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(g))
	return buf
}

func DecodeGFID(buf []byte) (filetable.GFID, error) {
	if len(buf) < 8 {
		return 0, bbfserr.New("delegator.decodegfid", bbfserr.InvalidArg)
	}
	return filetable.GFID(binary.LittleEndian.Uint64(buf)), nil
}

func EncodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(buf []byte) uint64 {
	if len(buf) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(buf)
}

func EncodeFileAttr(a FileAttr) []byte {
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(a.GFID))
	binary.LittleEndian.PutUint32(buf[8:12], a.Mode)
	binary.LittleEndian.PutUint64(buf[12:20], a.GlobalSize)
	return buf
}

func DecodeFileAttr(buf []byte) (FileAttr, error) {
	if len(buf) < 20 {
		return FileAttr{}, bbfserr.New("delegator.decodefileattr", bbfserr.InvalidArg)
	}
	return FileAttr{
		GFID:       filetable.GFID(binary.LittleEndian.Uint64(buf[0:8])),
		Mode:       binary.LittleEndian.Uint32(buf[8:12]),
		GlobalSize: binary.LittleEndian.Uint64(buf[12:20]),
	}, nil
}

func EncodeExtent(e Extent) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.GFID))
	binary.LittleEndian.PutUint64(buf[8:16], e.Offset)
	binary.LittleEndian.PutUint64(buf[16:24], e.Length)
	return buf
}

func DecodeExtent(buf []byte) (Extent, error) {
	if len(buf) < 24 {
		return Extent{}, bbfserr.New("delegator.decodeextent", bbfserr.InvalidArg)
	}
	return Extent{
		GFID:   filetable.GFID(binary.LittleEndian.Uint64(buf[0:8])),
		Offset: binary.LittleEndian.Uint64(buf[8:16]),
		Length: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

func EncodeExtentVector(exts []Extent) []byte {
	spans := make([]wire.ExtentSpan, len(exts))
	for i, e := range exts {
		spans[i] = wire.ExtentSpan{GFID: e.GFID, Offset: e.Offset, Length: e.Length}
	}
	return wire.EncodeExtents(spans)
}

func DecodeExtentVector(buf []byte) ([]Extent, error) {
	spans, err := wire.DecodeExtents(buf)
	if err != nil {
		return nil, err
	}
	exts := make([]Extent, len(spans))
	for i, s := range spans {
		exts[i] = Extent{GFID: s.GFID, Offset: s.Offset, Length: s.Length}
	}
	return exts, nil
}

func EncodeSyncEntries(gfid filetable.GFID, entries []SyncEntry) []byte {
	buf := make([]byte, 8+4+len(entries)*32)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(gfid))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(entries)))
	off := 12
	for _, e := range entries {
		binary.LittleEndian.PutUint64(buf[off:], uint64(e.GFID))
		binary.LittleEndian.PutUint64(buf[off+8:], uint64(e.FileOffset))
		binary.LittleEndian.PutUint64(buf[off+16:], uint64(e.LogOffset))
		binary.LittleEndian.PutUint64(buf[off+24:], uint64(e.Length))
		off += 32
	}
	return buf
}

func DecodeSyncEntries(buf []byte) (filetable.GFID, []SyncEntry, error) {
	if len(buf) < 12 {
		return 0, nil, bbfserr.New("delegator.decodesyncentries", bbfserr.InvalidArg)
	}
	gfid := filetable.GFID(binary.LittleEndian.Uint64(buf[0:8]))
	count := binary.LittleEndian.Uint32(buf[8:12])
	need := 12 + int(count)*32
	if len(buf) < need {
		return 0, nil, bbfserr.New("delegator.decodesyncentries", bbfserr.InvalidArg)
	}
	entries := make([]SyncEntry, count)
	off := 12
	for i := range entries {
		entries[i] = SyncEntry{
			GFID:       filetable.GFID(binary.LittleEndian.Uint64(buf[off:])),
			FileOffset: int64(binary.LittleEndian.Uint64(buf[off+8:])),
			LogOffset:  int64(binary.LittleEndian.Uint64(buf[off+16:])),
			Length:     int64(binary.LittleEndian.Uint64(buf[off+24:])),
		}
		off += 32
	}
	return gfid, entries, nil
}
