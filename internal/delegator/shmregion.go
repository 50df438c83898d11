package delegator

import (
	"encoding/binary"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/avogabo/bbfs/internal/bbfserr"
)

// Reply region states (§6).
const (
	StateEmpty        uint32 = 0
	StateFilled       uint32 = 1
	StateDataComplete uint32 = 2
)

const headerSize = 8 // {state: u32, meta_count: u32}
const replyHeaderSize = 8 + 8 + 8 + 4 + 4 /* gfid, offset, length, errcode, pad */

// ReplyHeader mirrors the wire header preceding each payload in the
// region (§6).
type ReplyHeader struct {
	GFID    uint64
	Offset  uint64
	Length  uint64
	ErrCode int32
}

// ShmRegion is the mmap-backed reply region shared between the delegator
// (producer) and this client (consumer). The state word is the sole
// synchronization point (§5): it acts as an acquire/release fence between
// delegator-written bytes and client-visible payload.
type ShmRegion struct {
	file *os.File
	buf  []byte
}

// OpenShmRegion maps (and creates, if needed) the backing file at path,
// sized to size bytes.
func OpenShmRegion(path string, size int64) (*ShmRegion, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, bbfserr.Wrap("shmregion.open", bbfserr.IOError, err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, bbfserr.Wrap("shmregion.open", bbfserr.IOError, err)
	}
	buf, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, bbfserr.Wrap("shmregion.open", bbfserr.IOError, err)
	}
	return &ShmRegion{file: f, buf: buf}, nil
}

func (r *ShmRegion) Close() error {
	if err := unix.Munmap(r.buf); err != nil {
		_ = r.file.Close()
		return bbfserr.Wrap("shmregion.close", bbfserr.IOError, err)
	}
	return r.file.Close()
}

func (r *ShmRegion) statePtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&r.buf[0]))
}

// state performs an atomic acquire-style load of the region's state word.
func (r *ShmRegion) state() uint32 {
	return atomic.LoadUint32(r.statePtr())
}

// setState performs an atomic release-style store.
func (r *ShmRegion) setState(s uint32) {
	atomic.StoreUint32(r.statePtr(), s)
}

func (r *ShmRegion) metaCount() uint32 {
	return binary.LittleEndian.Uint32(r.buf[4:8])
}

// Reset marks the region EMPTY, allowing the delegator to refill it. Every
// read-path entry must call this on every exit path (success, error,
// timeout) per §9 "Scoped resources".
func (r *ShmRegion) Reset() {
	r.setState(StateEmpty)
}

// WaitFilled blocks until the region's state transitions away from EMPTY,
// or timeout elapses. Implemented as a short poll loop, per §5's "periodic
// memory-read of the flag with short sleeps" option.
func (r *ShmRegion) WaitFilled(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if s := r.state(); s != StateEmpty {
			return nil
		}
		if time.Now().After(deadline) {
			return bbfserr.New("shmregion.waitfilled", bbfserr.ShmemTimeout)
		}
		time.Sleep(50 * time.Microsecond)
	}
}

// Replies decodes every {ReplyHeader, payload} pair currently in the
// region, assuming the caller has already observed a non-EMPTY state (the
// acquire fence pairs with the producer's release store into State).
func (r *ShmRegion) Replies() ([]DecodedReply, error) {
	count := r.metaCount()
	out := make([]DecodedReply, 0, count)
	off := headerSize
	for i := uint32(0); i < count; i++ {
		if off+replyHeaderSize > len(r.buf) {
			return nil, bbfserr.New("shmregion.replies", bbfserr.IOError)
		}
		h := ReplyHeader{
			GFID:    binary.LittleEndian.Uint64(r.buf[off:]),
			Offset:  binary.LittleEndian.Uint64(r.buf[off+8:]),
			Length:  binary.LittleEndian.Uint64(r.buf[off+16:]),
			ErrCode: int32(binary.LittleEndian.Uint32(r.buf[off+24:])),
		}
		off += replyHeaderSize
		payload := make([]byte, h.Length)
		if h.ErrCode == 0 {
			if off+int(h.Length) > len(r.buf) {
				return nil, bbfserr.New("shmregion.replies", bbfserr.IOError)
			}
			copy(payload, r.buf[off:off+int(h.Length)])
			off += int(h.Length)
		}
		out = append(out, DecodedReply{Header: h, Payload: payload})
	}
	return out, nil
}

// DecodedReply is one {header, payload} pair read out of the region.
type DecodedReply struct {
	Header  ReplyHeader
	Payload []byte
}

// WriteReplies is the producer-side counterpart, used by the in-process
// test delegator (and by cmd/bbfsd) to fill the region before flipping
// State to FILLED or DATA_COMPLETE.
func (r *ShmRegion) WriteReplies(replies []DecodedReply, complete bool) error {
	off := headerSize
	for _, rep := range replies {
		if off+replyHeaderSize+len(rep.Payload) > len(r.buf) {
			return bbfserr.New("shmregion.writereplies", bbfserr.OutOfMemory)
		}
		binary.LittleEndian.PutUint64(r.buf[off:], rep.Header.GFID)
		binary.LittleEndian.PutUint64(r.buf[off+8:], rep.Header.Offset)
		binary.LittleEndian.PutUint64(r.buf[off+16:], rep.Header.Length)
		binary.LittleEndian.PutUint32(r.buf[off+24:], uint32(rep.Header.ErrCode))
		off += replyHeaderSize
		if rep.Header.ErrCode == 0 {
			copy(r.buf[off:], rep.Payload)
			off += len(rep.Payload)
		}
	}
	binary.LittleEndian.PutUint32(r.buf[4:8], uint32(len(replies)))
	if complete {
		r.setState(StateDataComplete)
	} else {
		r.setState(StateFilled)
	}
	return nil
}

// IsDataComplete reports whether the region's current state is
// DATA_COMPLETE, the terminal state of the reply consumption loop
// (§4.5 step D).
func (r *ShmRegion) IsDataComplete() bool {
	return r.state() == StateDataComplete
}
