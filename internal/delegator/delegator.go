// Package delegator defines the abstract contracts of spec §4.9/§6: the
// RPC stubs a client issues to the co-resident delegator, and the
// shared-memory reply region state machine those RPCs fill in. Concrete
// wire transport is out of scope per spec §1 ("specified only through
// their interfaces"); this package provides the interface, a Client that
// implements it over a pluggable Transport (HTTPTransport being the one
// shipped here), and a real mmap-backed shared-memory region for the
// Delegator Transport component. The in-process reference server lives in
// internal/refdelegator.
package delegator

import "github.com/avogabo/bbfs/internal/filetable"

// FileAttr is the delegator's authoritative metadata record for a gfid.
type FileAttr struct {
	GFID       filetable.GFID
	Mode       uint32
	GlobalSize uint64
}

// Extent addresses one sub-request of a (possibly split) read (§4.5 step B).
type Extent struct {
	GFID   filetable.GFID
	Offset uint64
	Length uint64
}

// Delegator is the abstract contract of §6. MetaGet/FileSize/Sync/SetMeta
// are synchronous request/response RPCs. DispatchRead/DispatchMRead only
// trigger the delegator to begin producing into the shared-memory reply
// region (§4.5 step C) — callers consume the actual bytes from a
// *ShmRegion separately (step D), since the delegator is a
// single-producer writing asynchronously, not a call/return channel.
type Delegator interface {
	MetaGet(gfid filetable.GFID) (FileAttr, error)
	FileSize(gfid filetable.GFID) (uint64, error)
	Sync(gfid filetable.GFID, entries []SyncEntry) error
	DispatchRead(ext Extent) error
	DispatchMRead(exts []Extent) error
	SetMeta(attr FileAttr) error
}

// SyncEntry mirrors indexbuf.Entry without importing it, keeping this
// package's public contract free of internal package dependencies other
// than filetable's id types.
type SyncEntry struct {
	GFID       filetable.GFID
	FileOffset int64
	LogOffset  int64
	Length     int64
}

