package pathfs

import (
	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/filetable"
)

// MetaSource is the subset of delegator.Delegator that Stat needs.
type MetaSource interface {
	MetaGet(gfid filetable.GFID) (delegator.FileAttr, error)
}

// StatResult is the augmented attribute record of §4.8: delegator mode,
// locally-clamped size, and the debug rdev encoding.
type StatResult struct {
	GFID      filetable.GFID
	Mode      uint32
	Size      int64
	Rdev      uint64 // (log_size << 32) | (local_size & 0xFFFFFFFF)
	Laminated bool
}

// Stat implements §4.8: size is 0 for non-laminated files (no
// authoritative global size exists yet), global_size once laminated.
func (o *Ops) Stat(p string, del MetaSource) (StatResult, error) {
	norm, ok := o.Router.Owns(p)
	if !ok {
		return StatResult{}, bbfserr.New("pathfs.stat", bbfserr.CrossDevice)
	}
	fid, ok := o.Files.Lookup(norm)
	if !ok {
		return StatResult{}, bbfserr.New("pathfs.stat", bbfserr.NotFound)
	}
	meta, _ := o.Files.Get(fid)

	attr, err := del.MetaGet(meta.GFID)
	if err != nil {
		return StatResult{}, err
	}

	size := int64(0)
	if meta.Laminated {
		size = meta.GlobalSize
	}
	rdev := (uint64(meta.LogSize) << 32) | (uint64(meta.LocalSize) & 0xFFFFFFFF)

	return StatResult{
		GFID:      meta.GFID,
		Mode:      attr.Mode,
		Size:      size,
		Rdev:      rdev,
		Laminated: meta.Laminated,
	}, nil
}
