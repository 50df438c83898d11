// Package filetable maps paths to local file ids and holds per-fid
// metadata, per spec §3/§4.3.
package filetable

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/segtree"
)

// GFID is a deterministic hash of a file's absolute, normalized path,
// stable across processes (§3).
type GFID uint64

// HashPath derives a GFID from an absolute path. Callers are expected to
// have already normalized the path (see internal/pathfs for Unicode
// normalization before hashing).
func HashPath(absPath string) GFID {
	sum := sha256.Sum256([]byte(absPath))
	return GFID(binary.LittleEndian.Uint64(sum[:8]))
}

// FID is the small local handle returned to the write/read paths.
type FID uint32

// Meta is the per-fid metadata record of §3. Invariants: LocalSize <=
// LogSize; once Laminated, only GlobalSize may change, and only once, at
// the lamination transition. Table hands out *Meta and does not check
// these itself; the write path, sync path and pathfs maintain them.
type Meta struct {
	GFID        GFID
	Path        string
	Mode        uint32
	Laminated   bool
	NeedsSync   bool
	LocalSize   int64
	LogSize     int64
	GlobalSize  int64
	IsDir       bool
	SegmentTree *segtree.Tree
}

// Table owns the path->fid mapping and the live Meta records. A fid exists
// exactly while its Meta is present.
type Table struct {
	mu      sync.RWMutex
	byPath  map[string]FID
	byGFID  map[GFID]FID
	records map[FID]*Meta
	next    FID
}

func New() *Table {
	return &Table{
		byPath:  make(map[string]FID),
		byGFID:  make(map[GFID]FID),
		records: make(map[FID]*Meta),
	}
}

// Lookup returns the fid for path, if one is live.
func (t *Table) Lookup(path string) (FID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fid, ok := t.byPath[path]
	return fid, ok
}

// Create allocates a new fid for path (O_CREAT or first write). Returns
// EXISTS if the path is already live.
func (t *Table) Create(path string, mode uint32, isDir bool) (FID, *Meta, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byPath[path]; ok {
		return 0, nil, bbfserr.New("filetable.create", bbfserr.Exists)
	}
	t.next++
	fid := t.next
	gfid := HashPath(path)
	m := &Meta{
		GFID:        gfid,
		Path:        path,
		Mode:        mode,
		IsDir:       isDir,
		SegmentTree: segtree.New(),
	}
	t.byPath[path] = fid
	t.byGFID[gfid] = fid
	t.records[fid] = m
	return fid, m, nil
}

// Get returns the Meta for a live fid.
func (t *Table) Get(fid FID) (*Meta, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.records[fid]
	return m, ok
}

// GetByGFID returns the fid and Meta for a live gfid, for callers that
// hold a gfid from a delegator message and need the local metadata.
func (t *Table) GetByGFID(g GFID) (FID, *Meta, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fid, ok := t.byGFID[g]
	if !ok {
		return 0, nil, false
	}
	return fid, t.records[fid], true
}

// Rename moves path's entry in place. Cross-mount rename is rejected by
// the caller (internal/pathfs) before reaching here; Rename only handles
// the in-mount case and deletes any existing dst atomically from the
// caller's viewpoint (§4.7, §8 scenario 6).
func (t *Table) Rename(src, dst string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	fid, ok := t.byPath[src]
	if !ok {
		return bbfserr.New("filetable.rename", bbfserr.NotFound)
	}
	if dstFid, ok := t.byPath[dst]; ok {
		if dstMeta, ok := t.records[dstFid]; ok {
			delete(t.byGFID, dstMeta.GFID)
		}
		delete(t.records, dstFid)
	}
	delete(t.byPath, src)
	t.byPath[dst] = fid
	t.records[fid].Path = dst
	return nil
}

// Unlink frees fid's metadata and segment tree, per §3 Lifecycles. Rejects
// directories; callers check IsDir via Get first for the ISDIR errno but
// Unlink itself enforces it defensively too.
func (t *Table) Unlink(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	fid, ok := t.byPath[path]
	if !ok {
		return bbfserr.New("filetable.unlink", bbfserr.NotFound)
	}
	m := t.records[fid]
	if m.IsDir {
		return bbfserr.New("filetable.unlink", bbfserr.IsDir)
	}
	m.SegmentTree.Destroy()
	delete(t.byPath, path)
	delete(t.byGFID, m.GFID)
	delete(t.records, fid)
	return nil
}

// RemoveDir frees fid's metadata for a directory entry, the rmdir
// counterpart to Unlink. Rejects non-directories; emptiness is the
// caller's (internal/pathfs) responsibility since only it can enumerate
// sibling paths under the mount.
func (t *Table) RemoveDir(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	fid, ok := t.byPath[path]
	if !ok {
		return bbfserr.New("filetable.rmdir", bbfserr.NotFound)
	}
	m := t.records[fid]
	if !m.IsDir {
		return bbfserr.New("filetable.rmdir", bbfserr.NotDir)
	}
	delete(t.byPath, path)
	delete(t.byGFID, m.GFID)
	delete(t.records, fid)
	return nil
}

// Paths returns a snapshot of every live path, used by mkdir/rmdir
// emptiness checks in internal/pathfs.
func (t *Table) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.byPath))
	for p := range t.byPath {
		out = append(out, p)
	}
	return out
}
