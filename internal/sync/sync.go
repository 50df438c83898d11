// Package sync implements spec §4.6: the fsync flush path and the
// one-way lamination state transition. Named sync (not fsync) to match
// the component name in the spec; callers alias the import where the
// stdlib sync package is also needed in the same file.
package sync

import (
	"fmt"
	"time"

	xsync "golang.org/x/sync/singleflight"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/filetable"
	"github.com/avogabo/bbfs/internal/indexbuf"
	"github.com/avogabo/bbfs/internal/logstore"
	"github.com/avogabo/bbfs/internal/metrics"
)

// Path drives fsync and lamination against the shared log store, file
// table, index buffer, and delegator. One Path instance is shared by
// every open file, mirroring the single shared IndexBuf.
type Path struct {
	Log      *logstore.Store
	Files    *filetable.Table
	IndexBuf *indexbuf.Buffer
	Del      delegator.Delegator

	// Flatten enables flatten-writes mode (§4.6 step 2): replace the
	// pending index entries for a file with one entry per live segment
	// before shipping, collapsing any overlapping partial writes into
	// their final coalesced form.
	Flatten bool

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Registry

	sf xsync.Group
}

// Flush implements writepath.Flusher, letting the write path trigger a
// sync mid-write when the index buffer fills past its cap (§4.3 step 7).
func (p *Path) Flush(fid filetable.FID) error {
	return p.Fsync(fid)
}

// Fsync implements §4.6's fsync algorithm. No-op if the file has nothing
// outstanding; otherwise spill-syncs, optionally flattens, ships the
// file's pending entries to the delegator, and clears needs_sync only on
// success — a failed RPC leaves the entries in place so a later fsync can
// retry.
func (p *Path) Fsync(fid filetable.FID) error {
	meta, ok := p.Files.Get(fid)
	if !ok {
		return bbfserr.New("sync.fsync", bbfserr.BadFD)
	}
	if !meta.NeedsSync {
		return nil
	}

	_, err, _ := p.sf.Do(fmt.Sprintf("fsync:%d", meta.GFID), func() (any, error) {
		if p.Log != nil {
			if err := p.Log.Sync(); err != nil {
				return nil, err
			}
		}

		if p.Flatten {
			meta.SegmentTree.RLock()
			segs := meta.SegmentTree.Iter()
			meta.SegmentTree.RUnlock()

			flattened := make([]indexbuf.Entry, len(segs))
			for i, s := range segs {
				flattened[i] = indexbuf.Entry{
					GFID:       meta.GFID,
					FileOffset: s.Start,
					LogOffset:  s.LogOffset,
					Length:     s.Len(),
				}
			}
			p.IndexBuf.ExtractGFID(meta.GFID) // drop whatever was pending; flattened form replaces it
			for _, e := range flattened {
				p.IndexBuf.Append(e)
			}
		}

		pending := p.IndexBuf.ExtractGFID(meta.GFID)
		if len(pending) == 0 {
			meta.NeedsSync = false
			return nil, nil
		}

		entries := make([]delegator.SyncEntry, len(pending))
		for i, e := range pending {
			entries[i] = delegator.SyncEntry{
				GFID:       e.GFID,
				FileOffset: e.FileOffset,
				LogOffset:  e.LogOffset,
				Length:     e.Length,
			}
		}
		start := time.Now()
		err := p.Del.Sync(meta.GFID, entries)
		if p.Metrics != nil {
			p.Metrics.SyncLatency.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			// Put the entries back; the file stays dirty for a retry.
			for _, e := range pending {
				p.IndexBuf.Append(e)
			}
			if p.Metrics != nil {
				p.Metrics.SyncFailures.Inc()
			}
			return nil, err
		}
		meta.NeedsSync = false
		if p.Flatten {
			// Post-flush clear: the shipped entries now describe these
			// segments, so the next flattened sync covers only new writes.
			meta.SegmentTree.Clear()
		}
		return nil, nil
	})
	return err
}

// Laminate implements the chmod-triggered transition of §4.6: fsync first
// (a lamination must not drop unsynced bytes), fetch the authoritative
// global size, then freeze the file. Laminate is idempotent; laminating
// an already-laminated file is a no-op, matching "no field may change"
// once frozen.
func (p *Path) Laminate(fid filetable.FID) error {
	meta, ok := p.Files.Get(fid)
	if !ok {
		return bbfserr.New("sync.laminate", bbfserr.BadFD)
	}
	if meta.Laminated {
		return nil
	}
	if meta.IsDir {
		return bbfserr.New("sync.laminate", bbfserr.IsDir)
	}
	if err := p.Fsync(fid); err != nil {
		return err
	}
	size, err := p.Del.FileSize(meta.GFID)
	if err != nil {
		return err
	}
	meta.GlobalSize = int64(size)
	meta.Laminated = true
	if p.Metrics != nil {
		p.Metrics.Laminations.Inc()
	}
	return nil
}
