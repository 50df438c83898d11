// Package writepath implements spec §4.3: translating write(fd, pos, buf)
// into a log append, a segment-tree update, and an index-buffer append.
package writepath

import (
	"math"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/fdtable"
	"github.com/avogabo/bbfs/internal/filetable"
	"github.com/avogabo/bbfs/internal/indexbuf"
	"github.com/avogabo/bbfs/internal/logstore"
	"github.com/avogabo/bbfs/internal/metrics"
)

// Flusher is implemented by the sync component; writepath calls it when
// the index buffer fills up mid-write (§4.3 step 7).
type Flusher interface {
	Flush(fid filetable.FID) error
}

// Path wires the log store, file table, and index buffer together for
// the write call.
type Path struct {
	Log      *logstore.Store
	Files    *filetable.Table
	IndexBuf *indexbuf.Buffer
	IndexCap int
	Flush    Flusher

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Registry
}

func (p *Path) resolveWritable(op string, desc *fdtable.Desc) (*filetable.Meta, error) {
	if !desc.Write {
		return nil, bbfserr.New(op, bbfserr.BadFD)
	}
	meta, ok := p.Files.Get(desc.FID)
	if !ok {
		return nil, bbfserr.New(op, bbfserr.BadFD)
	}
	if meta.IsDir {
		return nil, bbfserr.New(op, bbfserr.InvalidArg)
	}
	if meta.Laminated {
		return nil, bbfserr.New(op, bbfserr.ReadOnly)
	}
	return meta, nil
}

// writeAt is the shared core of §4.3 steps 4-8, parameterized on the
// effective position so Write (append/pos-relative) and PWrite (explicit
// offset, pos untouched) can both drive it.
func (p *Path) writeAt(op string, fid filetable.FID, meta *filetable.Meta, pos int64, buf []byte) (int64, error) {
	count := int64(len(buf))
	if pos > math.MaxInt64-count {
		return 0, bbfserr.New(op, bbfserr.Overflow)
	}

	logOffset, err := p.Log.Append(buf)
	if err != nil {
		return 0, err
	}

	meta.SegmentTree.Add(pos, pos+count-1, logOffset)

	p.IndexBuf.Append(indexbuf.Entry{
		GFID:       meta.GFID,
		FileOffset: pos,
		LogOffset:  logOffset,
		Length:     count,
	})
	if p.IndexCap > 0 && p.IndexBuf.Len() >= p.IndexCap && p.Flush != nil {
		if err := p.Flush.Flush(fid); err != nil {
			return 0, err
		}
	}

	if pos+count > meta.LocalSize {
		meta.LocalSize = pos + count
	}
	meta.LogSize += count
	meta.NeedsSync = true

	if p.Metrics != nil {
		p.Metrics.WriteCalls.Inc()
		p.Metrics.WriteBytes.Add(float64(count))
	}
	return count, nil
}

// Write implements write(fd,buf,count), §4.3 steps 1-8.
func (p *Path) Write(desc *fdtable.Desc, buf []byte) (int, error) {
	meta, err := p.resolveWritable("writepath.write", desc)
	if err != nil {
		return 0, err
	}
	pos := desc.Pos
	if desc.Append {
		pos = meta.LocalSize
	}
	n, err := p.writeAt("writepath.write", desc.FID, meta, pos, buf)
	if err != nil {
		return 0, err
	}
	desc.Pos = pos + n
	return int(n), nil
}

// PWrite implements pwrite(fd,buf,offset): identical to Write except it
// never advances desc.Pos and always writes at the given offset (§4.3,
// §3 FileDesc: "pos is user-visible; not affected by pread/pwrite").
func (p *Path) PWrite(desc *fdtable.Desc, buf []byte, offset int64) (int, error) {
	meta, err := p.resolveWritable("writepath.pwrite", desc)
	if err != nil {
		return 0, err
	}
	n, err := p.writeAt("writepath.pwrite", desc.FID, meta, offset, buf)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
