// Package bbfs is the top-level Client wiring named in §9 "Global
// state": the fd table, file table, log store, index buffer, and
// shared-memory reply region are process-wide, initialized at Mount and
// torn down at Close under one owning struct rather than ambient
// package-level globals.
package bbfs

import (
	"time"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/config"
	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/fdtable"
	"github.com/avogabo/bbfs/internal/filetable"
	"github.com/avogabo/bbfs/internal/indexbuf"
	"github.com/avogabo/bbfs/internal/logstore"
	"github.com/avogabo/bbfs/internal/metrics"
	"github.com/avogabo/bbfs/internal/pathfs"
	"github.com/avogabo/bbfs/internal/readpath"
	syncpath "github.com/avogabo/bbfs/internal/sync"
	"github.com/avogabo/bbfs/internal/writepath"
)

// Client owns every subsystem for one mount and is the single entry
// point application-facing POSIX intercept code (out of this module's
// scope per §1) would call into.
type Client struct {
	cfg config.Config

	Router *pathfs.Router
	Ops    *pathfs.Ops

	Files *filetable.Table
	FDs   *fdtable.Table
	Log   *logstore.Store

	IndexBuf  *indexbuf.Buffer
	WritePath *writepath.Path
	ReadPath  *readpath.Engine
	SyncPath  *syncpath.Path

	Del delegator.Delegator
	Shm *delegator.ShmRegion

	// Metrics is optional; set via SetMetrics before Mount's callers start
	// issuing I/O. nil leaves instrumentation disabled throughout.
	Metrics *metrics.Registry
}

// SetMetrics wires a Registry into every subsystem that accepts one. It
// does not touch the point-in-time gauges; RefreshGauges does. Call it once
// after Mount, before I/O starts.
func (c *Client) SetMetrics(reg *metrics.Registry) {
	c.Metrics = reg
	c.WritePath.Metrics = reg
	c.ReadPath.Metrics = reg
	c.SyncPath.Metrics = reg
}

// RefreshGauges updates the point-in-time gauges (fd slots in use, pending
// index-buffer entries) against the wired Registry. Nothing in this module
// calls it on a timer; the owner of the Client calls it as often as it
// wants fresh values. A no-op if SetMetrics was never called.
func (c *Client) RefreshGauges() {
	if c.Metrics == nil {
		return
	}
	c.Metrics.FDsInUse.Set(float64(c.FDs.InUse()))
	c.Metrics.IndexBufLen.Set(float64(c.IndexBuf.Len()))
}

// Mount wires every component per cfg and opens the shared-memory reply
// region, returning an owning Client. Close must be called to release the
// log store's spill file and the mmap'd region.
func Mount(cfg config.Config, del delegator.Delegator) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logstore.Open(logstore.Config{
		MemoryBytes:  cfg.LogStore.MemoryBytes,
		SpillDir:     cfg.LogStore.SpillDir,
		SpillMaxSize: cfg.LogStore.SpillMaxSize,
	})
	if err != nil {
		return nil, err
	}

	shm, err := delegator.OpenShmRegion(cfg.Delegator.ShmPath, cfg.Delegator.ShmSize)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	files := filetable.New()
	fds := fdtable.New(cfg.Mount.FDCapacity)
	buf := indexbuf.New()
	router := &pathfs.Router{MountPrefix: cfg.Mount.Prefix, FDLimit: cfg.Mount.FDLimit}

	sp := &syncpath.Path{Log: log, Files: files, IndexBuf: buf, Del: del, Flatten: cfg.Write.FlattenOnSync}

	return &Client{
		cfg:      cfg,
		Router:   router,
		Ops:      &pathfs.Ops{Router: router, Files: files},
		Files:    files,
		FDs:      fds,
		Log:      log,
		IndexBuf: buf,
		WritePath: &writepath.Path{
			Log:      log,
			Files:    files,
			IndexBuf: buf,
			IndexCap: cfg.Mount.IndexBufCap,
			Flush:    sp,
		},
		ReadPath: &readpath.Engine{
			Del:          del,
			Shm:          shm,
			SliceBytes:   cfg.Delegator.SliceBytes,
			MaxReadCnt:   cfg.MaxReadCnt,
			ReplyTimeout: time.Duration(cfg.Delegator.ReplyTimeoutMs) * time.Millisecond,
		},
		SyncPath: sp,
		Del:      del,
		Shm:      shm,
	}, nil
}

// Close tears down the log store and reply region. Per-fd implicit fsync
// on close is handled by CloseFD, since Close here is the mount-wide
// teardown, not a single fd close.
func (c *Client) Close() error {
	shmErr := c.Shm.Close()
	logErr := c.Log.Close()
	if shmErr != nil {
		return shmErr
	}
	return logErr
}

// Open resolves or creates path's fid and allocates an fd slot for it,
// implementing the open(O_CREAT) fid-creation rule of §3 Lifecycles.
func (c *Client) Open(path string, mode uint32, read, write, create, appendMode bool) (int, error) {
	norm, ok := c.Router.Owns(path)
	if !ok {
		return 0, bbfserr.New("bbfs.open", bbfserr.CrossDevice)
	}
	fid, ok := c.Files.Lookup(norm)
	if !ok {
		if !create {
			return 0, bbfserr.New("bbfs.open", bbfserr.NotFound)
		}
		var err error
		fid, _, err = c.Files.Create(norm, mode, false)
		if err != nil {
			return 0, err
		}
	}
	internal, err := c.FDs.Alloc(fdtable.Desc{FID: fid, Read: read, Write: write, Append: appendMode})
	if err != nil {
		return 0, err
	}
	return c.Router.ExternalFD(internal), nil
}

// CloseFD releases fd's slot, flushing a pending fsync first if the fd
// was opened for write (§3: "close ... triggers implicit fsync if opened
// for write").
func (c *Client) CloseFD(externalFD int) error {
	internal, ok := c.Router.InternalFD(externalFD)
	if !ok {
		return bbfserr.New("bbfs.close", bbfserr.BadFD)
	}
	desc, err := c.FDs.Get(internal)
	if err != nil {
		return err
	}
	if desc.Write {
		if err := c.SyncPath.Fsync(desc.FID); err != nil {
			return err
		}
	}
	return c.FDs.Free(internal)
}

func (c *Client) desc(externalFD int) (int, fdtable.Desc, error) {
	internal, ok := c.Router.InternalFD(externalFD)
	if !ok {
		return 0, fdtable.Desc{}, bbfserr.New("bbfs.fd", bbfserr.BadFD)
	}
	d, err := c.FDs.Get(internal)
	return internal, d, err
}

// Write implements write(fd,buf,count), persisting the advanced position
// back into the fd table.
func (c *Client) Write(externalFD int, buf []byte) (int, error) {
	internal, d, err := c.desc(externalFD)
	if err != nil {
		return 0, err
	}
	n, err := c.WritePath.Write(&d, buf)
	if err != nil {
		return 0, err
	}
	_ = c.FDs.Update(internal, d)
	return n, nil
}

// PWrite implements pwrite(fd,buf,offset): position is never touched.
func (c *Client) PWrite(externalFD int, buf []byte, offset int64) (int, error) {
	_, d, err := c.desc(externalFD)
	if err != nil {
		return 0, err
	}
	return c.WritePath.PWrite(&d, buf, offset)
}

// Fsync implements fsync(fd) against the fd's underlying fid.
func (c *Client) Fsync(externalFD int) error {
	_, d, err := c.desc(externalFD)
	if err != nil {
		return err
	}
	return c.SyncPath.Fsync(d.FID)
}

// Read implements read(fd,buf,count): a single-element read-list call,
// clamped to local_size for non-laminated files per the Open Question
// decision recorded in DESIGN.md, then advances pos.
func (c *Client) Read(externalFD int, buf []byte) (int, error) {
	internal, d, err := c.desc(externalFD)
	if err != nil {
		return 0, err
	}
	if !d.Read {
		return 0, bbfserr.New("bbfs.read", bbfserr.BadFD)
	}
	n, err := c.pread(d, d.Pos, buf)
	if err != nil {
		return 0, err
	}
	d.Pos += int64(n)
	_ = c.FDs.Update(internal, d)
	return n, nil
}

// PRead implements pread(fd,buf,count,offset): identical to Read but
// leaves pos untouched.
func (c *Client) PRead(externalFD int, buf []byte, offset int64) (int, error) {
	_, d, err := c.desc(externalFD)
	if err != nil {
		return 0, err
	}
	if !d.Read {
		return 0, bbfserr.New("bbfs.pread", bbfserr.BadFD)
	}
	return c.pread(d, offset, buf)
}

func (c *Client) pread(d fdtable.Desc, offset int64, buf []byte) (int, error) {
	meta, ok := c.Files.Get(d.FID)
	if !ok {
		return 0, bbfserr.New("bbfs.read", bbfserr.BadFD)
	}
	if meta.IsDir {
		return 0, bbfserr.New("bbfs.read", bbfserr.InvalidArg)
	}

	length := int64(len(buf))
	if !meta.Laminated {
		if offset >= meta.LocalSize {
			return 0, nil
		}
		if offset+length > meta.LocalSize {
			length = meta.LocalSize - offset
		}
	}
	if length <= 0 {
		return 0, nil
	}

	req := &readpath.ReadReq{GFID: meta.GFID, Offset: offset, Length: length, Buf: buf[:length]}
	if err := c.ReadPath.ReadMany([]*readpath.ReadReq{req}); err != nil {
		return 0, err
	}
	if req.ErrCode != bbfserr.Unknown {
		return 0, bbfserr.New("bbfs.read", req.ErrCode)
	}
	return int(length), nil
}
