package fusefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/avogabo/bbfs/internal/bbfs"
	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/config"
	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/filetable"
)

// fakeDelegator mirrors internal/bbfs's own test delegator: it resolves
// read replies straight out of the client's log store via the shared shm
// region, so ReadAll exercises the real dispatch/consume path.
type fakeDelegator struct {
	c *bbfs.Client
}

func (f *fakeDelegator) MetaGet(filetable.GFID) (delegator.FileAttr, error) {
	return delegator.FileAttr{}, nil
}
func (f *fakeDelegator) FileSize(filetable.GFID) (uint64, error)          { return 0, nil }
func (f *fakeDelegator) SetMeta(delegator.FileAttr) error                 { return nil }
func (f *fakeDelegator) Sync(filetable.GFID, []delegator.SyncEntry) error { return nil }

func (f *fakeDelegator) dispatch(exts []delegator.Extent) error {
	replies := make([]delegator.DecodedReply, len(exts))
	for i, e := range exts {
		b, err := resolveExtent(f.c, e)
		if err != nil {
			return err
		}
		replies[i] = delegator.DecodedReply{
			Header:  delegator.ReplyHeader{GFID: uint64(e.GFID), Offset: e.Offset, Length: e.Length},
			Payload: b,
		}
	}
	return f.c.Shm.WriteReplies(replies, true)
}

func resolveExtent(c *bbfs.Client, e delegator.Extent) ([]byte, error) {
	_, meta, ok := c.Files.GetByGFID(e.GFID)
	if !ok {
		return nil, bbfserr.New("test.resolve", bbfserr.NotFound)
	}
	meta.SegmentTree.RLock()
	segs := meta.SegmentTree.Iter()
	meta.SegmentTree.RUnlock()

	out := make([]byte, e.Length)
	for _, s := range segs {
		lo := int64(e.Offset)
		hi := lo + int64(e.Length) - 1
		if s.End < lo || s.Start > hi {
			continue
		}
		start := s.Start
		if start < lo {
			start = lo
		}
		end := s.End
		if end > hi {
			end = hi
		}
		logOff := s.LogOffset + (start - s.Start)
		b, err := c.Log.Read(logOff, end-start+1)
		if err != nil {
			return nil, err
		}
		copy(out[start-lo:], b)
	}
	return out, nil
}

func (f *fakeDelegator) DispatchRead(ext delegator.Extent) error {
	return f.dispatch([]delegator.Extent{ext})
}
func (f *fakeDelegator) DispatchMRead(exts []delegator.Extent) error {
	return f.dispatch(exts)
}

func newTestClient(t *testing.T) *bbfs.Client {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.LogStore.SpillDir = filepath.Join(dir, "spill")
	cfg.Delegator.ShmPath = filepath.Join(dir, "shm")
	cfg.Delegator.ShmSize = 1 << 20
	cfg.Delegator.ReplyTimeoutMs = 1000

	fd := &fakeDelegator{}
	c, err := bbfs.Mount(cfg, fd)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	fd.c = c
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestReadDirAllListsOnlyLaminatedFlatFiles(t *testing.T) {
	c := newTestClient(t)
	fid, _, err := c.Files.Create(c.Router.MountPrefix+"/a.txt", 0o644, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	meta, _ := c.Files.Get(fid)
	meta.Laminated = true

	if _, _, err := c.Files.Create(c.Router.MountPrefix+"/b.txt", 0o644, false); err != nil {
		t.Fatalf("Create: %v", err)
	}

	d := &dir{client: c}
	ents, err := d.ReadDirAll(context.Background())
	if err != nil {
		t.Fatalf("ReadDirAll: %v", err)
	}
	if len(ents) != 1 || ents[0].Name != "a.txt" {
		t.Fatalf("expected only the laminated file listed, got %+v", ents)
	}
}

func TestLookupRejectsNonLaminated(t *testing.T) {
	c := newTestClient(t)
	if _, _, err := c.Files.Create(c.Router.MountPrefix+"/pending.txt", 0o644, false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	d := &dir{client: c}
	if _, err := d.Lookup(context.Background(), "pending.txt"); err == nil {
		t.Fatalf("expected ENOENT for a non-laminated file")
	}
}

func TestReadAllReturnsWrittenBytes(t *testing.T) {
	c := newTestClient(t)
	path := c.Router.MountPrefix + "/hello.txt"
	extFD, err := c.Open(path, 0o644, false, true, true, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.Write(extFD, []byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Fsync(extFD); err != nil {
		t.Fatalf("Fsync: %v", err)
	}
	if err := c.CloseFD(extFD); err != nil {
		t.Fatalf("CloseFD: %v", err)
	}

	fid, _ := c.Files.Lookup(path)
	meta, _ := c.Files.Get(fid)
	meta.Laminated = true
	meta.GlobalSize = meta.LocalSize

	f := &file{client: c, path: path}
	got, err := f.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}
