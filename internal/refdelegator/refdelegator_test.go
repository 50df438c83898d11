package refdelegator

import (
	"path/filepath"
	"testing"

	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/filetable"
	"github.com/avogabo/bbfs/internal/metastore"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	meta, err := metastore.Open(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("metastore.Open: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })
	shm, err := delegator.OpenShmRegion(filepath.Join(t.TempDir(), "shm"), 1<<16)
	if err != nil {
		t.Fatalf("OpenShmRegion: %v", err)
	}
	t.Cleanup(func() { _ = shm.Close() })
	return New(meta, shm)
}

func TestSetMetaThenMetaGetRoundTrips(t *testing.T) {
	s := newServer(t)
	attr := delegator.FileAttr{GFID: 5, Mode: 0o644, GlobalSize: 0}
	if err := s.SetMeta(attr); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	got, err := s.MetaGet(5)
	if err != nil {
		t.Fatalf("MetaGet: %v", err)
	}
	if got != attr {
		t.Fatalf("got %+v, want %+v", got, attr)
	}
}

func TestSyncRaisesGlobalSizeToHighWaterMark(t *testing.T) {
	s := newServer(t)
	s.SetMeta(delegator.FileAttr{GFID: 1, Mode: 0o644})
	entries := []delegator.SyncEntry{
		{GFID: 1, FileOffset: 0, LogOffset: 0, Length: 4},
		{GFID: 1, FileOffset: 2, LogOffset: 4, Length: 6},
	}
	if err := s.Sync(1, entries); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	size, err := s.FileSize(1)
	if err != nil {
		t.Fatalf("FileSize: %v", err)
	}
	if size != 8 {
		t.Fatalf("expected high-water mark 8, got %d", size)
	}
}

func TestSyncNeverShrinksGlobalSize(t *testing.T) {
	s := newServer(t)
	s.SetMeta(delegator.FileAttr{GFID: 2, Mode: 0o644, GlobalSize: 100})
	if err := s.Sync(2, []delegator.SyncEntry{{GFID: 2, FileOffset: 0, LogOffset: 0, Length: 4}}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	size, _ := s.FileSize(2)
	if size != 100 {
		t.Fatalf("expected global size to stay at 100, got %d", size)
	}
}

func TestDispatchReadWritesZeroFilledReply(t *testing.T) {
	s := newServer(t)
	ext := delegator.Extent{GFID: filetable.GFID(9), Offset: 0, Length: 16}
	if err := s.DispatchRead(ext); err != nil {
		t.Fatalf("DispatchRead: %v", err)
	}
	if !s.Shm.IsDataComplete() {
		t.Fatalf("expected DATA_COMPLETE after dispatch")
	}
	replies, err := s.Shm.Replies()
	if err != nil {
		t.Fatalf("Replies: %v", err)
	}
	if len(replies) != 1 || replies[0].Header.Length != 16 {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	for i, b := range replies[0].Payload {
		if b != 0 {
			t.Fatalf("payload byte %d = %d, want 0", i, b)
		}
	}
}

func TestEventsPublishedWithoutBlocking(t *testing.T) {
	s := newServer(t)
	s.SetMeta(delegator.FileAttr{GFID: 3, Mode: 0o644})
	select {
	case ev := <-s.Events():
		if ev.Kind != "set_meta" || ev.GFID != 3 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("expected an event to be published")
	}
}
