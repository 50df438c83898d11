package logstore

import (
	"bytes"
	"testing"
)

func newTestStore(t *testing.T, memBytes, spillMax int64) *Store {
	t.Helper()
	s, err := Open(Config{MemoryBytes: memBytes, SpillDir: t.TempDir(), SpillMaxSize: spillMax})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendReadRoundTripMemoryOnly(t *testing.T) {
	s := newTestStore(t, 1<<20, 0)
	off, err := s.Append([]byte("hello world"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if off != 0 {
		t.Fatalf("expected first append at offset 0, got %d", off)
	}
	got, err := s.Read(off, 11)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("got %q", got)
	}
}

func TestAppendOverflowsIntoSpill(t *testing.T) {
	s := newTestStore(t, 4, 1<<20) // tiny memory tier forces spill
	a, err := s.Append([]byte("ABCD"))
	if err != nil {
		t.Fatalf("Append a: %v", err)
	}
	b, err := s.Append([]byte("EFGH"))
	if err != nil {
		t.Fatalf("Append b: %v", err)
	}
	gotA, err := s.Read(a, 4)
	if err != nil {
		t.Fatalf("Read a: %v", err)
	}
	gotB, err := s.Read(b, 4)
	if err != nil {
		t.Fatalf("Read b: %v", err)
	}
	if !bytes.Equal(gotA, []byte("ABCD")) || !bytes.Equal(gotB, []byte("EFGH")) {
		t.Fatalf("got a=%q b=%q", gotA, gotB)
	}
}

func TestAppendSpanningMemoryAndSpill(t *testing.T) {
	s := newTestStore(t, 4, 1<<20)
	off, err := s.Append([]byte("ABCDEFGH")) // 4 bytes memory, 4 bytes spill
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := s.Read(off, 8)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("ABCDEFGH")) {
		t.Fatalf("got %q", got)
	}
}

func TestReadPastEndFails(t *testing.T) {
	s := newTestStore(t, 1<<20, 0)
	off, _ := s.Append([]byte("abc"))
	if _, err := s.Read(off, 10); err == nil {
		t.Fatal("expected error reading past the appended length")
	}
}

func TestSpillCapEnforced(t *testing.T) {
	s := newTestStore(t, 4, 2) // memory tier absorbs 4 bytes, spill capped at 2
	if _, err := s.Append([]byte("ABCD")); err != nil {
		t.Fatalf("Append within memory tier: %v", err)
	}
	if _, err := s.Append([]byte("EFG")); err == nil {
		t.Fatal("expected OUT_OF_MEMORY once spill cap exceeded")
	}
}
