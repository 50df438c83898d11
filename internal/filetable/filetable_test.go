package filetable

import "testing"

func TestCreateAndLookup(t *testing.T) {
	tbl := New()
	fid, meta, err := tbl.Create("/burst/a", 0o644, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if meta.GFID == 0 {
		t.Fatal("expected non-zero gfid")
	}
	got, ok := tbl.Lookup("/burst/a")
	if !ok || got != fid {
		t.Fatalf("Lookup mismatch: got %v ok=%v want %v", got, ok, fid)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	tbl := New()
	if _, _, err := tbl.Create("/burst/a", 0o644, false); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, _, err := tbl.Create("/burst/a", 0o644, false); err == nil {
		t.Fatal("expected EXISTS on duplicate create")
	}
}

func TestUnlinkFreesRecord(t *testing.T) {
	tbl := New()
	tbl.Create("/burst/a", 0o644, false)
	if err := tbl.Unlink("/burst/a"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, ok := tbl.Lookup("/burst/a"); ok {
		t.Fatal("expected fid to be gone after unlink")
	}
}

func TestUnlinkDirFails(t *testing.T) {
	tbl := New()
	tbl.Create("/burst/dir", 0o755, true)
	if err := tbl.Unlink("/burst/dir"); err == nil {
		t.Fatal("expected ISDIR unlinking a directory")
	}
}

func TestRenameMovesAndOverwritesAtomically(t *testing.T) {
	tbl := New()
	tbl.Create("/burst/x", 0o644, false)
	tbl.Create("/burst/y", 0o644, false)
	if err := tbl.Rename("/burst/x", "/burst/y"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, ok := tbl.Lookup("/burst/x"); ok {
		t.Fatal("expected src gone after rename")
	}
	fid, ok := tbl.Lookup("/burst/y")
	if !ok {
		t.Fatal("expected dst present after rename")
	}
	m, _ := tbl.Get(fid)
	if m.Path != "/burst/y" {
		t.Fatalf("expected meta path updated, got %q", m.Path)
	}
}

func TestRenameOverwriteDropsStaleGFIDEntry(t *testing.T) {
	tbl := New()
	tbl.Create("/burst/x", 0o644, false)
	_, dstMeta, _ := tbl.Create("/burst/y", 0o644, false)
	staleGFID := dstMeta.GFID

	if err := tbl.Rename("/burst/x", "/burst/y"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, _, ok := tbl.GetByGFID(staleGFID); ok {
		t.Fatal("expected overwritten dst's gfid entry to be gone, not dangling")
	}
}

func TestHashPathStableAcrossCalls(t *testing.T) {
	a := HashPath("/burst/same")
	b := HashPath("/burst/same")
	if a != b {
		t.Fatal("expected HashPath to be deterministic")
	}
	if HashPath("/burst/other") == a {
		t.Fatal("expected distinct paths to hash differently (with overwhelming probability)")
	}
}
