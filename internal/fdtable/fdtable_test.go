package fdtable

import "testing"

func TestAllocFreeRoundTrip(t *testing.T) {
	tbl := New(4)
	fd, err := tbl.Alloc(Desc{FID: 1, Write: true})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := tbl.Free(fd); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if _, err := tbl.Get(fd); err == nil {
		t.Fatal("expected BAD_FD after free")
	}
}

func TestExhaustion(t *testing.T) {
	tbl := New(2)
	if _, err := tbl.Alloc(Desc{}); err != nil {
		t.Fatalf("Alloc 1: %v", err)
	}
	if _, err := tbl.Alloc(Desc{}); err != nil {
		t.Fatalf("Alloc 2: %v", err)
	}
	if _, err := tbl.Alloc(Desc{}); err == nil {
		t.Fatal("expected FD_EXHAUSTED on third alloc of a 2-slot pool")
	}
}

func TestNoLeakAcrossManyCycles(t *testing.T) {
	tbl := New(8)
	for i := 0; i < 100000; i++ {
		fd, err := tbl.Alloc(Desc{FID: 1})
		if err != nil {
			t.Fatalf("cycle %d: Alloc: %v", i, err)
		}
		if err := tbl.Free(fd); err != nil {
			t.Fatalf("cycle %d: Free: %v", i, err)
		}
	}
	if tbl.InUse() != 0 {
		t.Fatalf("expected 0 in use after cycles, got %d", tbl.InUse())
	}
}

func TestUpdatePreservesAllocation(t *testing.T) {
	tbl := New(2)
	fd, _ := tbl.Alloc(Desc{FID: 5, Pos: 0})
	if err := tbl.Update(fd, Desc{FID: 5, Pos: 42}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	d, err := tbl.Get(fd)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Pos != 42 {
		t.Fatalf("expected Pos 42, got %d", d.Pos)
	}
}
