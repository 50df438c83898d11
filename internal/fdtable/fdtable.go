// Package fdtable implements the fixed pool of descriptor slots described
// in spec §4/§3: a free-stack of internal fd numbers, each carrying
// {fid, pos, read, write, append}.
package fdtable

import (
	"sync"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/filetable"
)

// Desc is the per-fd state of §3. Pos is user-visible position, not
// touched by pread/pwrite; Append forces the effective write position to
// the file's local_size on every write.
type Desc struct {
	FID    filetable.FID
	Pos    int64
	Read   bool
	Write  bool
	Append bool
}

// Table is a fixed-size pool of fd slots, allocated from a free-stack so
// that open/close cycles never leak a slot (§8 "FD roundtrip").
type Table struct {
	mu    sync.Mutex
	descs []Desc
	live  []bool
	free  []int // stack of free slot indices
}

func New(capacity int) *Table {
	t := &Table{
		descs: make([]Desc, capacity),
		live:  make([]bool, capacity),
		free:  make([]int, capacity),
	}
	for i := 0; i < capacity; i++ {
		t.free[i] = capacity - 1 - i
	}
	return t
}

// Alloc pops a slot off the free-stack and initializes it. Returns
// FD_EXHAUSTED if the pool is empty.
func (t *Table) Alloc(d Desc) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.free) == 0 {
		return 0, bbfserr.New("fdtable.alloc", bbfserr.FDExhausted)
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	t.descs[idx] = d
	t.live[idx] = true
	return idx, nil
}

// Get returns the Desc for fd, or BAD_FD if fd isn't live.
func (t *Table) Get(fd int) (Desc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.descs) || !t.live[fd] {
		return Desc{}, bbfserr.New("fdtable.get", bbfserr.BadFD)
	}
	return t.descs[fd], nil
}

// Update replaces the Desc for a live fd (e.g. after advancing Pos).
func (t *Table) Update(fd int, d Desc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.descs) || !t.live[fd] {
		return bbfserr.New("fdtable.update", bbfserr.BadFD)
	}
	t.descs[fd] = d
	return nil
}

// Free pushes fd back onto the free-stack.
func (t *Table) Free(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.descs) || !t.live[fd] {
		return bbfserr.New("fdtable.free", bbfserr.BadFD)
	}
	t.live[fd] = false
	t.descs[fd] = Desc{}
	t.free = append(t.free, fd)
	return nil
}

// InUse reports how many slots are currently allocated, for the fd gauge
// that bbfs.Client.RefreshGauges sets.
func (t *Table) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.descs) - len(t.free)
}
