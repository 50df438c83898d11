// Package segtree implements the ordered, non-overlapping interval index
// described in spec §4.1: a file's written extents, each pointing at a
// log offset, kept disjoint and sorted under a single reader-writer lock.
package segtree

import (
	"sort"
	"sync"
)

// Segment is a half-open-in-spirit but inclusive-bounds logical range
// [Start,End] pointing at LogOffset in the log store. Segments within one
// tree are pairwise non-overlapping and sorted by Start.
type Segment struct {
	Start     int64
	End       int64
	LogOffset int64
}

func (s Segment) Len() int64 { return s.End - s.Start + 1 }

// Tree is one file's segment index. The zero value is not usable; use New.
type Tree struct {
	mu   sync.RWMutex
	segs []Segment // sorted by Start, pairwise disjoint
}

func New() *Tree {
	return &Tree{}
}

// Add inserts [start,end] -> logPtr, shrinking or deleting every existing
// segment it overlaps per spec §4.1:
//
//	O ⊆ [start,end]               -> delete O
//	O.Start < start <= O.End      -> shrink O to [O.Start, start-1]
//	O.Start <= end < O.End        -> shrink O to [end+1, O.End], logPtr += (end+1 - O.Start)
//
// An overlap straddling both sides of the new segment splits into both
// shrunk remainders. The newly inserted segment always wins ties, which is
// what gives writers last-writer-wins semantics at segment granularity.
func (t *Tree) Add(start, end, logPtr int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make([]Segment, 0, len(t.segs)+2)
	inserted := false
	for _, o := range t.segs {
		if o.End < start || o.Start > end {
			// No overlap; keep O, but insert the new segment in sorted
			// position the first time we pass it.
			if !inserted && o.Start > end {
				next = append(next, Segment{Start: start, End: end, LogOffset: logPtr})
				inserted = true
			}
			next = append(next, o)
			continue
		}

		// O overlaps [start,end]. Compute remainders.
		leftRemainder := o.Start < start
		rightRemainder := o.End > end

		if leftRemainder {
			next = append(next, Segment{Start: o.Start, End: start - 1, LogOffset: o.LogOffset})
		}
		if !inserted {
			next = append(next, Segment{Start: start, End: end, LogOffset: logPtr})
			inserted = true
		}
		if rightRemainder {
			newStart := end + 1
			next = append(next, Segment{
				Start:     newStart,
				End:       o.End,
				LogOffset: o.LogOffset + (newStart - o.Start),
			})
		}
		// O ⊆ [start,end]: neither remainder kept, O is fully replaced.
	}
	if !inserted {
		next = append(next, Segment{Start: start, End: end, LogOffset: logPtr})
	}
	t.segs = next
}

// Lock/Unlock/RLock/RUnlock expose the tree's lock directly so callers can
// hold it for the lifetime of an Iter cursor, per §4.1/§9: iteration is not
// thread-safe and not restartable once the tree mutates.
func (t *Tree) Lock()    { t.mu.Lock() }
func (t *Tree) Unlock()  { t.mu.Unlock() }
func (t *Tree) RLock()   { t.mu.RLock() }
func (t *Tree) RUnlock() { t.mu.RUnlock() }

// Iter returns a snapshot-order in-order traversal of the segments
// currently held. The caller must hold RLock or Lock for the duration of
// use; the slice is a defensive copy but the contract matches §4.1/§9 — it
// is not to be treated as a live, restartable view across mutation.
func (t *Tree) Iter() []Segment {
	out := make([]Segment, len(t.segs))
	copy(out, t.segs)
	return out
}

// Len reports the number of segments currently held. Caller must hold a
// lock, same contract as Iter.
func (t *Tree) Len() int { return len(t.segs) }

// Clear removes every segment, freeing the backing storage. Used on
// post-flush clear (flatten-writes mode) and on unlink.
func (t *Tree) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segs = nil
}

// Destroy is an alias for Clear kept to name the unlink-time call site
// distinctly from the post-flush one (§3 Lifecycles).
func (t *Tree) Destroy() { t.Clear() }

// At returns the segment, if any, under whose range point p falls, along
// with the log offset adjusted for p's position within that segment. Used
// by callers that want the "last-inserted add whose range contains p"
// resolution named in the invariants (§8).
func (t *Tree) At(p int64) (Segment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := sort.Search(len(t.segs), func(i int) bool { return t.segs[i].End >= p })
	if i < len(t.segs) && t.segs[i].Start <= p && p <= t.segs[i].End {
		return t.segs[i], true
	}
	return Segment{}, false
}
