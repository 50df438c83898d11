// Package indexbuf implements the sync payload batch of spec §3/§4.6: a
// flat ordered array of written extents shipped to the delegator on fsync.
package indexbuf

import (
	"sort"
	"sync"

	"github.com/avogabo/bbfs/internal/filetable"
)

// Entry is one written extent awaiting shipment.
type Entry struct {
	GFID       filetable.GFID
	FileOffset int64
	LogOffset  int64
	Length     int64
}

// Buffer accumulates Entry values until fsync removes one gfid's entries
// with ExtractGFID for shipment (§4.6).
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
}

func New() *Buffer {
	return &Buffer{}
}

// Append adds e to the batch.
func (b *Buffer) Append(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
}

// Len reports the current entry count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Snapshot returns the batch ordered by (gfid, file_offset) as required
// before shipment (§3), without clearing it.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	sort.Slice(out, func(i, j int) bool {
		if out[i].GFID != out[j].GFID {
			return out[i].GFID < out[j].GFID
		}
		return out[i].FileOffset < out[j].FileOffset
	})
	return out
}

// Replace swaps the batch contents wholesale, every gfid's entries
// included. Flatten-writes mode in internal/sync does not use it; it
// replaces only the syncing file's entries via ExtractGFID and Append.
func (b *Buffer) Replace(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = entries
}

// Reset empties the whole batch, every gfid's entries included. Fsync
// does not call it; it removes only its own file's entries via
// ExtractGFID.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}

// ExtractGFID removes and returns, ordered by file_offset, every entry
// belonging to gfid. Sync (§4.6) ships one gfid's entries per RPC but the
// buffer is shared across every fid with outstanding writes, so fsync on
// one file must not disturb another file's pending entries.
func (b *Buffer) ExtractGFID(gfid filetable.GFID) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var mine []Entry
	rest := b.entries[:0:0]
	for _, e := range b.entries {
		if e.GFID == gfid {
			mine = append(mine, e)
		} else {
			rest = append(rest, e)
		}
	}
	b.entries = rest
	sort.Slice(mine, func(i, j int) bool { return mine[i].FileOffset < mine[j].FileOffset })
	return mine
}
