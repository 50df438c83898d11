// Package refdelegator is the reference Delegator cmd/bbfsd serves:
// metaget/set_meta/filesize backed by internal/metastore, and a
// shared-memory reply producer for read/mread. The real RPC transport and
// the burst-buffer data plane itself are out of scope per spec §1
// ("specified only through their interfaces") — DispatchRead/DispatchMRead
// here write zero-filled placeholder payloads of the requested length,
// enough to smoke-test the client's read-list engine end-to-end locally
// but not a real storage backend.
package refdelegator

import (
	"sync"

	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/filetable"
	"github.com/avogabo/bbfs/internal/metastore"
)

// Event is one observability tick published for cmd/bbfsd's websocket
// debug stream.
type Event struct {
	Kind string // "sync", "set_meta", "read", "mread"
	GFID filetable.GFID
}

// Server implements delegator.Delegator against a metastore and a shared
// reply region it produces into.
type Server struct {
	Meta *metastore.Store
	Shm  *delegator.ShmRegion

	mu     sync.Mutex
	events chan Event
}

func New(meta *metastore.Store, shm *delegator.ShmRegion) *Server {
	return &Server{Meta: meta, Shm: shm, events: make(chan Event, 64)}
}

// Events returns the channel cmd/bbfsd's websocket handler drains. Full
// sends are dropped rather than blocking the RPC path.
func (s *Server) Events() <-chan Event { return s.events }

func (s *Server) publish(kind string, gfid filetable.GFID) {
	select {
	case s.events <- Event{Kind: kind, GFID: gfid}:
	default:
	}
}

func (s *Server) MetaGet(gfid filetable.GFID) (delegator.FileAttr, error) {
	return s.Meta.Get(gfid)
}

func (s *Server) FileSize(gfid filetable.GFID) (uint64, error) {
	attr, err := s.Meta.Get(gfid)
	if err != nil {
		return 0, err
	}
	return attr.GlobalSize, nil
}

// Sync persists the high-water mark implied by entries (the delegator's
// own ordering/storage policy for the bytes themselves is out of scope;
// here global_size tracks the furthest byte any sync has claimed).
func (s *Server) Sync(gfid filetable.GFID, entries []delegator.SyncEntry) error {
	var maxEnd uint64
	for _, e := range entries {
		if end := uint64(e.FileOffset + e.Length); end > maxEnd {
			maxEnd = end
		}
	}
	attr, err := s.Meta.Get(gfid)
	if err != nil {
		return err
	}
	if maxEnd > attr.GlobalSize {
		if err := s.Meta.SetGlobalSize(gfid, maxEnd); err != nil {
			return err
		}
	}
	s.publish("sync", gfid)
	return nil
}

func (s *Server) SetMeta(attr delegator.FileAttr) error {
	if err := s.Meta.Set(attr); err != nil {
		return err
	}
	s.publish("set_meta", attr.GFID)
	return nil
}

func (s *Server) DispatchRead(ext delegator.Extent) error {
	return s.dispatch([]delegator.Extent{ext})
}

func (s *Server) DispatchMRead(exts []delegator.Extent) error {
	return s.dispatch(exts)
}

func (s *Server) dispatch(exts []delegator.Extent) error {
	replies := make([]delegator.DecodedReply, len(exts))
	for i, e := range exts {
		replies[i] = delegator.DecodedReply{
			Header:  delegator.ReplyHeader{GFID: uint64(e.GFID), Offset: e.Offset, Length: e.Length},
			Payload: make([]byte, e.Length),
		}
		kind := "read"
		if len(exts) > 1 {
			kind = "mread"
		}
		s.publish(kind, e.GFID)
	}
	return s.Shm.WriteReplies(replies, true)
}
