// Package readpath implements the read-list engine of spec §4.5: the
// central algorithm that canonically orders read requests, splits them
// along delegator slice boundaries, dispatches to the delegator, consumes
// out-of-order replies from the shared-memory region, and matches each
// reply back to the user request(s) it belongs to.
package readpath

import (
	"sort"
	"time"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/filetable"
	"github.com/avogabo/bbfs/internal/metrics"
)

// ReadReq is one user read call's worth of request state (§3). Buf is the
// caller's destination buffer, exactly Length bytes; ErrCode records any
// failure this specific request encountered while being served.
type ReadReq struct {
	GFID    filetable.GFID
	Offset  int64
	Length  int64
	Buf     []byte
	ErrCode bbfserr.Kind
}

func (r *ReadReq) end() int64 { return r.Offset + r.Length - 1 }

// subReq is one slice-bounded piece of a ReadReq (§4.5 step B). Reply
// assembly (step E) works directly against the original, sorted ReadReq
// list rather than against these pieces, since a reply's range may not
// line up with any single split.
type subReq struct {
	gfid   filetable.GFID
	offset int64
	length int64
}

// Engine drives the dispatch/consume loop against a Delegator and its
// shared reply region.
type Engine struct {
	Del          delegator.Delegator
	Shm          *delegator.ShmRegion
	SliceBytes   int64
	MaxReadCnt   int
	ReplyTimeout time.Duration

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Registry
}

// SortRequests implements Step A: canonical order by (gfid, offset).
func SortRequests(reqs []*ReadReq) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].GFID != reqs[j].GFID {
			return reqs[i].GFID < reqs[j].GFID
		}
		return reqs[i].Offset < reqs[j].Offset
	})
}

// SplitAtSlices implements Step B: split each request at every multiple of
// sliceBytes it crosses, preserving gfid. Returns an error if the result
// would exceed maxReadCnt — "return failure without partial dispatch".
func SplitAtSlices(reqs []*ReadReq, sliceBytes int64, maxReadCnt int) ([]subReq, error) {
	if sliceBytes <= 0 {
		return nil, bbfserr.New("readpath.split", bbfserr.InvalidArg)
	}
	out := make([]subReq, 0, len(reqs))
	for _, r := range reqs {
		start := r.Offset
		remaining := r.Length
		for remaining > 0 {
			sliceEnd := ((start / sliceBytes) + 1) * sliceBytes
			chunk := sliceEnd - start
			if chunk > remaining {
				chunk = remaining
			}
			if len(out)+1 > maxReadCnt {
				return nil, bbfserr.New("readpath.split", bbfserr.InvalidArg)
			}
			out = append(out, subReq{gfid: r.GFID, offset: start, length: chunk})
			start += chunk
			remaining -= chunk
		}
	}
	return out, nil
}

// ReadMany is the central entry point (§4.5). It sorts reqs, splits them,
// dispatches to the delegator, and loops consuming shared-memory replies
// until DATA_COMPLETE or timeout.
func (e *Engine) ReadMany(reqs []*ReadReq) error {
	if len(reqs) == 0 {
		return nil
	}
	SortRequests(reqs)
	subs, err := SplitAtSlices(reqs, e.SliceBytes, e.MaxReadCnt)
	if err != nil {
		return err
	}

	exts := make([]delegator.Extent, len(subs))
	for i, s := range subs {
		exts[i] = delegator.Extent{GFID: s.gfid, Offset: uint64(s.offset), Length: uint64(s.length)}
	}
	if e.Metrics != nil {
		e.Metrics.SliceSplitCount.Observe(float64(len(subs)))
	}

	e.Shm.Reset()
	var dispatchErr error
	if len(exts) == 1 {
		dispatchErr = e.Del.DispatchRead(exts[0])
	} else {
		dispatchErr = e.Del.DispatchMRead(exts)
	}
	if dispatchErr != nil {
		e.Shm.Reset()
		return dispatchErr
	}

	timeout := e.ReplyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	// Scoped acquisition: every exit path below resets the region to
	// EMPTY (§9 "Scoped resources").
	for {
		if err := e.Shm.WaitFilled(timeout); err != nil {
			e.Shm.Reset()
			return err
		}
		replies, err := e.Shm.Replies()
		if err != nil {
			e.Shm.Reset()
			return err
		}
		complete := e.Shm.IsDataComplete()
		for _, rep := range replies {
			applyReply(reqs, rep, e.Metrics)
		}
		e.Shm.Reset()
		if complete {
			return nil
		}
	}
}

// applyReply implements Step E, the reply-match algorithm: binary search
// reqs (sorted by SortRequests) for the entries whose range brackets the
// reply's [offset, offset+length), then copy bytes or record a
// per-request error.
func applyReply(reqs []*ReadReq, rep delegator.DecodedReply, m *metrics.Registry) {
	gfid := filetable.GFID(rep.Header.GFID)
	start := int64(rep.Header.Offset)
	end := start + int64(rep.Header.Length) - 1

	// Restrict the search to this gfid's contiguous slice of reqs (reqs
	// is sorted by (gfid, offset), so it forms one contiguous run).
	lo := sort.Search(len(reqs), func(i int) bool { return reqs[i].GFID >= gfid })
	hi := sort.Search(len(reqs), func(i int) bool { return reqs[i].GFID > gfid })
	run := reqs[lo:hi]
	if len(run) == 0 {
		return
	}

	startIdx := sort.Search(len(run), func(i int) bool { return run[i].end() >= start })
	endIdx := sort.Search(len(run), func(i int) bool { return run[i].end() >= end })

	if startIdx >= len(run) || run[startIdx].Offset > start {
		// No request starts at or before `start` with a range covering it.
		markMiss(run, startIdx, m)
		return
	}
	if endIdx >= len(run) || run[endIdx].Offset > end {
		markMiss(run, startIdx, m)
		return
	}

	if rep.Header.ErrCode != 0 {
		for i := startIdx; i <= endIdx; i++ {
			run[i].ErrCode = bbfserr.IOError
		}
		return
	}

	if startIdx == endIdx {
		r := run[startIdx]
		copy(r.Buf[start-r.Offset:], rep.Payload)
		return
	}

	// Reply spans multiple consecutive requests: verify contiguity.
	for i := startIdx + 1; i <= endIdx; i++ {
		if run[i-1].end()+1 != run[i].Offset {
			for j := startIdx; j <= endIdx; j++ {
				run[j].ErrCode = bbfserr.MatchGap
			}
			if m != nil {
				m.ReplyGap.Inc()
			}
			return
		}
	}

	payloadOff := int64(0)
	for i := startIdx; i <= endIdx; i++ {
		r := run[i]
		var segStart int64
		if i == startIdx {
			segStart = start
		} else {
			segStart = r.Offset
		}
		var segEnd int64
		if i == endIdx {
			segEnd = end
		} else {
			segEnd = r.end()
		}
		n := segEnd - segStart + 1
		copy(r.Buf[segStart-r.Offset:], rep.Payload[payloadOff:payloadOff+n])
		payloadOff += n
	}
}

func markMiss(run []*ReadReq, idx int, m *metrics.Registry) {
	if idx < 0 {
		idx = 0
	}
	if idx >= len(run) {
		idx = len(run) - 1
	}
	if idx >= 0 {
		run[idx].ErrCode = bbfserr.MatchMiss
	}
	if m != nil {
		m.ReplyMiss.Inc()
	}
}
