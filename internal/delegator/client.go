package delegator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/filetable"
)

// Transport is the wire-level send/receive primitive a Client drives. The
// concrete RPC framing (§1 "delegator/server RPC implementation") is out
// of scope for this module; Transport is the seam a real implementation
// plugs into.
type Transport interface {
	Call(ctx context.Context, method string, correlationID string, payload []byte) ([]byte, error)
}

// Client implements Delegator over a Transport, adding the
// concurrency-control and observability behavior named in SPEC_FULL.md's
// DOMAIN STACK: singleflight de-dup of concurrent metaget/filesize calls
// for the same gfid (grounded on internal/fusefs/rawfs.go's cache-fetch
// singleflight use in the teacher), a per-gfid token-bucket rate limiter
// (grounded on the teacher's internal/nntp.Pool connection cap,
// generalized from a connection count to a request rate), and an
// OpenTelemetry span per RPC.
type Client struct {
	transport Transport
	tracer    trace.Tracer

	sf *singleflight.Group

	mu       sync.Mutex
	limiters map[filetable.GFID]*rate.Limiter
	ratePerS int
}

func NewClient(t Transport, ratePerGfid int) *Client {
	if ratePerGfid <= 0 {
		ratePerGfid = 64
	}
	return &Client{
		transport: t,
		tracer:    otel.Tracer("bbfs/delegator"),
		sf:        &singleflight.Group{},
		limiters:  make(map[filetable.GFID]*rate.Limiter),
		ratePerS:  ratePerGfid,
	}
}

func (c *Client) limiterFor(g filetable.GFID) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[g]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.ratePerS), c.ratePerS)
		c.limiters[g] = l
	}
	return l
}

func (c *Client) call(ctx context.Context, gfid filetable.GFID, method string, payload []byte) ([]byte, error) {
	if err := c.limiterFor(gfid).Wait(ctx); err != nil {
		return nil, bbfserr.Wrap("delegator."+method, bbfserr.IOError, err)
	}
	ctx, span := c.tracer.Start(ctx, "delegator."+method)
	defer span.End()
	return c.transport.Call(ctx, method, uuid.NewString(), payload)
}

func (c *Client) MetaGet(gfid filetable.GFID) (FileAttr, error) {
	v, err, _ := c.sf.Do(fmt.Sprintf("metaget:%d", gfid), func() (any, error) {
		resp, err := c.call(context.Background(), gfid, "metaget", EncodeGFID(gfid))
		if err != nil {
			return FileAttr{}, err
		}
		return DecodeFileAttr(resp)
	})
	if err != nil {
		return FileAttr{}, err
	}
	return v.(FileAttr), nil
}

func (c *Client) FileSize(gfid filetable.GFID) (uint64, error) {
	v, err, _ := c.sf.Do(fmt.Sprintf("filesize:%d", gfid), func() (any, error) {
		resp, err := c.call(context.Background(), gfid, "filesize", EncodeGFID(gfid))
		if err != nil {
			return uint64(0), err
		}
		return decodeUint64(resp), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

func (c *Client) Sync(gfid filetable.GFID, entries []SyncEntry) error {
	v, err, _ := c.sf.Do(fmt.Sprintf("sync:%d", gfid), func() (any, error) {
		_, err := c.call(context.Background(), gfid, "sync", EncodeSyncEntries(gfid, entries))
		return nil, err
	})
	_ = v
	return err
}

func (c *Client) DispatchRead(ext Extent) error {
	_, err := c.call(context.Background(), ext.GFID, "read", EncodeExtent(ext))
	return err
}

func (c *Client) DispatchMRead(exts []Extent) error {
	if len(exts) == 0 {
		return nil
	}
	_, err := c.call(context.Background(), exts[0].GFID, "mread", EncodeExtentVector(exts))
	return err
}

func (c *Client) SetMeta(attr FileAttr) error {
	_, err := c.call(context.Background(), attr.GFID, "set_meta", EncodeFileAttr(attr))
	return err
}
