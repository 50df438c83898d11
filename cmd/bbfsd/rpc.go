package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/refdelegator"
)

// rpcHandler adapts refdelegator.Server to delegator.HTTPTransport's wire
// shape: POST /rpc/<method> with the raw request payload as the body,
// the raw response payload (empty for ack-only calls) as the response
// body. This is the server half of the single Transport this module
// ships; cmd/bbfsctl's mount --delegator-addr flag dials it with
// delegator.NewHTTPTransport.
func rpcHandler(srv *refdelegator.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		method := strings.TrimPrefix(r.URL.Path, "/rpc/")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := dispatch(srv, method, body)
		if err != nil {
			http.Error(w, method+": "+err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(resp)
	}
}

func dispatch(srv *refdelegator.Server, method string, body []byte) ([]byte, error) {
	switch method {
	case "metaget":
		gfid, err := delegator.DecodeGFID(body)
		if err != nil {
			return nil, err
		}
		attr, err := srv.MetaGet(gfid)
		if err != nil {
			return nil, err
		}
		return delegator.EncodeFileAttr(attr), nil

	case "filesize":
		gfid, err := delegator.DecodeGFID(body)
		if err != nil {
			return nil, err
		}
		size, err := srv.FileSize(gfid)
		if err != nil {
			return nil, err
		}
		return delegator.EncodeUint64(size), nil

	case "sync":
		gfid, entries, err := delegator.DecodeSyncEntries(body)
		if err != nil {
			return nil, err
		}
		return nil, srv.Sync(gfid, entries)

	case "set_meta":
		attr, err := delegator.DecodeFileAttr(body)
		if err != nil {
			return nil, err
		}
		return nil, srv.SetMeta(attr)

	case "read":
		ext, err := delegator.DecodeExtent(body)
		if err != nil {
			return nil, err
		}
		return nil, srv.DispatchRead(ext)

	case "mread":
		exts, err := delegator.DecodeExtentVector(body)
		if err != nil {
			return nil, err
		}
		return nil, srv.DispatchMRead(exts)

	default:
		return nil, fmt.Errorf("unknown rpc method %q", method)
	}
}
