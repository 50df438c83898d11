package delegator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/avogabo/bbfs/internal/bbfserr"
)

// HTTPTransport implements Transport by POSTing the raw payload to
// baseURL+"/rpc/"+method on a co-resident bbfsd (cmd/bbfsd's RPC
// adapter), carrying the correlation id as a header. This is the one
// concrete Transport this module ships; a production delegator would
// more likely speak a binary RPC framing directly over the unix socket
// named by config.Delegator.Endpoint, but HTTP keeps the debug path
// (cmd/bbfsctl mount --delegator-addr) dependency-free of anything beyond
// net/http, already in the teacher's stack for cmd/bbfsd's debug server.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{BaseURL: baseURL, Client: http.DefaultClient}
}

func (t *HTTPTransport) Call(ctx context.Context, method string, correlationID string, payload []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/rpc/%s", t.BaseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, bbfserr.Wrap("delegator.httptransport.call", bbfserr.IOError, err)
	}
	req.Header.Set("X-Correlation-Id", correlationID)
	req.Header.Set("Content-Type", "application/octet-stream")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, bbfserr.Wrap("delegator.httptransport.call", bbfserr.IOError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bbfserr.Wrap("delegator.httptransport.call", bbfserr.IOError, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, bbfserr.New("delegator.httptransport.call."+method, bbfserr.IOError)
	}
	return body, nil
}
