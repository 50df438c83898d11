// Command bbfsd is the delegator-side launcher: it owns the persistent
// metastore, produces into the shared-memory reply region, and serves a
// debug HTTP surface (Prometheus metrics and a websocket event stream).
// The real RPC transport and storage data plane are out of scope per spec
// §1 ("specified only through their interfaces") — bbfsd's
// internal/refdelegator.Server is a reference implementation good enough
// to smoke-test a co-resident bbfs.Client against, not a production
// burst-buffer backend.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/avogabo/bbfs/internal/config"
	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/metastore"
	"github.com/avogabo/bbfs/internal/metrics"
	"github.com/avogabo/bbfs/internal/refdelegator"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "/config/bbfs.json", "path to config file (json)")
	flag.Parse()

	if err := config.EnsureConfigFile(cfgPath); err != nil {
		log.Fatalf("config bootstrap: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validate: %v", err)
	}

	tp, err := newTracerProvider()
	if err != nil {
		log.Fatalf("tracer provider: %v", err)
	}
	otel.SetTracerProvider(tp)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	meta, err := metastore.Open(cfg.Debug.MetaStorePath)
	if err != nil {
		log.Fatalf("metastore open: %v", err)
	}
	defer meta.Close()

	shm, err := delegator.OpenShmRegion(cfg.Delegator.ShmPath, cfg.Delegator.ShmSize)
	if err != nil {
		log.Fatalf("shm region open: %v", err)
	}
	defer shm.Close()

	srv := refdelegator.New(meta, shm)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	_ = m // wired into a co-resident bbfs.Client by whatever launches it alongside bbfsd

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/watch", watchHandler(srv))
	mux.HandleFunc("/rpc/", rpcHandler(srv))

	go func() {
		log.Printf("bbfsd listening on %s", cfg.Debug.HTTPAddr)
		if err := http.ListenAndServe(cfg.Debug.HTTPAddr, mux); err != nil {
			log.Fatalf("debug server: %v", err)
		}
	}()

	log.Printf("bbfsd reference delegator ready (shm=%s)", cfg.Delegator.ShmPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Printf("bbfsd shutting down")
}

func newTracerProvider() (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// watchHandler streams refdelegator.Event values as JSON text frames,
// grounded on the teacher's own HTTP server wiring shape
// (internal/api/server.go) generalized to a websocket upgrade.
func watchHandler(srv *refdelegator.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("watch upgrade: %v", err)
			return
		}
		defer conn.Close()
		for ev := range srv.Events() {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
