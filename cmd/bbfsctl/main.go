// Command bbfsctl is the operator CLI: `describe` prints a read-only
// status dump of the mount's persisted metadata, and `mount` exposes a
// read-only bazil.org/fuse view of laminated files for manual inspection.
// Grounded on cmd/edrmount/main.go's flag.StringVar/flag.Parse style and
// internal/fusefs/fusefs.go's Start/detachStaleMount pattern.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/avogabo/bbfs/internal/bbfs"
	"github.com/avogabo/bbfs/internal/config"
	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/filetable"
	"github.com/avogabo/bbfs/internal/fusefs"
	"github.com/avogabo/bbfs/internal/metastore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "describe":
		runDescribe(os.Args[2:])
	case "mount":
		runMount(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bbfsctl <describe|mount> [flags]")
}

func runDescribe(args []string) {
	fs := flag.NewFlagSet("describe", flag.ExitOnError)
	var cfgPath string
	fs.StringVar(&cfgPath, "config", "/config/bbfs.json", "path to config file (json)")
	fs.Parse(args)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	fmt.Printf("mount prefix:      %s\n", cfg.Mount.Prefix)
	fmt.Printf("fd limit/capacity: %d / %d\n", cfg.Mount.FDLimit, cfg.Mount.FDCapacity)
	fmt.Printf("index buf cap:     %d\n", cfg.Mount.IndexBufCap)
	fmt.Printf("flatten on sync:   %v\n", cfg.Write.FlattenOnSync)

	meta, err := metastore.Open(cfg.Debug.MetaStorePath)
	if err != nil {
		log.Fatalf("metastore open: %v", err)
	}
	defer meta.Close()

	count, total, err := meta.Stats()
	if err != nil {
		log.Fatalf("metastore stats: %v", err)
	}
	fmt.Printf("registered files:  %d\n", count)
	fmt.Printf("global size bytes: %d\n", total)
}

func runMount(args []string) {
	fs := flag.NewFlagSet("mount", flag.ExitOnError)
	var cfgPath, mountpoint, delegatorAddr string
	var allowOther bool
	fs.StringVar(&cfgPath, "config", "/config/bbfs.json", "path to config file (json)")
	fs.StringVar(&mountpoint, "mountpoint", "/mnt/bbfs-debug", "FUSE debug mountpoint")
	fs.BoolVar(&allowOther, "allow-other", false, "pass allow_other to the FUSE mount")
	fs.StringVar(&delegatorAddr, "delegator-addr", "", "bbfsd debug HTTP address (e.g. http://127.0.0.1:9480); empty dials nothing and only serves files this process laminates itself")
	fs.Parse(args)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	var del delegator.Delegator
	if delegatorAddr != "" {
		del = delegator.NewClient(delegator.NewHTTPTransport(delegatorAddr), cfg.Delegator.RPCRatePerGfid)
		log.Printf("bbfsctl dialing delegator at %s", delegatorAddr)
	} else {
		del = noopDelegator{}
	}

	client, err := bbfs.Mount(cfg, del)
	if err != nil {
		log.Fatalf("bbfs mount: %v", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := fusefs.Start(ctx, fusefs.MountOptions{Mountpoint: mountpoint, AllowOther: allowOther}, &fusefs.LaminatedFS{Client: client})
	if err != nil {
		log.Fatalf("fuse mount: %v", err)
	}
	defer m.Close()

	log.Printf("bbfsctl debug mount ready at %s", mountpoint)
	<-ctx.Done()
	log.Printf("bbfsctl unmounting")
}

// noopDelegator is the fallback used when `mount` is run without
// -delegator-addr. It only ever serves files this same process laminated
// directly against its own log store, so DispatchRead/MetaGet/etc. are
// never reachable in practice; pass -delegator-addr to dial a real
// delegator.Client against a running bbfsd instead.
type noopDelegator struct{}

func (noopDelegator) MetaGet(filetable.GFID) (delegator.FileAttr, error) {
	return delegator.FileAttr{}, nil
}
func (noopDelegator) FileSize(filetable.GFID) (uint64, error)          { return 0, nil }
func (noopDelegator) SetMeta(delegator.FileAttr) error                 { return nil }
func (noopDelegator) Sync(filetable.GFID, []delegator.SyncEntry) error { return nil }
func (noopDelegator) DispatchRead(delegator.Extent) error              { return nil }
func (noopDelegator) DispatchMRead([]delegator.Extent) error           { return nil }
