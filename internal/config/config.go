package config

import (
	"encoding/json"
	"errors"
	"os"
)

// Mount describes the client-side mount: which path prefix is ours and how
// fds are routed.
type Mount struct {
	Prefix      string `json:"prefix"`       // e.g. "/burst"
	FDLimit     int    `json:"fd_limit"`     // numeric fds below this belong to the real kernel
	FDCapacity  int    `json:"fd_capacity"`  // size of the internal fd free-stack pool (§4/§3)
	IndexBufCap int    `json:"index_buf_cap"` // entries before a mid-write flush (§4.3 step 7)
}

// LogStore sizes the two-tier append log (§4.2).
type LogStore struct {
	MemoryBytes  int64  `json:"memory_bytes"`
	SpillDir     string `json:"spill_dir"`
	SpillMaxSize int64  `json:"spill_max_size"`
}

// Delegator describes how to reach the co-resident delegator process and
// the shared-memory reply region it produces into (§6).
type Delegator struct {
	Endpoint        string `json:"endpoint"`
	SliceBytes      int64  `json:"slice_bytes"`       // server key-slice width S
	ShmPath         string `json:"shm_path"`          // backing file for the reply region
	ShmSize         int64  `json:"shm_size"`
	ReplyTimeoutMs  int    `json:"reply_timeout_ms"`  // bounded wait, default 5000
	RPCRatePerGfid  int    `json:"rpc_rate_per_gfid"` // token-bucket cap, per §9 "DOMAIN STACK" x/time/rate wiring
}

// Write controls optional write-path behavior.
type Write struct {
	FlattenOnSync bool `json:"flatten_on_sync"` // §4.6 flatten-writes mode
}

// Debug configures cmd/bbfsd's HTTP debug surface (metrics + websocket
// event stream) and cmd/bbfsd's metastore path. None of this is part of
// the client's POSIX surface; it's the ambient operability SPEC_FULL.md's
// DOMAIN STACK expansion adds.
type Debug struct {
	HTTPAddr     string `json:"http_addr"`     // serves /metrics and /watch
	MetaStorePath string `json:"metastore_path"`
}

type Config struct {
	Mount      Mount     `json:"mount"`
	LogStore   LogStore  `json:"log_store"`
	Delegator  Delegator `json:"delegator"`
	Write      Write     `json:"write"`
	Debug      Debug     `json:"debug"`
	MaxReadCnt int       `json:"max_read_cnt"` // §4.5 Step B overflow bound
}

func Default() Config {
	return Config{
		Mount: Mount{Prefix: "/burst", FDLimit: 1 << 20, FDCapacity: 4096, IndexBufCap: 1024},
		LogStore: LogStore{
			MemoryBytes:  256 << 20,
			SpillDir:     "/var/lib/bbfs/spill",
			SpillMaxSize: 64 << 30,
		},
		Delegator: Delegator{
			Endpoint:       "unix:///var/run/bbfs/delegator.sock",
			SliceBytes:     1 << 20,
			ShmPath:        "/dev/shm/bbfs-reply",
			ShmSize:        4 << 20,
			ReplyTimeoutMs: 5000,
			RPCRatePerGfid: 64,
		},
		Write: Write{FlattenOnSync: false},
		Debug: Debug{
			HTTPAddr:      ":9480",
			MetaStorePath: "/var/lib/bbfs/meta.db",
		},
		MaxReadCnt: 4096,
	}
}

// Load reads a JSON config file over the defaults. An empty path returns
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Mount.Prefix == "" {
		return errors.New("mount.prefix required")
	}
	if c.Mount.FDLimit <= 0 {
		return errors.New("mount.fd_limit must be positive")
	}
	if c.Mount.FDCapacity <= 0 {
		return errors.New("mount.fd_capacity must be positive")
	}
	if c.Delegator.SliceBytes <= 0 {
		return errors.New("delegator.slice_bytes must be positive")
	}
	if c.MaxReadCnt <= 0 {
		return errors.New("max_read_cnt must be positive")
	}
	if c.LogStore.MemoryBytes <= 0 {
		return errors.New("log_store.memory_bytes must be positive")
	}
	return nil
}
