// Package logstore implements the append-only byte log of spec §4.2: an
// in-memory region backed by an optional on-disk spill file, with a single
// monotonically increasing offset shared across both tiers.
package logstore

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/avogabo/bbfs/internal/bbfserr"
)

// Store is the polymorphic log named in §9: {append, read, sync} over a
// memory tier that overflows into a spill file once exhausted.
type Store struct {
	mu sync.Mutex

	mem       []byte
	memCap    int64
	spillDir  string
	spillCap  int64
	spillFile *os.File
	spillLen  int64

	// next is the logical offset the next append will be written at.
	// Offsets [0, len(mem)) live in memory; offsets [memCap, memCap+spillLen)
	// live in the spill file, so the two address spaces never collide.
	next int64
}

// Config mirrors the subset of config.LogStore a Store needs.
type Config struct {
	MemoryBytes  int64
	SpillDir     string
	SpillMaxSize int64
}

func Open(cfg Config) (*Store, error) {
	if cfg.MemoryBytes <= 0 {
		return nil, bbfserr.New("logstore.Open", bbfserr.InvalidArg)
	}
	return &Store{
		mem:      make([]byte, 0, cfg.MemoryBytes),
		memCap:   cfg.MemoryBytes,
		spillDir: cfg.SpillDir,
		spillCap: cfg.SpillMaxSize,
	}, nil
}

func (s *Store) ensureSpillFile() error {
	if s.spillFile != nil {
		return nil
	}
	if s.spillDir == "" {
		return bbfserr.New("logstore.append", bbfserr.OutOfMemory)
	}
	if err := os.MkdirAll(s.spillDir, 0o755); err != nil {
		return bbfserr.Wrap("logstore.append", bbfserr.IOError, err)
	}
	name := fmt.Sprintf("spill-%s.bin", uuid.NewString())
	f, err := os.OpenFile(s.spillDir+"/"+name, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return bbfserr.Wrap("logstore.append", bbfserr.IOError, err)
	}
	s.spillFile = f
	return nil
}

// Append writes data to the log, returning the log_offset it now lives at.
// Appends overflow from the memory tier into the spill file once memCap is
// reached; the returned offset is transparent to the caller either way.
func (s *Store) Append(data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := s.next
	remaining := data

	// Fill memory tier first, up to memCap.
	if int64(len(s.mem)) < s.memCap && len(remaining) > 0 {
		room := s.memCap - int64(len(s.mem))
		take := int64(len(remaining))
		if take > room {
			take = room
		}
		s.mem = append(s.mem, remaining[:take]...)
		remaining = remaining[take:]
	}

	// Spill the rest.
	if len(remaining) > 0 {
		if s.spillCap > 0 && s.spillLen+int64(len(remaining)) > s.spillCap {
			return 0, bbfserr.New("logstore.append", bbfserr.OutOfMemory)
		}
		if err := s.ensureSpillFile(); err != nil {
			return 0, err
		}
		if _, err := s.spillFile.WriteAt(remaining, s.spillLen); err != nil {
			return 0, bbfserr.Wrap("logstore.append", bbfserr.IOError, err)
		}
		s.spillLen += int64(len(remaining))
	}

	s.next += int64(len(data))
	return offset, nil
}

// Read returns length bytes starting at logOffset, transparently crossing
// the memory/spill boundary if needed.
func (s *Store) Read(logOffset, length int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if logOffset < 0 || length < 0 || logOffset+length > s.next {
		return nil, bbfserr.New("logstore.read", bbfserr.InvalidArg)
	}
	out := make([]byte, length)
	written := int64(0)

	if logOffset < s.memCap {
		n := length
		if logOffset+n > int64(len(s.mem)) {
			n = int64(len(s.mem)) - logOffset
		}
		if n > 0 {
			copy(out[:n], s.mem[logOffset:logOffset+n])
			written = n
		}
	}

	if written < length {
		spillOffset := logOffset + written - s.memCap
		if spillOffset < 0 {
			spillOffset = 0
		}
		if s.spillFile == nil {
			return nil, bbfserr.New("logstore.read", bbfserr.IOError)
		}
		if _, err := s.spillFile.ReadAt(out[written:], spillOffset); err != nil {
			return nil, bbfserr.Wrap("logstore.read", bbfserr.IOError, err)
		}
	}
	return out, nil
}

// Sync fsyncs the spill file, required before the delegator is notified of
// a sync so that spilled bytes are durable (§4.2, §4.6 step 1).
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spillFile == nil {
		return nil
	}
	if err := s.spillFile.Sync(); err != nil {
		return bbfserr.Wrap("logstore.sync", bbfserr.IOError, err)
	}
	return nil
}

// Close releases the spill file handle, if one was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spillFile == nil {
		return nil
	}
	err := s.spillFile.Close()
	s.spillFile = nil
	if err != nil {
		return bbfserr.Wrap("logstore.close", bbfserr.IOError, err)
	}
	return nil
}

// Len reports the total number of bytes appended so far (the next offset
// to be handed out).
func (s *Store) Len() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
