// Package metastore is the delegator-side persistent key-value metadata
// store: a durable gfid -> file_attr table backing metaget/filesize/
// set_meta (§6). The client-facing module never imports this package
// directly — it lives on the delegator side of the process boundary
// (§1 "persistent key-value metadata store" is named out of scope for
// the client, but cmd/bbfsd hosts a delegator implementation that needs
// one), modernc.org/sqlite standing in for whatever real key-value store
// a production delegator would use.
package metastore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/delegator"
	"github.com/avogabo/bbfs/internal/filetable"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_attrs (
	gfid        INTEGER PRIMARY KEY,
	mode        INTEGER NOT NULL,
	global_size INTEGER NOT NULL DEFAULT 0
);
`

// Store opens a WAL-mode sqlite database at path and migrates it to the
// current schema on open.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, bbfserr.Wrap("metastore.open", bbfserr.IOError, err)
	}
	db.SetMaxOpenConns(8)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, bbfserr.Wrap("metastore.open", bbfserr.IOError, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return bbfserr.Wrap("metastore.close", bbfserr.IOError, err)
	}
	return nil
}

// Get implements the metaget RPC's backing lookup, returning NOT_FOUND
// for an unregistered gfid.
func (s *Store) Get(gfid filetable.GFID) (delegator.FileAttr, error) {
	row := s.db.QueryRow(`SELECT mode, global_size FROM file_attrs WHERE gfid = ?`, uint64(gfid))
	var mode uint32
	var size uint64
	if err := row.Scan(&mode, &size); err != nil {
		if err == sql.ErrNoRows {
			return delegator.FileAttr{}, bbfserr.New("metastore.get", bbfserr.NotFound)
		}
		return delegator.FileAttr{}, bbfserr.Wrap("metastore.get", bbfserr.IOError, err)
	}
	return delegator.FileAttr{GFID: gfid, Mode: mode, GlobalSize: size}, nil
}

// Set implements the set_meta RPC's backing upsert.
func (s *Store) Set(attr delegator.FileAttr) error {
	_, err := s.db.Exec(
		`INSERT INTO file_attrs (gfid, mode, global_size) VALUES (?, ?, ?)
		 ON CONFLICT(gfid) DO UPDATE SET mode = excluded.mode, global_size = excluded.global_size`,
		uint64(attr.GFID), attr.Mode, attr.GlobalSize,
	)
	if err != nil {
		return bbfserr.Wrap("metastore.set", bbfserr.IOError, err)
	}
	return nil
}

// SetGlobalSize updates only a gfid's global_size. The reference
// delegator's Sync calls it to raise the size to the synced high-water
// mark; filesize then reads that value back.
func (s *Store) SetGlobalSize(gfid filetable.GFID, size uint64) error {
	res, err := s.db.Exec(`UPDATE file_attrs SET global_size = ? WHERE gfid = ?`, size, uint64(gfid))
	if err != nil {
		return bbfserr.Wrap("metastore.setglobalsize", bbfserr.IOError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return bbfserr.Wrap("metastore.setglobalsize", bbfserr.IOError, err)
	}
	if n == 0 {
		return bbfserr.New("metastore.setglobalsize", bbfserr.NotFound)
	}
	return nil
}

// Stats reports the registered file count and the sum of every file's
// global_size, for cmd/bbfsctl's describe dump.
func (s *Store) Stats() (count int, totalBytes uint64, err error) {
	row := s.db.QueryRow(`SELECT COUNT(1), COALESCE(SUM(global_size), 0) FROM file_attrs`)
	if err := row.Scan(&count, &totalBytes); err != nil {
		return 0, 0, bbfserr.Wrap("metastore.stats", bbfserr.IOError, err)
	}
	return count, totalBytes, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("metastore(%p)", s.db)
}
