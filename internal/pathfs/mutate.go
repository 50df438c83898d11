package pathfs

import (
	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/filetable"
)

const writeBits = 0o200 | 0o020 | 0o002 // S_IWUSR | S_IWGRP | S_IWOTH

// Laminator is the subset of internal/sync.Path that Chmod needs to
// trigger the freeze transition.
type Laminator interface {
	Laminate(fid filetable.FID) error
}

// Chmod implements the chmod-triggered lamination of §4.6: clearing every
// write bit on a previously writable file laminates it. A laminated file
// rejects all further chmod calls, matching "no field may change" once
// frozen.
func (o *Ops) Chmod(p string, mode uint32, lam Laminator) error {
	norm, ok := o.Router.Owns(p)
	if !ok {
		return bbfserr.New("pathfs.chmod", bbfserr.CrossDevice)
	}
	fid, ok := o.Files.Lookup(norm)
	if !ok {
		return bbfserr.New("pathfs.chmod", bbfserr.NotFound)
	}
	meta, _ := o.Files.Get(fid)
	if meta.Laminated {
		return bbfserr.New("pathfs.chmod", bbfserr.ReadOnly)
	}

	clearsWrite := mode&writeBits == 0
	wasWritable := meta.Mode&writeBits != 0
	if clearsWrite && wasWritable {
		if err := lam.Laminate(fid); err != nil {
			return err
		}
	}
	meta.Mode = mode
	return nil
}

// Truncate implements the disallowed-on-laminated decision recorded in
// DESIGN.md's Open Question #3: any truncate on a laminated file returns
// READ_ONLY regardless of direction.
func (o *Ops) Truncate(p string, size int64) error {
	norm, ok := o.Router.Owns(p)
	if !ok {
		return bbfserr.New("pathfs.truncate", bbfserr.CrossDevice)
	}
	fid, ok := o.Files.Lookup(norm)
	if !ok {
		return bbfserr.New("pathfs.truncate", bbfserr.NotFound)
	}
	meta, _ := o.Files.Get(fid)
	if meta.IsDir {
		return bbfserr.New("pathfs.truncate", bbfserr.IsDir)
	}
	if meta.Laminated {
		return bbfserr.New("pathfs.truncate", bbfserr.ReadOnly)
	}
	if size < 0 {
		return bbfserr.New("pathfs.truncate", bbfserr.InvalidArg)
	}

	meta.LocalSize = size
	if size > meta.LogSize {
		meta.LogSize = size
	}
	meta.NeedsSync = true
	return nil
}
