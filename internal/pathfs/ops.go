package pathfs

import (
	"strings"

	"github.com/avogabo/bbfs/internal/bbfserr"
	"github.com/avogabo/bbfs/internal/filetable"
)

// dirMode marks a Meta record as a directory entry; the file table itself
// only cares about the IsDir bit, this is just a conventional mode bit
// pattern for directories created through Ops.Mkdir.
const dirMode = 0o040000

// Ops implements the flat directory and rename/unlink semantics of §4.7
// against a shared file table, routed through a Router so cross-mount
// renames are rejected before ever touching the table.
type Ops struct {
	Router *Router
	Files  *filetable.Table
}

// Mkdir rejects an already-existing path (§4.7).
func (o *Ops) Mkdir(p string, mode uint32) error {
	norm, ok := o.Router.Owns(p)
	if !ok {
		return bbfserr.New("pathfs.mkdir", bbfserr.CrossDevice)
	}
	if _, ok := o.Files.Lookup(norm); ok {
		return bbfserr.New("pathfs.mkdir", bbfserr.Exists)
	}
	_, _, err := o.Files.Create(norm, mode|dirMode, true)
	return err
}

// Rmdir rejects the mount root, a non-existent path, a non-directory,
// and a non-empty directory (§4.7). The mount root case maps to
// NotEmpty — the closest taxonomy member to POSIX's EBUSY, which has no
// corresponding bbfserr.Kind.
func (o *Ops) Rmdir(p string) error {
	norm, ok := o.Router.Owns(p)
	if !ok {
		return bbfserr.New("pathfs.rmdir", bbfserr.CrossDevice)
	}
	if norm == Normalize(o.Router.MountPrefix) {
		return bbfserr.New("pathfs.rmdir", bbfserr.NotEmpty)
	}
	fid, ok := o.Files.Lookup(norm)
	if !ok {
		return bbfserr.New("pathfs.rmdir", bbfserr.NotFound)
	}
	meta, _ := o.Files.Get(fid)
	if !meta.IsDir {
		return bbfserr.New("pathfs.rmdir", bbfserr.NotDir)
	}
	childPrefix := norm + "/"
	for _, other := range o.Files.Paths() {
		if other != norm && strings.HasPrefix(other, childPrefix) {
			return bbfserr.New("pathfs.rmdir", bbfserr.NotEmpty)
		}
	}
	return o.Files.RemoveDir(norm)
}

// Unlink rejects directories with IS_DIR (§4.7); filetable.Unlink already
// enforces this, Ops just routes and normalizes first.
func (o *Ops) Unlink(p string) error {
	norm, ok := o.Router.Owns(p)
	if !ok {
		return bbfserr.New("pathfs.unlink", bbfserr.CrossDevice)
	}
	return o.Files.Unlink(norm)
}

// Rename renames within the mount; cross-mount returns CROSS_DEVICE
// (§4.7, §8 scenario 6). Both src and dst must resolve under the same
// mount prefix.
func (o *Ops) Rename(src, dst string) error {
	normSrc, srcOwned := o.Router.Owns(src)
	normDst, dstOwned := o.Router.Owns(dst)
	if !srcOwned || !dstOwned {
		return bbfserr.New("pathfs.rename", bbfserr.CrossDevice)
	}
	return o.Files.Rename(normSrc, normDst)
}
