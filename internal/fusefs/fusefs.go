// Package fusefs exposes a read-only debug view of a mount's laminated
// files over bazil.org/fuse, for cmd/bbfsctl's `mount` subcommand. It is
// strictly observational: only laminated files are listed (their bytes
// are frozen, §4.6), the tree is flat (full directory semantics are a
// spec Non-goal), and every node is read-only regardless of the
// underlying file's mode.
package fusefs

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"golang.org/x/sys/unix"

	"github.com/avogabo/bbfs/internal/bbfs"
)

// MountOptions mirrors the teacher's fusefs.MountOptions shape.
type MountOptions struct {
	Mountpoint string
	AllowOther bool
}

type Mount struct {
	conn *fuse.Conn
}

func (m *Mount) Close() error {
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}

// Start mounts filesystem at opts.Mountpoint, detaching any stale mount
// left behind by a prior crashed run first.
func Start(ctx context.Context, opts MountOptions, filesystem fs.FS) (*Mount, error) {
	detachStaleMount(opts.Mountpoint)

	if err := os.MkdirAll(opts.Mountpoint, 0o755); err != nil {
		return nil, err
	}
	mountOpts := []fuse.MountOption{
		fuse.ReadOnly(),
		fuse.FSName("bbfs"),
		fuse.Subtype("bbfs"),
	}
	if opts.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	c, err := fuse.Mount(opts.Mountpoint, mountOpts...)
	if err != nil {
		return nil, err
	}
	m := &Mount{conn: c}
	go func() { _ = fs.Serve(c, filesystem) }()
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	return m, nil
}

func detachStaleMount(mp string) {
	if strings.TrimSpace(mp) == "" {
		return
	}
	_ = unix.Unmount(mp, unix.MNT_DETACH)
	_, _ = exec.Command("fusermount3", "-uz", mp).CombinedOutput()
	_, _ = exec.Command("umount", "-l", mp).CombinedOutput()
	time.Sleep(150 * time.Millisecond)
}

// LaminatedFS is the fs.FS root: a single flat directory listing every
// laminated file under the client's mount.
type LaminatedFS struct {
	Client *bbfs.Client
}

func (l *LaminatedFS) Root() (fs.Node, error) {
	return &dir{client: l.Client}, nil
}

type dir struct{ client *bbfs.Client }

func (d *dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0o555
	return nil
}

func (d *dir) relName(path string) (string, bool) {
	prefix := d.client.Router.MountPrefix
	if prefix != "/" {
		prefix += "/"
	}
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(path, prefix)
	if rel == "" || strings.Contains(rel, "/") {
		return "", false // flat view only (Non-goal: nested directory semantics)
	}
	return rel, true
}

func (d *dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	out := make([]fuse.Dirent, 0)
	for _, p := range d.client.Files.Paths() {
		rel, ok := d.relName(p)
		if !ok {
			continue
		}
		fid, ok := d.client.Files.Lookup(p)
		if !ok {
			continue
		}
		meta, ok := d.client.Files.Get(fid)
		if !ok || !meta.Laminated || meta.IsDir {
			continue
		}
		out = append(out, fuse.Dirent{Name: rel, Type: fuse.DT_File})
	}
	return out, nil
}

func (d *dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	prefix := d.client.Router.MountPrefix
	if prefix != "/" {
		prefix += "/"
	}
	fid, ok := d.client.Files.Lookup(prefix + name)
	if !ok {
		return nil, fuse.ENOENT
	}
	meta, ok := d.client.Files.Get(fid)
	if !ok || !meta.Laminated || meta.IsDir {
		return nil, fuse.ENOENT
	}
	return &file{client: d.client, path: prefix + name}, nil
}

type file struct {
	client *bbfs.Client
	path   string
}

func (f *file) Attr(ctx context.Context, a *fuse.Attr) error {
	fid, ok := f.client.Files.Lookup(f.path)
	if !ok {
		return fuse.ENOENT
	}
	meta, ok := f.client.Files.Get(fid)
	if !ok {
		return fuse.ENOENT
	}
	a.Mode = 0o444
	a.Size = uint64(meta.GlobalSize)
	return nil
}

// ReadAll opens the file read-only through the client (exercising the
// same Open/PRead/CloseFD path a real caller would), reads it in full,
// and closes it.
func (f *file) ReadAll(ctx context.Context) ([]byte, error) {
	fid, ok := f.client.Files.Lookup(f.path)
	if !ok {
		return nil, fuse.ENOENT
	}
	meta, ok := f.client.Files.Get(fid)
	if !ok {
		return nil, fuse.ENOENT
	}

	extFD, err := f.client.Open(f.path, 0o444, true, false, false, false)
	if err != nil {
		return nil, err
	}
	defer f.client.CloseFD(extFD)

	buf := make([]byte, meta.GlobalSize)
	total := 0
	for total < len(buf) {
		n, err := f.client.PRead(extFD, buf[total:], int64(total))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return buf[:total], nil
}
