package pathfs

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/avogabo/bbfs/internal/bbfserr"
)

// Errno translates an internal bbfserr.Kind to the POSIX errno a real
// intercept shim would set (§7 "Propagation"). SHMEM_TIMEOUT, MATCH_GAP,
// and MATCH_MISS all surface as plain EIO at this boundary — §8 scenario
// 5 specifies the shared-memory timeout itself returns EIO, and the
// reply-match failures are a client-internal refinement of the same
// underlying I/O failure.
func Errno(k bbfserr.Kind) syscall.Errno {
	switch k {
	case bbfserr.NotFound:
		return unix.ENOENT
	case bbfserr.Exists:
		return unix.EEXIST
	case bbfserr.IsDir:
		return unix.EISDIR
	case bbfserr.NotDir:
		return unix.ENOTDIR
	case bbfserr.NotEmpty:
		return unix.ENOTEMPTY
	case bbfserr.ReadOnly:
		return unix.EROFS
	case bbfserr.BadFD:
		return unix.EBADF
	case bbfserr.InvalidArg:
		return unix.EINVAL
	case bbfserr.Overflow:
		return unix.EOVERFLOW
	case bbfserr.OutOfMemory:
		return unix.ENOMEM
	case bbfserr.NameTooLong:
		return unix.ENAMETOOLONG
	case bbfserr.CrossDevice:
		return unix.EXDEV
	case bbfserr.FDExhausted:
		return unix.EMFILE
	case bbfserr.IOError, bbfserr.ShmemTimeout, bbfserr.MatchGap, bbfserr.MatchMiss:
		return unix.EIO
	case bbfserr.Unsupported:
		return unix.ENOTSUP
	default:
		return unix.EIO
	}
}

// ErrnoOf extracts a Kind from err via bbfserr.KindOf and translates it.
func ErrnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	return Errno(bbfserr.KindOf(err))
}
