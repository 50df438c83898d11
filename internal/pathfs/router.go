// Package pathfs implements spec §4.7/§6's path and fd routing, flat
// directory operations, stat augmentation, and the Kind→errno
// translation table sitting at the POSIX-intercept boundary. The
// interception itself (the symbol shim) is out of scope per §1; this
// package is what a real shim would call into.
package pathfs

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Router decides whether a path or fd belongs to this mount, per §6
// "Path routing": a path is ours iff its normalized form carries the
// configured mount prefix; an fd is ours iff its numeric value is ≥
// fd_limit, with client-side fds reported back as internal_fd+fd_limit.
type Router struct {
	MountPrefix string
	FDLimit     int
}

// Normalize applies Unicode NFC normalization and path cleaning before
// any prefix check or gfid hash, so that visually identical paths with
// differing Unicode decompositions hash to the same gfid.
func Normalize(p string) string {
	return path.Clean(norm.NFC.String(p))
}

// Owns reports whether the normalized form of p falls under the mount
// prefix, returning the normalized path for reuse by the caller.
func (r *Router) Owns(p string) (string, bool) {
	clean := Normalize(p)
	prefix := Normalize(r.MountPrefix)
	if clean == prefix {
		return clean, true
	}
	if strings.HasPrefix(clean, prefix+"/") {
		return clean, true
	}
	return clean, false
}

// ExternalFD maps an internal fd-table slot to the numeric value handed
// back to the application.
func (r *Router) ExternalFD(internal int) int {
	return internal + r.FDLimit
}

// InternalFD reverses ExternalFD, reporting whether external actually
// belongs to this mount (i.e. is ≥ FDLimit).
func (r *Router) InternalFD(external int) (int, bool) {
	if external < r.FDLimit {
		return 0, false
	}
	return external - r.FDLimit, true
}
