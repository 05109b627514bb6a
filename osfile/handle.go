// Package osfile owns a single OS file descriptor on behalf of a backing
// store builder. It is deliberately thin: the spec treats it as the leaf of
// the layering, with every other package (region, segment, managed) built
// on top of it.
package osfile

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ghetzel/ipcseg/ipcerr"
)

// Handle is a move-only wrapper around a file descriptor. Its zero value is
// not usable; always obtain one through New. Copying a Handle by value and
// using both copies independently will double-close the descriptor, so
// callers should only ever hold a *Handle.
type Handle struct {
	fd     int
	closed bool
}

// New wraps an already-open file descriptor.
func New(fd int) *Handle {
	return &Handle{fd: fd}
}

// FD returns the underlying descriptor, for callers (mmap, shm backends)
// that need to pass it to further syscalls.
func (h *Handle) FD() int {
	return h.fd
}

// Size returns the backing object's current byte length.
func (h *Handle) Size() (int64, error) {
	var st unix.Stat_t

	if err := unix.Fstat(h.fd, &st); err != nil {
		return 0, ipcerr.WrapErrno("fstat", err)
	}

	return st.Size, nil
}

// Truncate sets the backing object's length. It is safe to call repeatedly
// with non-decreasing values, which is all this library ever does.
func (h *Handle) Truncate(size int64) error {
	if err := unix.Ftruncate(h.fd, size); err != nil {
		return ipcerr.WrapErrno("ftruncate", err)
	}

	return nil
}

// Chmod applies permission bits to the backing object. Some kernels ignore
// the mode passed to shm_open's first call, so callers re-apply it here.
func (h *Handle) Chmod(perm uint32) error {
	if err := unix.Fchmod(h.fd, perm); err != nil {
		return ipcerr.WrapErrno("fchmod", err)
	}

	return nil
}

// Close releases the descriptor. Errors on close are logged, not returned,
// matching the teacher's habit of never letting a Close failure mask the
// operation that preceded it. Close is idempotent.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}

	h.closed = true

	if err := unix.Close(h.fd); err != nil {
		logrus.WithError(err).Debug("osfile: close failed")
	}

	return nil
}
