package region

import (
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ghetzel/ipcseg/ipcerr"
	"github.com/ghetzel/ipcseg/osfile"
)

// posixShmDir is where this implementation resolves POSIX shm names,
// matching the shm_ring reference's observation that shm_open's namespace
// is, on Linux, simply a tmpfs mounted at /dev/shm — opening that path
// directly is equivalent to (and avoids a cgo dependency on) shm_open(3).
const posixShmDir = "/dev/shm"

// SharedMemory builds a MappedRegion backed by a POSIX shared memory
// object. Names follow POSIX convention and must begin with "/".
type SharedMemory struct {
	name      string
	size      uintptr
	offset    int64
	privilege Privilege
	perm      uint32
	mode      CreateMode
	log       *logrus.Entry
}

// NewSharedMemory starts a builder for the POSIX shm object named name
// (e.g. "/my-segment").
func NewSharedMemory(name string) *SharedMemory {
	return &SharedMemory{name: name, perm: DefaultPermissions, log: discardLog}
}

func (b *SharedMemory) WithSize(n uintptr) *SharedMemory { b.size = n; return b }

func (b *SharedMemory) WithOffset(n int64) *SharedMemory { b.offset = n; return b }

func (b *SharedMemory) WithPrivilege(p Privilege) *SharedMemory { b.privilege = p; return b }

func (b *SharedMemory) WithPermissions(perm uint32) *SharedMemory { b.perm = perm; return b }

func (b *SharedMemory) WithMode(m CreateMode) *SharedMemory { b.mode = m; return b }

func (b *SharedMemory) WithLogger(log *logrus.Entry) *SharedMemory { b.log = log; return b }

func (b *SharedMemory) resolvedPath() string {
	return posixShmDir + "/" + strings.TrimPrefix(b.name, "/")
}

// Map performs the configured create/open/open-or-create verb.
func (b *SharedMemory) Map() (*MappedRegion, error) {
	path := b.resolvedPath()
	wantSize := int64(b.size) + b.offset

	createFn := func() (int, error) {
		fd, err := unix.Open(path, b.privilege.openFlags()|unix.O_CREAT|unix.O_EXCL, b.perm)
		if err != nil {
			return 0, ipcerr.WrapErrno("shm open(create)", err)
		}

		if err := unix.Ftruncate(fd, wantSize); err != nil {
			unix.Close(fd)
			return 0, ipcerr.WrapErrno("ftruncate", err)
		}

		return fd, nil
	}

	openFn := func() (int, error) {
		fd, err := unix.Open(path, b.privilege.openFlags(), 0)
		if err != nil {
			return 0, ipcerr.WrapErrno("shm open", err)
		}

		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			unix.Close(fd)
			return 0, ipcerr.WrapErrno("fstat", err)
		}

		if st.Size < wantSize {
			if err := unix.Ftruncate(fd, wantSize); err != nil {
				unix.Close(fd)
				return 0, ipcerr.WrapErrno("ftruncate", err)
			}
		}

		return fd, nil
	}

	fd, err := resolveCreateMode(b.mode, createFn, openFn)
	if err != nil {
		return nil, err
	}

	h := osfile.New(fd)
	defer h.Close()

	if b.size == 0 && b.mode != Create {
		actual, err := h.Size()
		if err != nil {
			return nil, err
		}

		b.size = uintptr(actual - b.offset)
	}

	// Some kernels ignore the mode passed to the initial open(2); re-apply
	// it explicitly, per spec.md §6's "Permission" note.
	if err := h.Chmod(b.perm); err != nil {
		b.log.WithError(err).Debug("region: fchmod after shm open failed")
	}

	r, err := mapFD(h, b.offset, b.size, b.privilege)
	if err != nil {
		return nil, err
	}

	r.log = b.log

	return r, nil
}

// Unlink removes the named POSIX shm object.
func Unlink(name string) error {
	path := posixShmDir + "/" + strings.TrimPrefix(name, "/")

	if err := unix.Unlink(path); err != nil {
		return ipcerr.WrapErrno("unlink", err)
	}

	return nil
}
