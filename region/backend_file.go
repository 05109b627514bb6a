package region

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ghetzel/ipcseg/ipcerr"
	"github.com/ghetzel/ipcseg/osfile"
)

// FileMapping builds a MappedRegion backed by a regular filesystem path.
type FileMapping struct {
	path      string
	size      uintptr
	offset    int64
	privilege Privilege
	perm      uint32
	mode      CreateMode
	log       *logrus.Entry
}

// NewFileMapping starts a builder for the file at path.
func NewFileMapping(path string) *FileMapping {
	return &FileMapping{path: path, perm: DefaultPermissions, log: discardLog}
}

func (b *FileMapping) WithSize(n uintptr) *FileMapping { b.size = n; return b }

func (b *FileMapping) WithOffset(n int64) *FileMapping { b.offset = n; return b }

func (b *FileMapping) WithPrivilege(p Privilege) *FileMapping { b.privilege = p; return b }

func (b *FileMapping) WithPermissions(perm uint32) *FileMapping { b.perm = perm; return b }

func (b *FileMapping) WithMode(m CreateMode) *FileMapping { b.mode = m; return b }

func (b *FileMapping) WithLogger(log *logrus.Entry) *FileMapping { b.log = log; return b }

// Map performs the configured create/open/open-or-create verb and returns
// the resulting MappedRegion. If b.size is zero on an Open, the existing
// file's actual length (minus the configured offset) is used instead, so a
// caller reattaching to a segment it did not create need not already know
// its size.
func (b *FileMapping) Map() (*MappedRegion, error) {
	wantSize := int64(b.size) + b.offset

	createFn := func() (int, error) {
		fd, err := unix.Open(b.path, b.privilege.openFlags()|unix.O_CREAT|unix.O_EXCL, b.perm)
		if err != nil {
			return 0, ipcerr.WrapErrno("open(create)", err)
		}

		if err := unix.Ftruncate(fd, wantSize); err != nil {
			unix.Close(fd)
			return 0, ipcerr.WrapErrno("ftruncate", err)
		}

		return fd, nil
	}

	openFn := func() (int, error) {
		fd, err := unix.Open(b.path, b.privilege.openFlags(), 0)
		if err != nil {
			return 0, ipcerr.WrapErrno("open", err)
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

	if err := h.Chmod(b.perm); err != nil {
		b.log.WithError(err).Debug("region: fchmod after open failed, continuing with inherited mode")
	}

	r, err := mapFD(h, b.offset, b.size, b.privilege)
	if err != nil {
		return nil, err
	}

	r.log = b.log

	return r, nil
}
