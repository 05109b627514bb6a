package region

import (
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ghetzel/ipcseg/ipcerr"
)

// AnonShared builds a MappedRegion with MAP_ANONYMOUS|MAP_SHARED: no name,
// no backing file, shared only among the mappings a single process (or its
// fork children) produces from this one call. There is no create/open/
// open-or-create distinction; every call produces a fresh mapping.
type AnonShared struct {
	size uintptr
	log  *logrus.Entry
}

// NewAnonShared starts a builder for an anonymous mapping of the given
// size.
func NewAnonShared(size uintptr) *AnonShared {
	return &AnonShared{size: size, log: discardLog}
}

func (b *AnonShared) WithLogger(log *logrus.Entry) *AnonShared { b.log = log; return b }

// Map creates the anonymous mapping.
func (b *AnonShared) Map() (*MappedRegion, error) {
	if b.size == 0 {
		return nil, ipcerr.New(ipcerr.InvalidArgument, "anon shared: size must be nonzero")
	}

	data, err := unix.Mmap(-1, 0, int(b.size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, ipcerr.WrapErrno("mmap(anonymous)", err)
	}

	return &MappedRegion{
		alignedBase: uintptr(unsafe.Pointer(&data[0])),
		alignedSize: b.size,
		pageOffset:  0,
		size:        b.size,
		privilege:   ReadWrite,
		log:         b.log,
	}, nil
}
