package region

import (
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ghetzel/ipcseg/ipcerr"
)

// ftok reimplements the classic libc ftok(3) key derivation (device + inode
// + low 8 bits of id) since there is no cgo dependency on libc in this
// codebase; Go has no direct syscall equivalent to mix into an XSI key.
func ftok(path string, id int) (int32, error) {
	var st unix.Stat_t

	if err := unix.Stat(path, &st); err != nil {
		return 0, ipcerr.WrapErrno("stat", err)
	}

	key := (int32(id&0xff) << 24) | (int32(st.Dev&0xff) << 16) | int32(st.Ino&0xffff)

	return key, nil
}

// XsiSharedMemory builds a MappedRegion backed by a System V shared memory
// segment, keyed by (path, id) via ftok the way shmget(2) expects.
type XsiSharedMemory struct {
	path      string
	id        int
	size      uintptr
	privilege Privilege
	perm      uint32
	mode      CreateMode
	log       *logrus.Entry
}

// NewXsiSharedMemory starts a builder keyed by (path, id). id must be
// nonzero, matching the spec's "XSI keys are (ftok path, id) pairs with id
// != 0" naming convention.
func NewXsiSharedMemory(path string, id int) *XsiSharedMemory {
	return &XsiSharedMemory{path: path, id: id, perm: DefaultPermissions, log: discardLog}
}

func (b *XsiSharedMemory) WithSize(n uintptr) *XsiSharedMemory { b.size = n; return b }

func (b *XsiSharedMemory) WithPrivilege(p Privilege) *XsiSharedMemory { b.privilege = p; return b }

func (b *XsiSharedMemory) WithPermissions(perm uint32) *XsiSharedMemory { b.perm = perm; return b }

func (b *XsiSharedMemory) WithMode(m CreateMode) *XsiSharedMemory { b.mode = m; return b }

func (b *XsiSharedMemory) WithLogger(log *logrus.Entry) *XsiSharedMemory { b.log = log; return b }

// Map performs the configured create/open/open-or-create verb and attaches
// the resulting segment into this process's address space.
func (b *XsiSharedMemory) Map() (*MappedRegion, error) {
	if b.id == 0 {
		return nil, ipcerr.New(ipcerr.InvalidArgument, "xsi shared memory: id must be nonzero")
	}

	if b.privilege == ReadPrivate || b.privilege == CopyOnWrite {
		return nil, ipcerr.New(ipcerr.InvalidArgument, "xsi shared memory: only read-only and read-write privilege are supported")
	}

	key, err := ftok(b.path, b.id)
	if err != nil {
		return nil, err
	}

	createFn := func() (int, error) {
		id, err := unix.SysvShmGet(int(key), int(b.size), int(b.perm)|unix.IPC_CREAT|unix.IPC_EXCL)
		if err != nil {
			return 0, ipcerr.WrapErrno("shmget(create)", err)
		}

		return id, nil
	}

	openFn := func() (int, error) {
		id, err := unix.SysvShmGet(int(key), 0, 0)
		if err != nil {
			return 0, ipcerr.WrapErrno("shmget", err)
		}

		return id, nil
	}

	shmid, err := resolveCreateMode(b.mode, createFn, openFn)
	if err != nil {
		return nil, err
	}

	var ds unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(shmid, unix.IPC_STAT, &ds); err != nil {
		return nil, ipcerr.WrapErrno("shmctl(IPC_STAT)", err)
	}

	actualSize := uintptr(ds.Segsz)
	if b.size == 0 {
		b.size = actualSize
	}

	shmFlag := 0
	if !b.privilege.writable() {
		shmFlag = unix.SHM_RDONLY
	}

	data, err := unix.SysvShmAttach(shmid, 0, shmFlag)
	if err != nil {
		return nil, ipcerr.WrapErrno("shmat", err)
	}

	return &MappedRegion{
		alignedBase: uintptr(unsafe.Pointer(&data[0])),
		alignedSize: actualSize,
		pageOffset:  0,
		size:        b.size,
		privilege:   b.privilege,
		xsi:         true,
		xsiID:       shmid,
		log:         b.log,
	}, nil
}

// DestroySegment marks the XSI segment identified by shmid for removal;
// actual release happens once every attached process detaches.
func DestroySegment(shmid int) error {
	var ds unix.SysvShmDesc

	if _, err := unix.SysvShmCtl(shmid, unix.IPC_RMID, &ds); err != nil {
		return ipcerr.WrapErrno("shmctl(IPC_RMID)", err)
	}

	return nil
}
