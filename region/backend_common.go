package region

import (
	"io"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ghetzel/ipcseg/ipcerr"
	"github.com/ghetzel/ipcseg/osfile"
)

var discardLog = logrus.NewEntry(func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}())

// mapFD performs the page-offset fixup dance described in spec.md §4.3: it
// maps size+pageOffset bytes starting at the page below offset, then hands
// back a MappedRegion whose logical base sits exactly at the caller's
// requested offset. It takes the leaf osfile.Handle rather than a raw
// descriptor so every non-XSI backend shares the same fd-ownership wrapper
// (§4.1), even though the handle's only remaining job by this point is to
// supply FD() to the mmap syscall below.
func mapFD(h *osfile.Handle, offset int64, size uintptr, priv Privilege) (*MappedRegion, error) {
	ps := int64(pageSize())

	pageOff := offset % ps
	if pageOff < 0 {
		pageOff += ps
	}

	outerOffset := offset - pageOff
	alignedSize := uintptr(pageOff) + size

	data, err := unix.Mmap(h.FD(), outerOffset, int(alignedSize), priv.protFlags(), priv.mapFlags())
	if err != nil {
		return nil, ipcerr.WrapErrno("mmap", err)
	}

	return &MappedRegion{
		alignedBase: uintptr(unsafe.Pointer(&data[0])),
		alignedSize: alignedSize,
		pageOffset:  uintptr(pageOff),
		size:        size,
		privilege:   priv,
		log:         discardLog,
	}, nil
}

// resolveCreateMode runs the create/open/open-or-create verb dispatch
// common to every non-anonymous backend. create/open are callbacks that
// attempt exactly one of the two underlying syscalls each.
func resolveCreateMode(mode CreateMode, create, open func() (int, error)) (int, error) {
	switch mode {
	case Create:
		return create()
	case Open:
		return open()
	default: // OpenOrCreate
		for {
			fd, err := create()
			if err == nil {
				return fd, nil
			}

			if !ipcerr.Is(err, ipcerr.AlreadyExists) {
				return 0, err
			}

			fd, err = open()
			if err == nil {
				return fd, nil
			}

			if !ipcerr.Is(err, ipcerr.NotFound) {
				return 0, err
			}
			// lost the race to a concurrent remover; retry create.
		}
	}
}
