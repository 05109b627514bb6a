package managed

import (
	"github.com/gofrs/flock"

	"github.com/ghetzel/ipcseg/ipcerr"
)

// crashHeartbeat is an optional, best-effort liveness signal: a process
// holding this advisory lock is presumed alive, and its release (including
// by the kernel on process death) is what a monitor watches for. It plays no
// part in correctness — every Managed facade operates correctly with it
// absent — it exists purely so an external supervisor has something to poll
// instead of rolling its own PID-file convention.
type crashHeartbeat struct {
	lock *flock.Flock
}

func newCrashHeartbeat(path string) (*crashHeartbeat, error) {
	l := flock.New(path + ".heartbeat")

	ok, err := l.TryLock()
	if err != nil {
		return nil, ipcerr.Wrap(ipcerr.IO, "failed to acquire crash-recovery heartbeat lock", err)
	}

	if !ok {
		return nil, ipcerr.New(ipcerr.AlreadyExists, "crash-recovery heartbeat lock is already held by another process")
	}

	return &crashHeartbeat{lock: l}, nil
}

func (h *crashHeartbeat) Close() error {
	return h.lock.Unlock()
}
