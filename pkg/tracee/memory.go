package tracee

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// ReadMemoryString copies up to limit bytes out of the tracee's address
// space starting at addr and returns the bytes up to (not including) the
// first NUL. It is implemented as a single cross-process vectored read
// (process_vm_readv), never the historical word-at-a-time PTRACE_PEEKTEXT
// loop: that approach mishandles sign extension on partial words and cannot
// distinguish a legitimate zero word from a failed peek.
func (t *Tracee) ReadMemoryString(addr uintptr, limit int) (string, error) {
	if limit <= 0 {
		return "", fmt.Errorf("tracee: non-positive read limit %d", limit)
	}

	buf := make([]byte, limit)
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(limit)}}
	remote := []unix.RemoteIovec{{Base: addr, Len: limit}}

	n, err := unix.ProcessVMReadv(t.pid, local, remote, 0)
	if err != nil {
		return "", fmt.Errorf("process_vm_readv: %w", err)
	}
	buf = buf[:n]

	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i]), nil
	}
	return "", fmt.Errorf("tracee: string at %#x exceeds limit %d bytes with no NUL terminator", addr, limit)
}
