package executor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// siginfoChld mirrors the portion of the kernel's siginfo_t that waitid
// fills in for a SIGCHLD notification on x86_64: si_signo/si_errno/si_code
// at offsets 0/4/8, then the _sigchld union member (si_pid, si_uid,
// si_status) starting at offset 16. golang.org/x/sys/unix does not expose
// a typed waitid wrapper, so this package calls the raw syscall and
// overlays this struct on the result buffer.
type siginfoChld struct {
	Signo  int32
	Errno  int32
	Code   int32
	_      int32
	Pid    int32
	Uid    uint32
	Status int32
	_      int32
}

type waitidInfo struct {
	Pid    int32
	Code   int32
	Status int32
}

// waitid issues waitid(P_ALL, 0, &info, WEXITED|WSTOPPED|WNOWAIT|WALL). It
// does not retry on EINTR itself; the error is returned and the caller
// retries the call so it can re-drain signal flags between attempts, per
// spec.md §4.1's documented race. P_ALL rather than a single pinned pid
// is what lets this report state changes from any tracee the supervisor
// has accumulated, not just the original top-level child: WALL additionally
// makes it see stops from tracees whose real parent is that child (a
// clone/fork grandchild reparented under it in the process tree) rather
// than the waiting process itself.
func waitid() (waitidInfo, error) {
	var buf siginfoChld
	_, _, errno := unix.Syscall6(
		unix.SYS_WAITID,
		uintptr(unix.P_ALL),
		0,
		uintptr(unsafe.Pointer(&buf)),
		uintptr(unix.WEXITED|unix.WSTOPPED|unix.WNOWAIT|unix.WALL),
		0, 0,
	)
	if errno != 0 {
		return waitidInfo{}, errno
	}
	return waitidInfo{Pid: buf.Pid, Code: buf.Code, Status: buf.Status}, nil
}
