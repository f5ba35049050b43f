package seccomp

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Load installs prog as the calling thread's seccomp filter. It must be
// called from the child after the other post-fork setup (capability drop,
// earlier listeners' on_post_fork_child) and before execv, per spec.md §4.3
// "Loading": it sets PR_SET_NO_NEW_PRIVS first so the kernel accepts the
// filter without CAP_SYS_ADMIN, then installs the program with
// PR_SET_SECCOMP in SECCOMP_MODE_FILTER.
func Load(prog *unix.SockFprog) error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("seccomp: prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}
	_, _, errno := unix.RawSyscall(unix.SYS_PRCTL, unix.PR_SET_SECCOMP, unix.SECCOMP_MODE_FILTER, uintptr(unsafe.Pointer(prog)))
	if errno != 0 {
		return fmt.Errorf("seccomp: prctl(PR_SET_SECCOMP): %w", errno)
	}
	return nil
}
