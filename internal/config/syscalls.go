package config

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/sio2box/jail/pkg/tracee"
)

// x8664Syscalls names the syscalls a judge's policy document most commonly
// needs to write a rule against: the ones a sandboxed solution's libc
// startup, I/O, memory management, and process lifecycle actually use.
// It is deliberately not exhaustive; anything missing is still reachable
// by number.
var x8664Syscalls = map[string]uintptr{
	"read": uintptr(unix.SYS_READ), "write": uintptr(unix.SYS_WRITE),
	"open": uintptr(unix.SYS_OPEN), "openat": uintptr(unix.SYS_OPENAT),
	"openat2": uintptr(unix.SYS_OPENAT2), "close": uintptr(unix.SYS_CLOSE),
	"stat": uintptr(unix.SYS_STAT), "fstat": uintptr(unix.SYS_FSTAT),
	"lstat": uintptr(unix.SYS_LSTAT), "statx": uintptr(unix.SYS_STATX),
	"lseek": uintptr(unix.SYS_LSEEK), "mmap": uintptr(unix.SYS_MMAP),
	"mprotect": uintptr(unix.SYS_MPROTECT), "munmap": uintptr(unix.SYS_MUNMAP),
	"brk": uintptr(unix.SYS_BRK), "rt_sigaction": uintptr(unix.SYS_RT_SIGACTION),
	"rt_sigprocmask": uintptr(unix.SYS_RT_SIGPROCMASK),
	"ioctl":          uintptr(unix.SYS_IOCTL), "access": uintptr(unix.SYS_ACCESS),
	"pipe": uintptr(unix.SYS_PIPE), "pipe2": uintptr(unix.SYS_PIPE2),
	"dup": uintptr(unix.SYS_DUP), "dup2": uintptr(unix.SYS_DUP2), "dup3": uintptr(unix.SYS_DUP3),
	"fcntl": uintptr(unix.SYS_FCNTL), "getpid": uintptr(unix.SYS_GETPID),
	"getppid": uintptr(unix.SYS_GETPPID), "exit": uintptr(unix.SYS_EXIT),
	"exit_group": uintptr(unix.SYS_EXIT_GROUP), "kill": uintptr(unix.SYS_KILL),
	"tgkill": uintptr(unix.SYS_TGKILL), "clone": uintptr(unix.SYS_CLONE),
	"fork": uintptr(unix.SYS_FORK), "vfork": uintptr(unix.SYS_VFORK),
	"execve": uintptr(unix.SYS_EXECVE), "execveat": uintptr(unix.SYS_EXECVEAT),
	"wait4": uintptr(unix.SYS_WAIT4), "ptrace": uintptr(unix.SYS_PTRACE),
	"socket": uintptr(unix.SYS_SOCKET), "connect": uintptr(unix.SYS_CONNECT),
	"bind": uintptr(unix.SYS_BIND), "listen": uintptr(unix.SYS_LISTEN),
	"accept": uintptr(unix.SYS_ACCEPT), "sendto": uintptr(unix.SYS_SENDTO),
	"recvfrom": uintptr(unix.SYS_RECVFROM), "unlink": uintptr(unix.SYS_UNLINK),
	"unlinkat": uintptr(unix.SYS_UNLINKAT), "mkdir": uintptr(unix.SYS_MKDIR),
	"rmdir": uintptr(unix.SYS_RMDIR), "chdir": uintptr(unix.SYS_CHDIR),
	"getcwd": uintptr(unix.SYS_GETCWD), "getrandom": uintptr(unix.SYS_GETRANDOM),
	"clock_gettime": uintptr(unix.SYS_CLOCK_GETTIME), "gettimeofday": uintptr(unix.SYS_GETTIMEOFDAY),
	"nanosleep": uintptr(unix.SYS_NANOSLEEP), "futex": uintptr(unix.SYS_FUTEX),
	"set_tid_address": uintptr(unix.SYS_SET_TID_ADDRESS), "set_robust_list": uintptr(unix.SYS_SET_ROBUST_LIST),
	"prlimit64": uintptr(unix.SYS_PRLIMIT64), "arch_prctl": uintptr(unix.SYS_ARCH_PRCTL),
	"sigaltstack": uintptr(unix.SYS_SIGALTSTACK), "madvise": uintptr(unix.SYS_MADVISE),
	"getrlimit": uintptr(unix.SYS_GETRLIMIT), "setrlimit": uintptr(unix.SYS_SETRLIMIT),
}

// syscallNumber resolves a RuleConfig's target syscall against arch. A
// numeric Number always takes precedence over Syscall (the only option
// for the 32-bit X86 target this build's unix constants don't name).
func syscallNumber(arch tracee.Arch, rc RuleConfig) (uintptr, error) {
	if rc.Number != 0 {
		return uintptr(rc.Number), nil
	}
	if rc.Syscall == "" {
		return 0, fmt.Errorf("no syscall name or number given")
	}
	if arch != tracee.X86_64 {
		return 0, fmt.Errorf("syscall name %q requires policy.rules[].number for architecture %s", rc.Syscall, arch)
	}
	n, ok := x8664Syscalls[rc.Syscall]
	if !ok {
		return 0, fmt.Errorf("unrecognized syscall name %q; use policy.rules[].number instead", rc.Syscall)
	}
	return n, nil
}
