package main

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/sio2box/jail/pkg/tracee"
)

// hostTraceArch maps the binary's own build architecture to the syscall
// calling convention the tracer should expect from the child it execs
// (spec.md restricts this engine to x86/x86_64 Linux).
func hostTraceArch() (tracee.Arch, error) {
	switch runtime.GOARCH {
	case "amd64":
		return tracee.X86_64, nil
	case "386":
		return tracee.X86, nil
	default:
		return tracee.UNKNOWN, fmt.Errorf("boxjail: unsupported architecture %q", runtime.GOARCH)
	}
}

// kernelRelease reports the running kernel's uname release string, the
// same value Config.CheckKernelVersion compares against.
func kernelRelease() (string, bool) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", false
	}
	end := 0
	for end < len(uts.Release) && uts.Release[end] != 0 {
		end++
	}
	b := make([]byte, end)
	for i := 0; i < end; i++ {
		b[i] = byte(uts.Release[i])
	}
	return string(b), true
}
