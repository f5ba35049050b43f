package seccomp

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/sio2box/jail/pkg/tracee"
)

func TestEncodeAction(t *testing.T) {
	if got := encodeAction(Allow); got != retAllow {
		t.Errorf("encodeAction(Allow) = %#x, want %#x", got, retAllow)
	}
	if got := encodeAction(Kill); got != retKillProcess {
		t.Errorf("encodeAction(Kill) = %#x, want %#x", got, retKillProcess)
	}
	if got, want := encodeAction(Errno(13)), uint32(retErrno|13); got != want {
		t.Errorf("encodeAction(Errno(13)) = %#x, want %#x", got, want)
	}
	if got, want := encodeAction(Trace(7)), uint32(retTrace|7); got != want {
		t.Errorf("encodeAction(Trace(7)) = %#x, want %#x", got, want)
	}
}

func TestValidateRejectsUnknownSyscallWithDefaultAllow(t *testing.T) {
	p := Policy{
		Arch:    tracee.X86_64,
		Default: Allow,
		Rules: SyscallRules{
			100000: {{Action: Kill}},
		},
	}
	if err := validate(p); err == nil {
		t.Fatal("expected validate to reject an out-of-range syscall under a default-ALLOW policy")
	}
}

func TestValidateAllowsUnknownSyscallWithDefaultKill(t *testing.T) {
	p := Policy{
		Arch:    tracee.X86_64,
		Default: Kill,
		Rules: SyscallRules{
			100000: {{Action: Allow}},
		},
	}
	if err := validate(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClonePolicyIsIndependent(t *testing.T) {
	orig := Policy{
		Arch:    tracee.X86_64,
		Default: Kill,
		Rules: SyscallRules{
			1: {{Args: [6]*ArgMatcher{EqualTo(5)}, Action: Allow}},
		},
	}
	clone := ClonePolicy(orig)
	clone.Rules[1][0].Args[0].Value = 9
	if orig.Rules[1][0].Args[0].Value != 5 {
		t.Fatalf("mutating the clone affected the original: got %d, want 5", orig.Rules[1][0].Args[0].Value)
	}
}

func TestBuildProgramCompilesSimplePolicy(t *testing.T) {
	p := Policy{
		Arch:    tracee.X86_64,
		Default: Kill,
		Rules: SyscallRules{
			uintptr(unix.SYS_WRITE): {
				{Args: [6]*ArgMatcher{EqualTo(1)}, Action: Allow},
			},
			uintptr(unix.SYS_EXIT_GROUP): {},
		},
	}
	prog, err := BuildProgram(p)
	if err != nil {
		t.Fatalf("BuildProgram: %v", err)
	}
	if prog.Len == 0 || prog.Filter == nil {
		t.Fatal("BuildProgram returned an empty program")
	}
}

func TestBuildProgramRejectsUnknownArch(t *testing.T) {
	p := Policy{Arch: tracee.UNKNOWN, Default: Kill}
	if _, err := BuildProgram(p); err == nil {
		t.Fatal("expected BuildProgram to reject an UNKNOWN architecture")
	}
}
