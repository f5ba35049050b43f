package tracer

import (
	"reflect"
	"testing"

	"github.com/sio2box/jail/pkg/tracee"
)

func TestRegistryOrdering(t *testing.T) {
	r := newRegistry()
	for _, pid := range []int{30, 10, 20} {
		r.insert(tracee.New(pid))
	}
	if got, want := r.pids(), []int{10, 20, 30}; !reflect.DeepEqual(got, want) {
		t.Fatalf("pids() = %v, want %v", got, want)
	}
	if r.len() != 3 {
		t.Fatalf("len() = %d, want 3", r.len())
	}
}

func TestRegistryRemove(t *testing.T) {
	r := newRegistry()
	r.insert(tracee.New(5))
	r.insert(tracee.New(6))
	r.remove(5)
	if _, ok := r.get(5); ok {
		t.Fatal("expected pid 5 to be gone after remove")
	}
	if _, ok := r.get(6); !ok {
		t.Fatal("expected pid 6 to remain")
	}
	if r.len() != 1 {
		t.Fatalf("len() = %d, want 1", r.len())
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindSyscallEntry:   "syscall-entry",
		KindSyscallExit:    "syscall-exit",
		KindSeccomp:        "seccomp",
		KindClone:          "clone",
		KindFork:           "fork",
		KindVfork:          "vfork",
		KindExec:           "exec",
		KindSignalDelivery: "signal-delivery",
		KindExit:           "exit",
		Kind(99):           "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
