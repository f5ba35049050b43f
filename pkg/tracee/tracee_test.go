package tracee

import "testing"

func TestArchString(t *testing.T) {
	cases := []struct {
		arch Arch
		want string
	}{
		{UNKNOWN, "UNKNOWN"},
		{X86, "x86"},
		{X86_64, "x86_64"},
		{Arch(99), "UNKNOWN"},
	}
	for _, c := range cases {
		if got := c.arch.String(); got != c.want {
			t.Errorf("Arch(%d).String() = %q, want %q", c.arch, got, c.want)
		}
	}
}

func TestGetSyscallNumberUnknownArch(t *testing.T) {
	tr := New(1)
	tr.haveRegs = true
	if _, err := tr.GetSyscallNumber(); err == nil {
		t.Fatal("expected error for unknown syscall arch, got nil")
	}
}

func TestGetSyscallNumberNoRegs(t *testing.T) {
	tr := New(1)
	tr.SetSyscallArch(X86_64)
	if _, err := tr.GetSyscallNumber(); err == nil {
		t.Fatal("expected error before any register snapshot, got nil")
	}
}

func TestGetSyscallArgumentX8664Order(t *testing.T) {
	tr := New(1)
	tr.SetSyscallArch(X86_64)
	tr.haveRegs = true
	tr.regs.Rdi = 10
	tr.regs.Rsi = 11
	tr.regs.Rdx = 12
	tr.regs.R10 = 13
	tr.regs.R8 = 14
	tr.regs.R9 = 15

	want := []uint64{10, 11, 12, 13, 14, 15}
	for i, w := range want {
		got, err := tr.GetSyscallArgument(i)
		if err != nil {
			t.Fatalf("argument %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("argument %d = %d, want %d", i, got, w)
		}
	}
}

func TestGetSyscallArgumentOutOfRange(t *testing.T) {
	tr := New(1)
	tr.SetSyscallArch(X86_64)
	tr.haveRegs = true
	if _, err := tr.GetSyscallArgument(6); err == nil {
		t.Fatal("expected error for out-of-range argument index, got nil")
	}
	if _, err := tr.GetSyscallArgument(-1); err == nil {
		t.Fatal("expected error for negative argument index, got nil")
	}
}

func TestGetSyscallArgumentX86Truncates(t *testing.T) {
	tr := New(1)
	tr.SetSyscallArch(X86)
	tr.haveRegs = true
	// Upper 32 bits must be discarded on the 32-bit calling convention.
	tr.regs.Rbx = 0xFFFFFFFF00000042
	got, err := tr.GetSyscallArgument(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0x42 {
		t.Errorf("argument 0 = %#x, want 0x42", got)
	}
}
