package config

import "testing"

func TestLoadValidConfig(t *testing.T) {
	data := []byte(`
[program]
path = "/bin/echo"
argv = ["hi"]

[limits]
memory = "256MiB"
wall_clock_ms = 1000

[policy]
name = "default"
default = "kill"
`)
	cfg, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Program.Path != "/bin/echo" {
		t.Errorf("Program.Path = %q", cfg.Program.Path)
	}
	if got, want := cfg.MemoryLimitBytes(), int64(256*1024*1024); got != want {
		t.Errorf("MemoryLimitBytes() = %d, want %d", got, want)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	data := []byte(`
[program]
path = "/bin/echo"
bogus_key = true
`)
	if _, err := Load(data); err == nil {
		t.Fatal("expected Load to reject an unknown key")
	}
}

func TestLoadRejectsMissingProgramPath(t *testing.T) {
	data := []byte(`[limits]
memory = "1MiB"
`)
	if _, err := Load(data); err == nil {
		t.Fatal("expected Load to reject a missing program.path")
	}
}

func TestLoadRejectsMalformedLimit(t *testing.T) {
	data := []byte(`
[program]
path = "/bin/echo"

[limits]
memory = "not-a-size"
`)
	if _, err := Load(data); err == nil {
		t.Fatal("expected Load to reject a malformed limits.memory string")
	}
}

func TestLoadRejectsBadPolicyDefault(t *testing.T) {
	data := []byte(`
[program]
path = "/bin/echo"

[policy]
default = "maybe"
`)
	if _, err := Load(data); err == nil {
		t.Fatal("expected Load to reject an invalid policy.default")
	}
}

func TestCheckKernelVersion(t *testing.T) {
	cfg := Config{MinKernelVersion: "5.10.0"}
	if err := cfg.CheckKernelVersion("5.15.0-91-generic"); err != nil {
		t.Fatalf("expected newer kernel to pass: %v", err)
	}
	if err := cfg.CheckKernelVersion("4.19.0-generic"); err == nil {
		t.Fatal("expected older kernel to be rejected")
	}
}
