package confiner

import (
	"os"
	"testing"

	"github.com/sio2box/jail/internal/config"
)

// TestNewRequiresCgroupfs exercises the happy path against the real
// cgroup hierarchy. It needs CAP_SYS_ADMIN and a mounted cgroupfs, neither
// of which is guaranteed in a sandboxed test runner, so it skips instead
// of failing when cgroup creation is rejected for permission reasons.
func TestNewRequiresCgroupfs(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("cgroup join requires root")
	}

	cfg, err := config.Load([]byte(`
[program]
path = "/bin/true"

[limits]
memory = "16MiB"
pids = 4
`))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	c, err := New(cfg, "confiner-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.JoinParent(os.Getpid()); err != nil {
		t.Fatalf("JoinParent: %v", err)
	}
	if err := c.DropCapabilitiesChild(); err != nil {
		t.Fatalf("DropCapabilitiesChild: %v", err)
	}
}
