// Package confiner implements spec.md §4.6's resource confiner: translating
// a Config's resource section into a capability drop, applied in the traced
// child strictly before any seccomp filter is installed, and a cgroup join,
// done by the parent for the child's pid right after fork returns.
//
// The two steps run on opposite sides of fork. A freshly forked,
// not-yet-exec'd child is a single Go-runtime thread standing in for what
// was a multi-threaded process a moment earlier; any other thread's lock
// held at fork time (the heap allocator's, among others) is simply gone,
// so allocating file I/O in that child risks a deadlock before it ever
// reaches execve. The cgroup join doesn't need to run there at all — the
// supervisor can add the child's pid to its cgroup from the parent side,
// where the runtime is intact — so JoinParent does. Only the capability
// bounding-set drop is inherently self-only (a process cannot narrow
// another process's capability set) and has to run in the child itself;
// DropCapabilitiesChild keeps that step minimal for it.
package confiner

import (
	"fmt"

	"github.com/containerd/cgroups"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/syndtr/gocapability/capability"

	"github.com/sio2box/jail/internal/config"
)

// parentCgroup is the judge-owned parent under which every run gets its
// own child cgroup, so a crashed run never leaves limits attached to the
// root hierarchy.
const parentCgroup = "/sio2box"

// Confiner creates and later tears down one run's cgroup, and drops the
// child's capability set when it joins. It satisfies executor.ResourceConfiner.
type Confiner struct {
	control cgroups.Cgroup
	path    string
}

// New creates a fresh cgroup under parentCgroup named runID, with the
// memory and pids limits taken from cfg. runID should be unique per run
// (e.g. the WorkDir's basename) so concurrent runs don't collide.
func New(cfg config.Config, runID string) (*Confiner, error) {
	path := parentCgroup + "/" + runID

	resources := &specs.LinuxResources{}
	if limit := cfg.MemoryLimitBytes(); limit > 0 {
		resources.Memory = &specs.LinuxMemory{Limit: &limit}
	}
	if cfg.Limits.Pids > 0 {
		resources.Pids = &specs.LinuxPids{Limit: cfg.Limits.Pids}
	}

	control, err := cgroups.New(cgroups.V1, cgroups.StaticPath(path), resources)
	if err != nil {
		return nil, fmt.Errorf("confiner: creating cgroup %s: %w", path, err)
	}
	return &Confiner{control: control, path: path}, nil
}

// JoinParent implements executor.ResourceConfiner. It runs in the
// supervisor itself, immediately after fork returns the new child's pid,
// deliberately not in the child: a forked child is momentarily a
// single-threaded process sharing its parent's heap state, and the cgroup
// library's file I/O is unsafe to run there (see the package doc). Adding
// another process's pid to a cgroup from outside it is ordinary and
// requires no privilege the child itself would need.
func (c *Confiner) JoinParent(childPid int) error {
	if err := c.control.Add(cgroups.Process{Pid: childPid}); err != nil {
		return fmt.Errorf("confiner: joining cgroup %s: %w", c.path, err)
	}
	return nil
}

// DropCapabilitiesChild implements executor.ResourceConfiner. Unlike the
// cgroup join, a capability bounding-set drop can only be self-applied, so
// this one genuinely must run inside the forked child, before any
// listener's on_post_fork_child hook and strictly before the seccomp
// filter is loaded (the capability syscalls below would otherwise be
// rejected by a filter whose default action is anything but allow).
func (c *Confiner) DropCapabilitiesChild() error {
	return dropAllCapabilities()
}

// Close removes the run's cgroup. Called once, after the run has finished.
func (c *Confiner) Close() error {
	if c.control == nil {
		return nil
	}
	return c.control.Delete()
}

// dropAllCapabilities clears the effective, permitted, inheritable,
// bounding and ambient sets of the calling process, leaving the traced
// program with none of its parent's privilege.
func dropAllCapabilities() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("confiner: reading capability state: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("confiner: loading capability state: %w", err)
	}

	const all = capability.CAPS | capability.BOUNDS | capability.AMBS
	caps.Clear(all)
	if err := caps.Apply(all); err != nil {
		return fmt.Errorf("confiner: applying dropped capabilities: %w", err)
	}
	return nil
}
