// Package config loads and validates the TOML document that parameterizes
// a run: the target program, its resource limits, the seccomp policy
// source, and the minimum kernel version the engine requires.
package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	units "github.com/docker/go-units"
	"golang.org/x/mod/semver"

	"github.com/sio2box/jail/pkg/action"
	"github.com/sio2box/jail/pkg/seccomp"
	"github.com/sio2box/jail/pkg/tracee"
)

// Config is the fully parsed and validated run configuration.
type Config struct {
	Program ProgramConfig `toml:"program"`
	Limits  LimitsConfig  `toml:"limits"`
	Policy  PolicyConfig  `toml:"policy"`

	// MinKernelVersion, if set, is compared against the running kernel's
	// release string; a lower kernel is a configuration error, surfaced
	// before fork.
	MinKernelVersion string `toml:"min_kernel_version"`

	// limits holds the byte counts parsed out of LimitsConfig's strings,
	// populated by validate.
	memoryLimitBytes   int64
	fileSizeLimitBytes int64
}

// ProgramConfig names the target program and how it is invoked.
type ProgramConfig struct {
	Path string   `toml:"path"`
	Argv []string `toml:"argv"`
}

// LimitsConfig holds resource limits as human-readable strings (e.g.
// "256MiB"), parsed into bytes by Load.
type LimitsConfig struct {
	Memory      string `toml:"memory"`
	FileSize    string `toml:"file_size"`
	WallClockMs int64  `toml:"wall_clock_ms"`
	CPUTimeMs   int64  `toml:"cpu_time_ms"`
	Pids        int64  `toml:"pids"`
}

// PolicyConfig names the seccomp policy to compile: its default action plus
// the ordered per-syscall rules spec.md §3's filter compiler consumes.
type PolicyConfig struct {
	Name    string       `toml:"name"`
	Default string       `toml:"default"`
	Rules   []RuleConfig `toml:"rules"`

	// DefaultTraceCode is the TRACE(code) user-data value used when
	// Default is "trace"; unused for the other default actions.
	DefaultTraceCode uint16 `toml:"default_trace_code"`
}

// RuleConfig declares one syscall's filter rule: which syscall it matches
// (by name, resolved against the x86_64 table, or numerically via Number
// for a 32-bit target or a syscall this build doesn't name), the argument
// matchers that must all hold, and the action to take.
type RuleConfig struct {
	Syscall string      `toml:"syscall"`
	Number  int64       `toml:"number"`
	Action  string      `toml:"action"`
	Errno   uint16      `toml:"errno"`

	// TraceCode is the user-data value this rule's TRACE action carries.
	TraceCode uint16 `toml:"trace_code"`
	// CancelErrno, if non-zero and Action is "trace", registers the
	// engine's built-in trace handler for TraceCode: on the resulting
	// seccomp stop it cancels the syscall and sets its return value to
	// -CancelErrno, the declarative form of spec.md §8's "seccomp trace +
	// cancel" scenario. Leave it zero to only observe the stop (dispatched
	// through the ordinary listener bus) without a registered handler.
	CancelErrno int64 `toml:"cancel_errno"`

	Args []ArgConfig `toml:"args"`
}

// ArgConfig constrains one of a rule's six syscall argument slots.
type ArgConfig struct {
	Index int    `toml:"index"`
	Op    string `toml:"op"`
	Value uint64 `toml:"value"`
	Mask  uint64 `toml:"mask"`
}

// MemoryLimitBytes returns the parsed byte count for Limits.Memory.
func (c Config) MemoryLimitBytes() int64 { return c.memoryLimitBytes }

// FileSizeLimitBytes returns the parsed byte count for Limits.FileSize.
func (c Config) FileSizeLimitBytes() int64 { return c.fileSizeLimitBytes }

// Load parses and validates the TOML document in data. Unknown keys are
// rejected: a typo'd key in the document is a configuration error, not a
// silently ignored field.
func Load(data []byte) (Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config: unknown key %q", undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Program.Path == "" {
		return fmt.Errorf("config: program.path is required")
	}

	if c.Limits.Memory != "" {
		n, err := units.RAMInBytes(c.Limits.Memory)
		if err != nil {
			return fmt.Errorf("config: limits.memory: %w", err)
		}
		c.memoryLimitBytes = n
	}
	if c.Limits.FileSize != "" {
		n, err := units.RAMInBytes(c.Limits.FileSize)
		if err != nil {
			return fmt.Errorf("config: limits.file_size: %w", err)
		}
		c.fileSizeLimitBytes = n
	}

	switch c.Policy.Default {
	case "", "allow", "kill", "trace":
	default:
		return fmt.Errorf("config: policy.default must be one of allow|kill|trace, got %q", c.Policy.Default)
	}

	for i, rule := range c.Policy.Rules {
		if rule.Syscall == "" && rule.Number == 0 {
			return fmt.Errorf("config: policy.rules[%d]: one of syscall or number is required", i)
		}
		switch rule.Action {
		case "allow", "kill", "errno", "trace":
		default:
			return fmt.Errorf("config: policy.rules[%d].action must be one of allow|kill|errno|trace, got %q", i, rule.Action)
		}
		for j, arg := range rule.Args {
			if arg.Index < 0 || arg.Index > 5 {
				return fmt.Errorf("config: policy.rules[%d].args[%d]: index %d out of range 0..5", i, j, arg.Index)
			}
			switch arg.Op {
			case "eq", "ne", "lt", "le", "gt", "ge", "masked_eq":
			default:
				return fmt.Errorf("config: policy.rules[%d].args[%d]: op %q is not recognized", i, j, arg.Op)
			}
		}
	}

	if c.MinKernelVersion != "" {
		if !semver.IsValid(canonicalize(c.MinKernelVersion)) {
			return fmt.Errorf("config: min_kernel_version %q is not a valid version", c.MinKernelVersion)
		}
	}

	return nil
}

// CheckKernelVersion compares release (as reported by uname) against
// Config.MinKernelVersion, returning an error if release is older.
func (c Config) CheckKernelVersion(release string) error {
	if c.MinKernelVersion == "" {
		return nil
	}
	want := canonicalize(c.MinKernelVersion)
	got := canonicalize(release)
	if !semver.IsValid(got) {
		return fmt.Errorf("config: cannot parse running kernel release %q", release)
	}
	if semver.Compare(got, want) < 0 {
		return fmt.Errorf("config: running kernel %q is older than the required minimum %q", release, c.MinKernelVersion)
	}
	return nil
}

// CompilePolicy turns Policy into a *seccomp.Policy scoped to arch, or nil
// if the run has no filter to install (Policy.Default is "" and no rules
// are declared). Any "trace" rule declaring a non-zero CancelErrno gets
// the engine's built-in cancel-and-return handler registered under its
// TraceCode; config has no way to express an arbitrary Go callback, so
// that built-in is the only handler shape a TOML document can reach.
func (c Config) CompilePolicy(arch tracee.Arch) (*seccomp.Policy, error) {
	if c.Policy.Default == "" && len(c.Policy.Rules) == 0 {
		return nil, nil
	}

	policy := &seccomp.Policy{
		Arch:     arch,
		Rules:    make(seccomp.SyscallRules),
		Handlers: make(map[uint16]seccomp.TraceHandler),
	}

	switch c.Policy.Default {
	case "", "allow":
		policy.Default = seccomp.Allow
	case "kill":
		policy.Default = seccomp.Kill
	case "trace":
		policy.Default = seccomp.Trace(c.Policy.DefaultTraceCode)
	}

	for i, rc := range c.Policy.Rules {
		nr, err := syscallNumber(arch, rc)
		if err != nil {
			return nil, fmt.Errorf("config: policy.rules[%d]: %w", i, err)
		}

		rule := seccomp.Rule{}
		for _, ac := range rc.Args {
			m, err := argMatcher(ac)
			if err != nil {
				return nil, fmt.Errorf("config: policy.rules[%d]: %w", i, err)
			}
			rule.Args[ac.Index] = m
		}

		switch rc.Action {
		case "allow":
			rule.Action = seccomp.Allow
		case "kill":
			rule.Action = seccomp.Kill
		case "errno":
			rule.Action = seccomp.Errno(rc.Errno)
		case "trace":
			rule.Action = seccomp.Trace(rc.TraceCode)
			if rc.CancelErrno != 0 {
				policy.Handlers[rc.TraceCode] = cancelHandler(rc.CancelErrno)
			}
		}

		policy.Rules[nr] = append(policy.Rules[nr], rule)
	}

	return policy, nil
}

// argMatcher translates one TOML argument matcher into its compiled form.
func argMatcher(ac ArgConfig) (*seccomp.ArgMatcher, error) {
	switch ac.Op {
	case "eq":
		return seccomp.EqualTo(ac.Value), nil
	case "ne":
		return seccomp.NotEqual(ac.Value), nil
	case "masked_eq":
		return seccomp.MaskedEqual(ac.Mask, ac.Value), nil
	case "lt":
		return &seccomp.ArgMatcher{Op: seccomp.OpLessThan, Value: ac.Value}, nil
	case "le":
		return &seccomp.ArgMatcher{Op: seccomp.OpLessOrEqual, Value: ac.Value}, nil
	case "gt":
		return &seccomp.ArgMatcher{Op: seccomp.OpGreaterThan, Value: ac.Value}, nil
	case "ge":
		return &seccomp.ArgMatcher{Op: seccomp.OpGreaterOrEqual, Value: ac.Value}, nil
	default:
		return nil, fmt.Errorf("unrecognized arg op %q", ac.Op)
	}
}

// cancelHandler builds the engine's built-in seccomp trace handler: it
// cancels the pending syscall and sets its return value to -errno, then
// asks the tracer to resume the tracee without re-injecting any signal.
func cancelHandler(errno int64) seccomp.TraceHandler {
	return func(t *tracee.Tracee) (action.TraceAction, error) {
		if err := t.CancelSyscall(uint64(-errno)); err != nil {
			return action.TraceContinue, err
		}
		return action.TraceContinueQuietly, nil
	}
}

// canonicalize turns a bare "5.15.0" or kernel uname release string like
// "5.15.0-91-generic" into the "vX.Y.Z" form golang.org/x/mod/semver
// requires, discarding anything after the first run of dotted numbers.
func canonicalize(v string) string {
	end := 0
	for end < len(v) && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	core := v[:end]
	for core != "" && core[len(core)-1] == '.' {
		core = core[:len(core)-1]
	}
	return "v" + core
}
