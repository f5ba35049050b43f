package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/subcommands"

	"github.com/sio2box/jail/internal/confiner"
	"github.com/sio2box/jail/internal/config"
	"github.com/sio2box/jail/internal/iostreams"
	boxlog "github.com/sio2box/jail/internal/log"
	"github.com/sio2box/jail/internal/workdir"
	"github.com/sio2box/jail/pkg/executor"
	"github.com/sio2box/jail/pkg/listener"
	"github.com/sio2box/jail/pkg/seccomp"
	"github.com/sio2box/jail/pkg/tracer"
)

// Run implements subcommands.Command for the only command boxjail has: run
// a configured program under the engine and report its verdict. It is the
// thin glue spec.md §4.10 describes — no policy logic of its own.
type Run struct {
	configPath string
	outputPath string
}

func (*Run) Name() string     { return "run" }
func (*Run) Synopsis() string { return "run a program under the sandbox and report its verdict" }
func (*Run) Usage() string {
	return "run -config=<path> [-output=<path>] -- <program> [argv...]\n"
}

func (r *Run) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "path to the TOML run configuration")
	f.StringVar(&r.outputPath, "output", "-", "path to write the JSON verdict to (- for stdout)")
}

func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	log := boxlog.New()

	if r.configPath == "" {
		fmt.Fprintln(os.Stderr, "boxjail: -config is required")
		return subcommands.ExitUsageError
	}
	data, err := os.ReadFile(r.configPath)
	if err != nil {
		log.WithError(err).Error("reading config file")
		return subcommands.ExitFailure
	}
	cfg, err := config.Load(data)
	if err != nil {
		log.WithError(err).Error("loading config")
		return subcommands.ExitFailure
	}

	if release, ok := kernelRelease(); ok {
		if err := cfg.CheckKernelVersion(release); err != nil {
			log.WithError(err).Error("kernel version check failed")
			return subcommands.ExitFailure
		}
	}

	wd, err := workdir.Create("boxjail")
	if err != nil {
		log.WithError(err).Error("creating working directory")
		return subcommands.ExitFailure
	}
	defer wd.Close()

	loggerListener := listener.NewLoggerListener(log)
	listeners := []executor.Listener{loggerListener}

	var conf *confiner.Confiner
	if cfg.MemoryLimitBytes() > 0 || cfg.Limits.Pids > 0 {
		conf, err = confiner.New(cfg, filepath.Base(wd.Path()))
		if err != nil {
			log.WithError(err).Error("constructing resource confiner")
			return subcommands.ExitFailure
		}
		defer conf.Close()
	}

	streams := iostreams.New(wd.Path())
	listeners = append(listeners, streams)

	arch, err := hostTraceArch()
	if err != nil {
		log.WithError(err).Error("determining trace architecture")
		return subcommands.ExitFailure
	}

	policy, err := cfg.CompilePolicy(arch)
	if err != nil {
		log.WithError(err).Error("compiling seccomp policy")
		return subcommands.ExitFailure
	}

	var handlers map[uint16]seccomp.TraceHandler
	if policy != nil {
		handlers = policy.Handlers
	}
	tr := tracer.New(loggerListener, handlers, func(pid int, err error) {
		log.WithError(err).WithField("pid", pid).Debug("tracer protocol error")
	})
	listeners = append(listeners, listener.NewTracerBridge(tr, arch, policy))

	argv := cfg.Program.Argv
	if f.NArg() > 0 {
		argv = f.Args()
	}

	// conf is typed *confiner.Confiner; passing a nil pointer straight
	// through as the ResourceConfiner interface would make executor.go's
	// "confiner != nil" check see a non-nil interface wrapping a nil
	// pointer, so it's kept nil at the interface level when unset.
	var resourceConfiner executor.ResourceConfiner
	if conf != nil {
		resourceConfiner = conf
	}
	exec := executor.New(cfg.Program.Path, argv, listeners, resourceConfiner)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Debug("sd_notify readiness failed")
	} else if sent {
		log.Debug("sd_notify readiness sent")
	}

	outcome, err := exec.Execute()
	if err != nil {
		log.WithError(err).Error("executing program")
		return subcommands.ExitFailure
	}

	if err := writeOutput(jsonOutputBuilder{}, outcome, r.outputPath); err != nil {
		log.WithError(err).Error("writing verdict")
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}
