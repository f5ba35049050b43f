// Package iostreams implements spec.md §4.7's "new" I/O Streams component:
// named pipes dropped in the run's working directory so an interactive
// judge can feed and drain a traced program incrementally instead of
// redirecting from a plain file.
package iostreams

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/containerd/fifo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/sio2box/jail/pkg/executor"
	"github.com/sio2box/jail/pkg/listener"
)

var _ executor.Listener = (*Streams)(nil)

// Streams owns a pair of named pipes for one run: stdin (judge writes,
// child reads) and stdout (child writes, judge reads). It is registered as
// an executor.Listener so its on_post_fork_child hook runs in the traced
// child, after the resource confiner and before any listener that installs
// the seccomp filter.
type Streams struct {
	listener.BaseListener

	stdinPath  string
	stdoutPath string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	ready   chan struct{}
	openErr error
}

// New declares the pipe pair inside dir (normally a WorkDir's path). The
// files are not created until OnPostForkParent runs.
func New(dir string) *Streams {
	ctx, cancel := context.WithCancel(context.Background())
	return &Streams{
		stdinPath:  filepath.Join(dir, "stdin.fifo"),
		stdoutPath: filepath.Join(dir, "stdout.fifo"),
		ctx:        ctx,
		cancel:     cancel,
		ready:      make(chan struct{}),
	}
}

// OnPostForkParent opens the judge's side of both pipes in the background.
// A FIFO open blocks until its peer opens the other end, so this must not
// be done synchronously before the child has been forked: this hook starts
// it right after fork returns in the parent. The
// two opens are independent blocking calls (one waits on the child's
// eventual stdin dup2, the other on its stdout dup2), so they run
// concurrently rather than forcing one to wait on the other first.
func (s *Streams) OnPostForkParent(childPid int) {
	go func() {
		defer close(s.ready)

		var in io.WriteCloser
		var out io.ReadCloser

		g := new(errgroup.Group)
		g.Go(func() error {
			f, err := fifo.OpenFifo(s.ctx, s.stdinPath, unix.O_WRONLY|unix.O_CREAT, 0o600)
			if err != nil {
				return fmt.Errorf("iostreams: opening stdin fifo: %w", err)
			}
			in = f
			return nil
		})
		g.Go(func() error {
			f, err := fifo.OpenFifo(s.ctx, s.stdoutPath, unix.O_RDONLY|unix.O_CREAT, 0o600)
			if err != nil {
				return fmt.Errorf("iostreams: opening stdout fifo: %w", err)
			}
			out = f
			return nil
		})

		if err := g.Wait(); err != nil {
			if in != nil {
				in.Close()
			}
			if out != nil {
				out.Close()
			}
			s.setOpenErr(err)
			return
		}

		s.mu.Lock()
		s.stdin, s.stdout = in, out
		s.mu.Unlock()
	}()
}

func (s *Streams) setOpenErr(err error) {
	s.mu.Lock()
	s.openErr = err
	s.mu.Unlock()
}

// Wait blocks until the judge's side of both pipes is open (or ctx is
// done) and returns them, or the error that prevented it.
func (s *Streams) Wait(ctx context.Context) (io.WriteCloser, io.ReadCloser, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, nil, s.openErr
	}
	return s.stdin, s.stdout, nil
}

// OnPostForkChild dups the child's side of both pipes onto fd 0 and fd 1.
// It must run before any listener that installs a seccomp filter, since
// the filter's default action has to still allow the open/dup2 calls made
// here (spec.md §4.7).
func (s *Streams) OnPostForkChild() {
	in, err := os.OpenFile(s.stdinPath, os.O_RDONLY, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "iostreams: child open stdin fifo: %v\n", err)
		os.Exit(127)
	}
	if err := unix.Dup2(int(in.Fd()), 0); err != nil {
		fmt.Fprintf(os.Stderr, "iostreams: dup2 stdin: %v\n", err)
		os.Exit(127)
	}
	in.Close()

	out, err := os.OpenFile(s.stdoutPath, os.O_WRONLY, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "iostreams: child open stdout fifo: %v\n", err)
		os.Exit(127)
	}
	if err := unix.Dup2(int(out.Fd()), 1); err != nil {
		fmt.Fprintf(os.Stderr, "iostreams: dup2 stdout: %v\n", err)
		os.Exit(127)
	}
	out.Close()
}

// OnPostExecute closes the judge's side of both pipes and removes them
// from the working directory.
func (s *Streams) OnPostExecute() {
	s.cancel()
	s.mu.Lock()
	in, out := s.stdin, s.stdout
	s.mu.Unlock()
	if in != nil {
		in.Close()
	}
	if out != nil {
		out.Close()
	}
	os.Remove(s.stdinPath)
	os.Remove(s.stdoutPath)
}
