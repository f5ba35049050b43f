package iostreams

import (
	"context"
	"io"
	"os"
	"testing"
	"time"
)

// TestStreamsRoundTrip drives both sides of the pipe pair in-process,
// standing in for the parent (judge) and child (traced program) without
// an actual fork.
func TestStreamsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	s.OnPostForkParent(0)

	childDone := make(chan struct{})
	go func() {
		defer close(childDone)

		in, err := os.OpenFile(s.stdinPath, os.O_RDONLY, 0)
		if err != nil {
			t.Errorf("child open stdin: %v", err)
			return
		}
		defer in.Close()
		buf := make([]byte, 5)
		if _, err := io.ReadFull(in, buf); err != nil {
			t.Errorf("child read: %v", err)
			return
		}
		if string(buf) != "hello" {
			t.Errorf("child read %q, want %q", buf, "hello")
		}

		out, err := os.OpenFile(s.stdoutPath, os.O_WRONLY, 0)
		if err != nil {
			t.Errorf("child open stdout: %v", err)
			return
		}
		defer out.Close()
		if _, err := out.Write([]byte("world")); err != nil {
			t.Errorf("child write: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stdin, stdout, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if _, err := stdin.Write([]byte("hello")); err != nil {
		t.Fatalf("parent write: %v", err)
	}

	buf := make([]byte, 5)
	if _, err := io.ReadFull(stdout, buf); err != nil {
		t.Fatalf("parent read: %v", err)
	}
	if string(buf) != "world" {
		t.Errorf("parent read %q, want %q", buf, "world")
	}

	<-childDone
	s.OnPostExecute()
}
