package executor

import (
	"reflect"
	"testing"
)

func TestArgvBuilder(t *testing.T) {
	b := newArgvBuilder("/bin/echo", []string{"hello", "world"})
	want := []string{"/bin/echo", "hello", "world"}
	if got := b.Argv(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Argv() = %v, want %v", got, want)
	}
	b.Release()
	if b.Argv() != nil {
		t.Fatal("expected Argv() to be nil after Release")
	}
}

func TestArgvBuilderNoExtraArgs(t *testing.T) {
	b := newArgvBuilder("/bin/true", nil)
	if got, want := b.Argv(), []string{"/bin/true"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Argv() = %v, want %v", got, want)
	}
}
