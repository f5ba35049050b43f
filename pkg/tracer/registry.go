package tracer

import (
	"sync"

	"github.com/google/btree"
	"github.com/sio2box/jail/pkg/tracee"
)

// pidItem adapts a *tracee.Tracee to btree.Item, ordering by pid.
type pidItem struct {
	pid int
	t   *tracee.Tracee
}

func (a pidItem) Less(than btree.Item) bool {
	return a.pid < than.(pidItem).pid
}

// registry is the tracer's live-tracee set, kept in pid order so that
// diagnostic dumps and the "wait until all have exited" loop iterate
// deterministically instead of walking a Go map in random order.
type registry struct {
	mu   sync.Mutex
	tree *btree.BTree
}

func newRegistry() *registry {
	return &registry{tree: btree.New(32)}
}

// insert registers a newly attached tracee. Called from Tracer.Attach once
// the tracer has set its ptrace options on the new tracee.
func (r *registry) insert(t *tracee.Tracee) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.ReplaceOrInsert(pidItem{pid: t.Pid(), t: t})
}

// remove drops a tracee that has exited or been killed.
func (r *registry) remove(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Delete(pidItem{pid: pid})
}

// get looks up a live tracee by pid.
func (r *registry) get(pid int) (*tracee.Tracee, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := r.tree.Get(pidItem{pid: pid})
	if item == nil {
		return nil, false
	}
	return item.(pidItem).t, true
}

// len reports the number of live tracees.
func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.Len()
}

// pids returns the live pids in ascending order.
func (r *registry) pids() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	pids := make([]int, 0, r.tree.Len())
	r.tree.Ascend(func(item btree.Item) bool {
		pids = append(pids, item.(pidItem).pid)
		return true
	})
	return pids
}
