package twopass

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	C "github.com/FarelRA/underpass/constant"
)

// result is what a resolved tunnel entry hands to its GET consumer
// (spec §3 "TunnelEntry").
type result struct {
	stream io.ReadCloser
	err    error
}

// entry is a single-producer/single-consumer one-shot: the POST side
// sends exactly once, via resolve or reject.
type entry struct {
	done chan result
}

func newEntry() *entry {
	return &entry{done: make(chan result, 1)}
}

func (e *entry) resolve(stream io.ReadCloser) { e.done <- result{stream: stream} }
func (e *entry) reject(err error)             { e.done <- result{err: err} }

// rendezvousTable is the process-wide tunnel-ID map spec §3/§9
// describes: insert-if-absent, resolve-one-shot, delete. The source's
// GET-before-POST path is a 2000ms sleep+recheck loop (§9 open
// question); here that becomes a condition-variable wait-map — insert
// broadcasts on the table's cond, so a waiting GET wakes the instant
// its POST shows up instead of polling on a timer. Concurrent GETs for
// the same id (an unprotected race in the source, per §5) collapse
// onto one physical waiter via singleflight, matching spec's
// single-consumer expectation for the one-shot.
type rendezvousTable struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries map[string]*entry
	group   singleflight.Group
}

func newRendezvousTable() *rendezvousTable {
	t := &rendezvousTable{entries: make(map[string]*entry)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// insert creates a pending entry for id, failing with ErrConflict if
// one is already in flight (spec §4.5 "pending, POST arrives (same
// id)" row — at-most-one-per-ID invariant, §8).
func (t *rendezvousTable) insert(id string) (*entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, fmt.Errorf("twopass: tunnel id %q already pending: %w", id, C.ErrConflict)
	}
	e := newEntry()
	t.entries[id] = e
	t.cond.Broadcast()
	return e, nil
}

func (t *rendezvousTable) delete(id string) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// waitForEntry blocks until id is inserted or grace elapses, per spec
// §4.5 "absent, GET arrives" row.
func (t *rendezvousTable) waitForEntry(id string, grace time.Duration) (*entry, bool) {
	deadline := time.Now().Add(grace)

	timer := time.AfterFunc(grace, t.cond.Broadcast)
	defer timer.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		if e, ok := t.entries[id]; ok {
			return e, true
		}
		if !time.Now().Before(deadline) {
			return nil, false
		}
		t.cond.Wait()
	}
}

// await is the GET-side rendezvous: wait for id to appear (bounded by
// grace), then wait for its one-shot to resolve or reject (unbounded,
// but cancellable via ctx), deleting the entry in either case (spec
// §4.5 "consumed" row — cleanup is the GET handler's final step).
func (t *rendezvousTable) await(ctx context.Context, id string, grace time.Duration) (result, error) {
	v, err, _ := t.group.Do(id, func() (interface{}, error) {
		e, ok := t.waitForEntry(id, grace)
		if !ok {
			return nil, fmt.Errorf("twopass: tunnel id %q not found: %w", id, C.ErrNotFound)
		}
		defer t.delete(id)

		select {
		case res := <-e.done:
			return res, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err != nil {
		return result{}, err
	}
	return v.(result), nil
}
