// Package registry tracks the live connection workers of a server.
//
// A worker is registered when its connection is accepted and marks itself
// done as the last thing it does. Only the Reaper (or the shutdown path,
// through Reap) removes entries.
package registry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ID identifies a registered worker.
type ID uint32

// Entry is a snapshot of one registered worker.
type Entry struct {
	ID      ID
	Remote  string
	Started time.Time
	Done    bool
}

type entry struct {
	Entry
	// interrupt unblocks the worker's pending socket I/O.
	interrupt func()
}

// Registry is a synchronized set of worker entries keyed by ID.
type Registry struct {
	mu      sync.Mutex
	entries map[ID]*entry
	running sync.WaitGroup
	lastID  uint32
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[ID]*entry),
	}
}

func (r *Registry) newID() ID {
	return ID(atomic.AddUint32(&r.lastID, 1))
}

// Register adds an entry with its completion flag unset. interrupt may be
// nil; when set it is called by Interrupt during shutdown.
func (r *Registry) Register(remote string, interrupt func()) ID {
	id := r.newID()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &entry{
		Entry: Entry{
			ID:      id,
			Remote:  remote,
			Started: time.Now(),
		},
		interrupt: interrupt,
	}
	r.running.Add(1)
	return id
}

// MarkDone sets the completion flag of id. A worker calls it once, on its
// own ID, as its final action.
func (r *Registry) MarkDone(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Done {
		return
	}
	e.Done = true
	r.running.Done()
}

// Reap removes every entry whose completion flag is set and returns them.
func (r *Registry) Reap() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []Entry
	for id, e := range r.entries {
		if e.Done {
			reaped = append(reaped, e.Entry)
			delete(r.entries, id)
		}
	}
	sort.Slice(reaped, func(i, j int) bool { return reaped[i].ID < reaped[j].ID })
	return reaped
}

// Interrupt calls the interrupt hook of every entry that is still running.
func (r *Registry) Interrupt() int {
	r.mu.Lock()
	hooks := make([]func(), 0, len(r.entries))
	for _, e := range r.entries {
		if !e.Done && e.interrupt != nil {
			hooks = append(hooks, e.interrupt)
		}
	}
	r.mu.Unlock()

	// hooks touch sockets, so they run outside the registry lock
	for _, h := range hooks {
		h()
	}
	return len(hooks)
}

// Wait blocks until every registered worker has marked itself done or ctx
// is canceled.
func (r *Registry) Wait(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		r.running.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of entries, reaped or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Running returns the number of entries that have not marked themselves done.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if !e.Done {
			n++
		}
	}
	return n
}

// Get returns a snapshot of the entry for id.
func (r *Registry) Get(id ID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}
