// Package registry keeps the set of track identities seen during a run and the subset
// an operator marked for obfuscation.
//
// Observe is called by the processing worker, SetSelected by the operator surface.
// IsSelected reads an immutable snapshot and never blocks.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/LdDl/trackblur/tracking"
)

// EventKind tells what happened to the registry
type EventKind int

const (
	// EventObserved is emitted the first time an identity is seen during a run
	EventObserved EventKind = iota
	// EventReset is emitted when both sets are cleared
	EventReset
)

// Event is delivered to subscribers. ID is zero for EventReset.
type Event struct {
	Kind EventKind
	ID   tracking.ID
}

type selection map[tracking.ID]struct{}

// Registry owns known and selected identities. Invariant: selected is a subset of known.
type Registry struct {
	mu        sync.Mutex
	known     map[tracking.ID]struct{}
	selected  atomic.Pointer[selection]
	listeners map[int]func(Event)
	nextToken int
}

// New creates empty registry
func New() *Registry {
	r := &Registry{
		known:     make(map[tracking.ID]struct{}),
		listeners: make(map[int]func(Event)),
	}
	r.selected.Store(&selection{})
	return r
}

// Observe registers id into known set. Returns true if id was not seen before.
func (r *Registry) Observe(id tracking.ID) bool {
	r.mu.Lock()
	if _, ok := r.known[id]; ok {
		r.mu.Unlock()
		return false
	}
	r.known[id] = struct{}{}
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	notify(listeners, Event{Kind: EventObserved, ID: id})
	return true
}

// SetSelected marks or unmarks id for obfuscation.
// Requests for identities which were never observed are ignored.
func (r *Registry) SetSelected(id tracking.ID, flag bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.known[id]; !ok {
		return
	}
	current := *r.selected.Load()
	if _, ok := current[id]; ok == flag {
		return
	}
	next := make(selection, len(current)+1)
	for k := range current {
		next[k] = struct{}{}
	}
	if flag {
		next[id] = struct{}{}
	} else {
		delete(next, id)
	}
	r.selected.Store(&next)
}

// IsSelected reports whether id is marked for obfuscation
func (r *Registry) IsSelected(id tracking.ID) bool {
	_, ok := (*r.selected.Load())[id]
	return ok
}

// Reset clears both sets
func (r *Registry) Reset() {
	r.mu.Lock()
	r.known = make(map[tracking.ID]struct{})
	r.selected.Store(&selection{})
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	notify(listeners, Event{Kind: EventReset})
}

// Known returns sorted identities seen so far
func (r *Registry) Known() []tracking.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedIDs(r.known)
}

// Selected returns sorted identities marked for obfuscation
func (r *Registry) Selected() []tracking.ID {
	return sortedIDs(*r.selected.Load())
}

// Subscribe registers fn to be called on every event. fn runs on the goroutine which caused
// the event (the processing worker for EventObserved) so it must return quickly.
// The returned function removes the subscription.
func (r *Registry) Subscribe(fn func(Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	token := r.nextToken
	r.nextToken++
	r.listeners[token] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, token)
	}
}

func (r *Registry) snapshotListeners() []func(Event) {
	if len(r.listeners) == 0 {
		return nil
	}
	tokens := make([]int, 0, len(r.listeners))
	for token := range r.listeners {
		tokens = append(tokens, token)
	}
	sort.Ints(tokens)
	listeners := make([]func(Event), 0, len(tokens))
	for _, token := range tokens {
		listeners = append(listeners, r.listeners[token])
	}
	return listeners
}

func notify(listeners []func(Event), event Event) {
	for _, fn := range listeners {
		fn(event)
	}
}

func sortedIDs[M ~map[tracking.ID]struct{}](set M) []tracking.ID {
	ids := make([]tracking.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
