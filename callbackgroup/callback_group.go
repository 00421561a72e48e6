// Package callbackgroup implements the concurrency-bucket discipline that
// controls how many callbacks from a given group may be in dispatch at
// once.
package callbackgroup

import (
	"sync"
	"sync/atomic"
)

// Type selects a group's concurrency policy.
type Type int

const (
	// MutuallyExclusive allows at most one executable from the group to
	// be in dispatch at any instant, across all executor threads.
	MutuallyExclusive Type = iota
	// Reentrant permits any number of the group's executables to be
	// dispatched concurrently.
	Reentrant
)

func (t Type) String() string {
	if t == Reentrant {
		return "Reentrant"
	}
	return "MutuallyExclusive"
}

// weakRef is the id of an entity registered by weak reference: the group
// does not keep the entity alive, and a lookup against the owning node's
// registry can fail after teardown. The group only needs the id to track
// membership and to be told when the entity is gone.
type weakRef struct {
	id uint64
}

// Group is a named concurrency bucket of entities. It records member ids
// only, for every entity kind: it holds no reference to any entity, so
// it keeps none of them alive; the owning node's registry does that.
type Group struct {
	kind Type

	// takeable is true iff no executable from this group is currently
	// being dispatched. Meaningless for Reentrant groups (never
	// consulted by the selection algorithm for them) but still
	// maintained so callers can introspect it uniformly.
	takeable atomic.Bool

	mu            sync.Mutex
	subscriptions map[uint64]weakRef
	timers        map[uint64]weakRef
	services      map[uint64]struct{}
	clients       map[uint64]struct{}
}

// New creates a Group of the given type. Groups start takeable.
func New(kind Type) *Group {
	g := &Group{
		kind:          kind,
		subscriptions: make(map[uint64]weakRef),
		timers:        make(map[uint64]weakRef),
		services:      make(map[uint64]struct{}),
		clients:       make(map[uint64]struct{}),
	}
	g.takeable.Store(true)
	return g
}

// Type reports the group's concurrency policy.
func (g *Group) Type() Type { return g.kind }

// AddSubscription registers a subscription id by weak reference.
func (g *Group) AddSubscription(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscriptions[id] = weakRef{id: id}
}

// AddTimer registers a timer id by weak reference.
func (g *Group) AddTimer(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timers[id] = weakRef{id: id}
}

// AddService registers a service id.
func (g *Group) AddService(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.services[id] = struct{}{}
}

// AddClient registers a client id.
func (g *Group) AddClient(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[id] = struct{}{}
}

// Remove drops id from whichever membership set it was registered in, a
// no-op if it was never a member. Called on entity destruction.
func (g *Group) Remove(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.subscriptions, id)
	delete(g.timers, id)
	delete(g.services, id)
	delete(g.clients, id)
}

// Takeable reports whether the group currently has no executable in
// dispatch. Always true for Reentrant groups.
func (g *Group) Takeable() bool {
	if g.kind == Reentrant {
		return true
	}
	return g.takeable.Load()
}

// TryClaim attempts to CAS the takeable flag from true to false for a
// MutuallyExclusive group, claiming exclusive dispatch rights. Reentrant
// groups always succeed without mutating any flag. The selection
// algorithm calls this at step 5 of the spin loop; a false return means
// the caller must skip this executable and keep scanning the same ready
// batch.
func (g *Group) TryClaim() bool {
	if g.kind == Reentrant {
		return true
	}
	return g.takeable.CompareAndSwap(true, false)
}

// Release restores the takeable flag to true. Called when the
// AnyExecutable selected from this group is destroyed post-dispatch,
// unconditionally of whether the dispatch returned an error. A no-op for
// Reentrant groups.
func (g *Group) Release() {
	if g.kind == Reentrant {
		return
	}
	g.takeable.Store(true)
}
