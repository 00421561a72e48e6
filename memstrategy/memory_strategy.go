// Package memstrategy implements the pluggable scratch-buffer allocator the
// executor queries when rebuilding its wait-set and when staging incoming
// messages per subscription.
package memstrategy

import (
	"sync"

	"github.com/wayfarer-robotics/rclgo/lib/bits"
	"github.com/wayfarer-robotics/rclgo/middleware"
)

// WaitSetSizes describes how many handles of each kind the next wait-set
// needs room for, as counted from the currently attached nodes' entity
// registries.
type WaitSetSizes struct {
	Subscriptions int
	Services      int
	Clients       int
	Guards        int
}

// Strategy is queried by the executor for wait-set scratch arrays and for
// per-subscription incoming-message storage. Implementations are
// replaceable at any quiescent point: callers swap them in through the
// executor's SetMemoryStrategy, which is unsafe during an active wait.
type Strategy interface {
	// BorrowWaitSet returns an empty wait-set whose backing arrays have
	// room for sizes, reused across waits to avoid per-iteration
	// allocation. Each borrowed wait-set is private to the borrower until
	// ReturnWaitSet hands it back, so concurrent executor workers each
	// get their own scratch.
	BorrowWaitSet(sizes WaitSetSizes) *middleware.WaitSet
	ReturnWaitSet(ws *middleware.WaitSet)

	// BorrowMessageSlot returns a staging slot for one of the given
	// subscription's in-flight messages. The executor copies a taken
	// message into the slot before invoking the user callback
	// (inter-process path only; the intra-process path hands over the
	// owned object directly and never calls this). The slot is private
	// to the borrower until ReturnMessageSlot hands it back: a reentrant
	// group can have several dispatches of the same subscription running
	// at once, and they must not share staging.
	BorrowMessageSlot(subscriptionID uint64) *any
	ReturnMessageSlot(subscriptionID uint64, slot *any)
}

// Default is the allocator used when an Executor is not given one
// explicitly. It keeps a free list of wait-sets (capacity preserved across
// reuse) and a free list of staging slots per subscription, guarded by a
// single mutex since concurrent executor workers borrow and return scratch
// in parallel.
type Default struct {
	mu   sync.Mutex
	free []*middleware.WaitSet

	slots map[uint64][]*any
}

// NewDefault builds the default memory strategy.
func NewDefault() *Default {
	return &Default{slots: make(map[uint64][]*any)}
}

// roundCap rounds a requested capacity up to the next power of two so a
// slowly growing entity count does not reallocate scratch on every wait.
func roundCap(n int) int {
	if n <= 0 {
		return 0
	}
	return int(bits.RoundupPowOf2ByCeil(uint64(n)))
}

func growSubs(buf []middleware.SubscriptionHandle, n int) []middleware.SubscriptionHandle {
	if cap(buf) < n {
		return make([]middleware.SubscriptionHandle, 0, roundCap(n))
	}
	return buf[:0]
}

func growSvcs(buf []middleware.ServiceHandle, n int) []middleware.ServiceHandle {
	if cap(buf) < n {
		return make([]middleware.ServiceHandle, 0, roundCap(n))
	}
	return buf[:0]
}

func growClients(buf []middleware.ClientHandle, n int) []middleware.ClientHandle {
	if cap(buf) < n {
		return make([]middleware.ClientHandle, 0, roundCap(n))
	}
	return buf[:0]
}

func (d *Default) BorrowWaitSet(sizes WaitSetSizes) *middleware.WaitSet {
	d.mu.Lock()
	var ws *middleware.WaitSet
	if n := len(d.free); n > 0 {
		ws = d.free[n-1]
		d.free = d.free[:n-1]
	} else {
		ws = &middleware.WaitSet{}
	}
	d.mu.Unlock()

	ws.Subscriptions = growSubs(ws.Subscriptions, sizes.Subscriptions)
	ws.Services = growSvcs(ws.Services, sizes.Services)
	ws.Clients = growClients(ws.Clients, sizes.Clients)
	ws.Guards = ws.Guards[:0]
	return ws
}

func (d *Default) ReturnWaitSet(ws *middleware.WaitSet) {
	if ws == nil {
		return
	}
	ws.Clear()
	d.mu.Lock()
	d.free = append(d.free, ws)
	d.mu.Unlock()
}

func (d *Default) BorrowMessageSlot(subscriptionID uint64) *any {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.slots[subscriptionID]
	if n := len(list); n > 0 {
		slot := list[n-1]
		d.slots[subscriptionID] = list[:n-1]
		return slot
	}
	return new(any)
}

func (d *Default) ReturnMessageSlot(subscriptionID uint64, slot *any) {
	if slot == nil {
		return
	}
	*slot = nil
	d.mu.Lock()
	d.slots[subscriptionID] = append(d.slots[subscriptionID], slot)
	d.mu.Unlock()
}

var _ Strategy = (*Default)(nil)
