// Package ringbuffer implements the fixed-capacity keyed ring used by the
// intra-process manager to stage owned messages between a publisher and the
// subscribers living in the same process.
package ringbuffer

import (
	"sync"

	"golang.org/x/sys/cpu"
)

// slot holds one occupant of the ring. The CacheLinePad either side of the
// mutable fields keeps adjacent slots from false-sharing a cache line under
// concurrent push/take from different goroutines.
type slot[T any] struct {
	_        cpu.CacheLinePad
	occupied bool
	key      uint64
	value    T
	refs     int // remaining consume_shared takers before the entry is freed
	_        cpu.CacheLinePad
}

// MappedRingBuffer is a fixed-capacity ring of (key, owned value) pairs.
// At most one entry per key exists at any time; pushing a key that is
// already present overwrites that entry in place rather than occupying a
// second slot. Overflow evicts the oldest occupied slot (FIFO by slot
// index). MappedRingBuffer carries its own lock, which serializes every
// operation; the IntraProcessManager relies on it rather than holding a
// lock of its own around push/take.
type MappedRingBuffer[T any] struct {
	mu       sync.Mutex
	slots    []slot[T]
	next     int // next slot to write on push, i.e. the FIFO head
	capacity int
}

// New builds a MappedRingBuffer with room for capacity entries. capacity is
// typically the publisher's QoS depth, so O(capacity) scans stay cheap.
func New[T any](capacity int) *MappedRingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &MappedRingBuffer[T]{
		slots:    make([]slot[T], capacity),
		capacity: capacity,
	}
}

func (r *MappedRingBuffer[T]) indexOf(key uint64) int {
	for i := range r.slots {
		if r.slots[i].occupied && r.slots[i].key == key {
			return i
		}
	}
	return -1
}

// PushUnique places v at key k into the next slot, evicting whatever
// occupied that slot. If k already exists elsewhere in the ring, that
// earlier entry is overwritten in place instead, preserving the
// unique-key invariant. evicted reports whether a distinct key was
// dropped as a result (the caller uses this to age out consume_shared
// waiters).
func (r *MappedRingBuffer[T]) PushUnique(k uint64, v T) (evictedKey uint64, evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(k); i >= 0 {
		r.slots[i].value = v
		r.slots[i].refs = 0
		return 0, false
	}

	i := r.next
	r.next = (r.next + 1) % r.capacity
	if r.slots[i].occupied {
		evictedKey, evicted = r.slots[i].key, true
	}
	r.slots[i] = slot[T]{occupied: true, key: k, value: v}
	return evictedKey, evicted
}

// TakeUnique locates the slot for k, removes it, and returns its value.
// ok is false if k is absent (already taken or evicted).
func (r *MappedRingBuffer[T]) TakeUnique(k uint64) (v T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(k)
	if i < 0 {
		return v, false
	}
	v = r.slots[i].value
	r.slots[i] = slot[T]{}
	return v, true
}

// ConsumeShared returns a borrowed copy of the value at k without removing
// it, decrementing a per-entry remaining-readers counter. When the counter
// reaches zero the slot is freed; callers that never call SetShareCount
// effectively hold the entry until it is evicted or TakeUnique'd.
func (r *MappedRingBuffer[T]) ConsumeShared(k uint64) (v T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(k)
	if i < 0 {
		return v, false
	}
	v = r.slots[i].value
	if r.slots[i].refs > 0 {
		r.slots[i].refs--
		if r.slots[i].refs == 0 {
			r.slots[i] = slot[T]{}
		}
	}
	return v, true
}

// SetShareCount initializes the number of outstanding consume_shared
// takers for k, so the entry is freed once the last one has consumed it.
// Called by the intra-process manager when it discovers more than one
// effective subscriber for a stored message.
func (r *MappedRingBuffer[T]) SetShareCount(k uint64, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(k); i >= 0 {
		r.slots[i].refs = n
	}
}

// PopOldest removes and returns the oldest occupied entry: the first
// occupied slot scanning forward from the one the next push would write.
// ok is false if the ring is empty. Housekeeping only; not required for
// correctness.
func (r *MappedRingBuffer[T]) PopOldest() (k uint64, v T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for j := 0; j < r.capacity; j++ {
		i := (r.next + j) % r.capacity
		if r.slots[i].occupied {
			k, v = r.slots[i].key, r.slots[i].value
			r.slots[i] = slot[T]{}
			return k, v, true
		}
	}
	return 0, v, false
}

// Len reports the number of occupied slots. Test/diagnostic helper.
func (r *MappedRingBuffer[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.slots {
		if r.slots[i].occupied {
			n++
		}
	}
	return n
}

// Capacity returns C.
func (r *MappedRingBuffer[T]) Capacity() int { return r.capacity }
