// Package intraprocess implements the same-process publish/subscribe short
// circuit: a publisher and a subscriber living in the same process hand
// owned message objects through a ring buffer instead of paying for
// middleware serialization.
package intraprocess

import (
	"sync"
	"sync/atomic"

	"github.com/wayfarer-robotics/rclgo/internal/xerr"
	"github.com/wayfarer-robotics/rclgo/lib/id"
	"github.com/wayfarer-robotics/rclgo/ringbuffer"
)

type message struct {
	typeID  string
	payload any
}

type publisherEntry struct {
	id     uint64
	topic  string
	typeID string
	gid    string
	ring   *ringbuffer.MappedRingBuffer[message]
	seq    uint64

	sharedMu   sync.Mutex
	sharedInit map[uint64]bool
}

type subscriptionEntry struct {
	id          uint64
	topic       string
	typeID      string
	ignoreLocal bool
}

// Manager is the per-process registry mapping publishers and subscriptions
// on identical topics. There is conceptually one Manager per
// process; a Node with use_intra_process=true registers its entities with
// whichever Manager instance it was constructed with.
type Manager struct {
	mu            sync.RWMutex
	publishers    map[uint64]*publisherEntry
	subscriptions map[uint64]*subscriptionEntry
	pubIDs        id.UUIDGen
	subIDs        id.UUIDGen

	destroyed atomic.Bool

	onEvict func(topic string)
}

// SetEvictionHook registers fn to be called whenever PushUnique evicts the
// oldest entry from a publisher's ring on overflow, letting callers (the
// obs package) count drops without this package importing a metrics
// client directly.
func (m *Manager) SetEvictionHook(fn func(topic string)) {
	m.mu.Lock()
	m.onEvict = fn
	m.mu.Unlock()
}

// New builds an empty intra-process manager.
func New() (*Manager, error) {
	pubIDs, err := id.MonotonicNonZeroID()
	if err != nil {
		return nil, err
	}
	subIDs, err := id.MonotonicNonZeroID()
	if err != nil {
		return nil, err
	}
	return &Manager{
		publishers:    make(map[uint64]*publisherEntry),
		subscriptions: make(map[uint64]*subscriptionEntry),
		pubIDs:        pubIDs,
		subIDs:        subIDs,
	}, nil
}

func (m *Manager) checkAlive() error {
	if m.destroyed.Load() {
		return xerr.New(xerr.ErrUseAfterDestroy, "intra-process manager has been destroyed")
	}
	return nil
}

// AddPublisher registers a publisher on topic with a ring of the given
// depth, returning its publisher id. typeID identifies the publisher's
// declared message type for the dynamic type check on delivery; gid is the
// middleware identity used by MatchesAnyPublishers.
func (m *Manager) AddPublisher(topic string, depth int, typeID, gid string) (uint64, error) {
	if err := m.checkAlive(); err != nil {
		return 0, err
	}
	pid := m.pubIDs.Number()
	entry := &publisherEntry{
		id:         pid,
		topic:      topic,
		typeID:     typeID,
		gid:        gid,
		ring:       ringbuffer.New[message](depth),
		sharedInit: make(map[uint64]bool),
	}
	m.mu.Lock()
	m.publishers[pid] = entry
	m.mu.Unlock()
	return pid, nil
}

// AddSubscription registers a subscription on topic, returning its
// subscription id. ignoreLocal mirrors ignore_local_publications: when
// true the subscription never takes intra-process messages, and it is not
// counted as an effective subscriber when deciding between unique and
// shared delivery.
func (m *Manager) AddSubscription(topic string, ignoreLocal bool, typeID string) (uint64, error) {
	if err := m.checkAlive(); err != nil {
		return 0, err
	}
	sid := m.subIDs.Number()
	m.mu.Lock()
	m.subscriptions[sid] = &subscriptionEntry{id: sid, topic: topic, typeID: typeID, ignoreLocal: ignoreLocal}
	m.mu.Unlock()
	return sid, nil
}

// RemovePublisher deregisters a publisher. Idempotent.
func (m *Manager) RemovePublisher(publisherID uint64) {
	m.mu.Lock()
	delete(m.publishers, publisherID)
	m.mu.Unlock()
}

// RemoveSubscription deregisters a subscription. Idempotent.
func (m *Manager) RemoveSubscription(subscriptionID uint64) {
	m.mu.Lock()
	delete(m.subscriptions, subscriptionID)
	m.mu.Unlock()
}

// Destroy marks the manager unusable. Any subsequent Store/Take call fails
// loudly; a caller reaching a destroyed manager is a programming bug, not
// a recoverable condition.
func (m *Manager) Destroy() {
	m.destroyed.Store(true)
}

func (m *Manager) effectiveSubscriberCount(topic string) int {
	n := 0
	for _, s := range m.subscriptions {
		if s.topic == topic && !s.ignoreLocal {
			n++
		}
	}
	return n
}

// StoreIntraProcessMessage assigns a monotonically increasing sequence
// number to payload and pushes it into publisherID's ring, returning the
// sequence the caller then announces on the companion "__intra" topic.
func (m *Manager) StoreIntraProcessMessage(publisherID uint64, typeID string, payload any) (uint64, error) {
	if err := m.checkAlive(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	pub, ok := m.publishers[publisherID]
	m.mu.RUnlock()
	if !ok {
		return 0, xerr.Newf(xerr.ErrUseAfterDestroy, "publisher %d not registered", publisherID)
	}
	if pub.typeID != typeID {
		return 0, xerr.Newf(xerr.ErrTypeMismatch, "publisher declared type %q, got %q", pub.typeID, typeID)
	}
	seq := atomic.AddUint64(&pub.seq, 1)
	if evictedKey, evicted := pub.ring.PushUnique(seq, message{typeID: typeID, payload: payload}); evicted {
		pub.sharedMu.Lock()
		delete(pub.sharedInit, evictedKey)
		pub.sharedMu.Unlock()
		m.mu.RLock()
		hook := m.onEvict
		m.mu.RUnlock()
		if hook != nil {
			hook(pub.topic)
		}
	}
	return seq, nil
}

// TakeIntraProcessMessage resolves a (publisher_id, seq) notice delivered
// to subscriptionID. ok is false for a clean miss: the subscription
// ignores local publications, or the entry was already taken/evicted.
// err is non-nil only for a type mismatch or a manager/entity that no
// longer exists.
func (m *Manager) TakeIntraProcessMessage(publisherID, subscriptionID, seq uint64) (payload any, ok bool, err error) {
	if err = m.checkAlive(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	pub, pubOK := m.publishers[publisherID]
	sub, subOK := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !pubOK || !subOK {
		return nil, false, xerr.New(xerr.ErrUseAfterDestroy, "publisher or subscription no longer registered")
	}
	if sub.ignoreLocal {
		return nil, false, nil
	}
	if sub.typeID != pub.typeID {
		return nil, false, xerr.Newf(xerr.ErrTypeMismatch, "subscription expects type %q, publisher declared %q", sub.typeID, pub.typeID)
	}

	m.mu.RLock()
	count := m.effectiveSubscriberCount(pub.topic)
	m.mu.RUnlock()

	if count <= 1 {
		msg, taken := pub.ring.TakeUnique(seq)
		if !taken {
			return nil, false, nil
		}
		return msg.payload, true, nil
	}

	pub.sharedMu.Lock()
	if !pub.sharedInit[seq] {
		pub.ring.SetShareCount(seq, count)
		pub.sharedInit[seq] = true
	}
	pub.sharedMu.Unlock()

	msg, taken := pub.ring.ConsumeShared(seq)
	if !taken {
		// Entry already fully consumed or evicted; drop its share
		// bookkeeping along with it.
		pub.sharedMu.Lock()
		delete(pub.sharedInit, seq)
		pub.sharedMu.Unlock()
		return nil, false, nil
	}
	return msg.payload, true, nil
}

// MatchesAnyPublishers reports whether gid belongs to any publisher
// registered with this manager, used to drop inter-process duplicates of
// messages already delivered intra-process.
func (m *Manager) MatchesAnyPublishers(gid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.publishers {
		if p.gid == gid {
			return true
		}
	}
	return false
}
