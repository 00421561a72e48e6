// Package node implements the per-node entity registry: publishers,
// subscriptions, timers, services, clients, and the default callback
// group every node owns.
package node

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wayfarer-robotics/rclgo/callbackgroup"
	"github.com/wayfarer-robotics/rclgo/internal/xerr"
	"github.com/wayfarer-robotics/rclgo/internal/xlog"
	"github.com/wayfarer-robotics/rclgo/intraprocess"
	"github.com/wayfarer-robotics/rclgo/lib/id"
	"github.com/wayfarer-robotics/rclgo/middleware"
)

// SubscriptionWaitEntry names one handle the executor should include in
// its wait-set for a given subscription: either the ordinary inter-process
// handle or, when intra-process is enabled, the companion notice handle.
// A single Subscription with intra-process enabled contributes two
// entries, one per handle.
type SubscriptionWaitEntry struct {
	Sub     *Subscription
	Handle  middleware.SubscriptionHandle
	IsIntra bool
}

// Node is an addressable participant owning entity collections.
type Node struct {
	name string
	gid  string
	tag  string // short nano id, for log correlation only; gid is the identity that matters
	mw   middleware.Middleware
	ipm  *intraprocess.Manager
	log  xlog.Logger

	useIntraProcess bool
	intraDepth      int

	mu            sync.Mutex
	defaultGroup  *callbackgroup.Group
	groups        map[*callbackgroup.Group]struct{}
	entityIDs     id.UUIDGen
	publishers    map[uint64]*Publisher
	subscriptions map[uint64]*Subscription
	timers        map[uint64]*Timer
	services      map[uint64]*Service
	clients       map[uint64]*Client
}

// New builds a Node named name talking to mw. The node's middleware
// identity (gid) is a fresh random uuid — used by MatchesAnyPublishers on
// the intra-process path to distinguish this node's publishers from
// another process's.
func New(name string, mw middleware.Middleware, opts ...Option) (*Node, error) {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	entityIDs, err := id.MonotonicNonZeroID()
	if err != nil {
		return nil, err
	}
	nanoID, err := id.ClassicNanoID(8)
	if err != nil {
		return nil, err
	}

	n := &Node{
		name:            name,
		gid:             uuid.NewString(),
		tag:             nanoID(),
		mw:              mw,
		ipm:             o.ipm,
		log:             o.logger,
		useIntraProcess: o.useIntraProcess,
		intraDepth:      o.intraDepth,
		groups:          make(map[*callbackgroup.Group]struct{}),
		entityIDs:       entityIDs,
		publishers:      make(map[uint64]*Publisher),
		subscriptions:   make(map[uint64]*Subscription),
		timers:          make(map[uint64]*Timer),
		services:        make(map[uint64]*Service),
		clients:         make(map[uint64]*Client),
	}
	n.defaultGroup = callbackgroup.New(callbackgroup.MutuallyExclusive)
	n.groups[n.defaultGroup] = struct{}{}
	return n, nil
}

func (n *Node) Name() string { return n.name }
func (n *Node) GID() string  { return n.gid }
func (n *Node) Tag() string  { return n.tag }

// DefaultGroup returns the node's implicit MutuallyExclusive group.
func (n *Node) DefaultGroup() *callbackgroup.Group { return n.defaultGroup }

// CreateCallbackGroup builds and registers a new group with this node.
func (n *Node) CreateCallbackGroup(kind callbackgroup.Type) *callbackgroup.Group {
	g := callbackgroup.New(kind)
	n.mu.Lock()
	n.groups[g] = struct{}{}
	n.mu.Unlock()
	return g
}

func (n *Node) resolveGroup(g *callbackgroup.Group) (*callbackgroup.Group, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if g == nil {
		return n.defaultGroup, nil
	}
	if _, ok := n.groups[g]; !ok {
		return nil, xerr.New(xerr.ErrGroupNotInNode, "callback group is not registered with this node")
	}
	return g, nil
}

const defaultIntraDepth = 10

// CreatePublisher creates a publisher on topic declaring typeID, attached
// to group (or the default group if nil).
func (n *Node) CreatePublisher(topic, typeID string, group *callbackgroup.Group) (*Publisher, error) {
	if _, err := n.resolveGroup(group); err != nil {
		return nil, err
	}
	handle, err := n.mw.CreatePublisher(topic)
	if err != nil {
		return nil, xerr.Newf(xerr.ErrMiddlewareCreateFailure, "create publisher %q: %v", topic, err)
	}
	p := &Publisher{id: n.entityIDs.Number(), topic: topic, typeID: typeID, node: n, handle: handle}

	if n.useIntraProcess {
		intraID, err := n.ipm.AddPublisher(topic, n.intraDepth, typeID, n.gid)
		if err != nil {
			return nil, err
		}
		noticeHandle, err := n.mw.CreatePublisher(topic + IntraTopicSuffix)
		if err != nil {
			n.ipm.RemovePublisher(intraID)
			return nil, xerr.Newf(xerr.ErrMiddlewareCreateFailure, "create intra notice publisher %q: %v", topic, err)
		}
		p.intraID = intraID
		p.noticeHandle = noticeHandle
	}

	n.mu.Lock()
	n.publishers[p.id] = p
	n.mu.Unlock()
	return p, nil
}

// CreateSubscription creates a subscription on topic expecting typeID,
// attached to group (or the default group if nil). ignoreLocal mirrors
// ignore_local_publications.
func (n *Node) CreateSubscription(topic, typeID string, ignoreLocal bool, group *callbackgroup.Group, callback func(msg any)) (*Subscription, error) {
	g, err := n.resolveGroup(group)
	if err != nil {
		return nil, err
	}
	handle, err := n.mw.CreateSubscription(topic)
	if err != nil {
		return nil, xerr.Newf(xerr.ErrMiddlewareCreateFailure, "create subscription %q: %v", topic, err)
	}
	s := &Subscription{
		id: n.entityIDs.Number(), topic: topic, typeID: typeID, ignoreLocal: ignoreLocal,
		group: g, node: n, handle: handle, callback: callback,
	}

	if n.useIntraProcess {
		intraID, err := n.ipm.AddSubscription(topic, ignoreLocal, typeID)
		if err != nil {
			return nil, err
		}
		noticeHandle, err := n.mw.CreateSubscription(topic + IntraTopicSuffix)
		if err != nil {
			n.ipm.RemoveSubscription(intraID)
			return nil, xerr.Newf(xerr.ErrMiddlewareCreateFailure, "create intra notice subscription %q: %v", topic, err)
		}
		s.intraID = intraID
		s.noticeHandle = noticeHandle
	}

	g.AddSubscription(s.id)
	n.mu.Lock()
	n.subscriptions[s.id] = s
	n.mu.Unlock()
	return s, nil
}

// CreateTimer creates a timer firing every period, attached to group (or
// the default group if nil).
func (n *Node) CreateTimer(period time.Duration, group *callbackgroup.Group, callback func()) (*Timer, error) {
	g, err := n.resolveGroup(group)
	if err != nil {
		return nil, err
	}
	handle, err := n.mw.CreateTimer(period)
	if err != nil {
		return nil, xerr.Newf(xerr.ErrMiddlewareCreateFailure, "create timer: %v", err)
	}
	t := &Timer{id: n.entityIDs.Number(), group: g, node: n, handle: handle, callback: callback, period: period}
	g.AddTimer(t.id)
	n.mu.Lock()
	n.timers[t.id] = t
	n.mu.Unlock()
	return t, nil
}

// CreateService creates a service endpoint named name, attached to group
// (or the default group if nil).
func (n *Node) CreateService(name string, group *callbackgroup.Group, callback func(req any) any) (*Service, error) {
	g, err := n.resolveGroup(group)
	if err != nil {
		return nil, err
	}
	handle, err := n.mw.CreateService(name)
	if err != nil {
		return nil, xerr.Newf(xerr.ErrMiddlewareCreateFailure, "create service %q: %v", name, err)
	}
	s := &Service{id: n.entityIDs.Number(), name: name, group: g, node: n, handle: handle, callback: callback}
	g.AddService(s.id)
	n.mu.Lock()
	n.services[s.id] = s
	n.mu.Unlock()
	return s, nil
}

// CreateClient creates a client of service name, attached to group (or the
// default group if nil).
func (n *Node) CreateClient(name string, group *callbackgroup.Group) (*Client, error) {
	g, err := n.resolveGroup(group)
	if err != nil {
		return nil, err
	}
	handle, err := n.mw.CreateClient(name)
	if err != nil {
		return nil, xerr.Newf(xerr.ErrMiddlewareCreateFailure, "create client %q: %v", name, err)
	}
	c := &Client{id: n.entityIDs.Number(), name: name, group: g, node: n, handle: handle, pending: make(map[uint64]func(any))}
	g.AddClient(c.id)
	n.mu.Lock()
	n.clients[c.id] = c
	n.mu.Unlock()
	return c, nil
}

// DestroyPublisher deregisters and closes a publisher.
func (n *Node) DestroyPublisher(p *Publisher) error {
	n.mu.Lock()
	delete(n.publishers, p.id)
	n.mu.Unlock()
	return p.close()
}

// DestroySubscription deregisters and closes a subscription.
func (n *Node) DestroySubscription(s *Subscription) error {
	n.mu.Lock()
	delete(n.subscriptions, s.id)
	n.mu.Unlock()
	return s.close()
}

// DestroyTimer deregisters and closes a timer.
func (n *Node) DestroyTimer(t *Timer) error {
	n.mu.Lock()
	delete(n.timers, t.id)
	n.mu.Unlock()
	return t.close()
}

// DestroyService deregisters and closes a service.
func (n *Node) DestroyService(s *Service) error {
	n.mu.Lock()
	delete(n.services, s.id)
	n.mu.Unlock()
	return s.close()
}

// DestroyClient deregisters and closes a client.
func (n *Node) DestroyClient(c *Client) error {
	n.mu.Lock()
	delete(n.clients, c.id)
	n.mu.Unlock()
	return c.close()
}

// ListPublishers returns a snapshot of the node's publishers.
func (n *Node) ListPublishers() []*Publisher {
	n.mu.Lock()
	defer n.mu.Unlock()
	return lo.Values(n.publishers)
}

// ListSubscriptionWaitEntries flattens every subscription's ordinary and
// (if present) intra-notice handles into one list for the executor's
// wait-set.
func (n *Node) ListSubscriptionWaitEntries() []SubscriptionWaitEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SubscriptionWaitEntry, 0, len(n.subscriptions)*2)
	for _, s := range n.subscriptions {
		out = append(out, SubscriptionWaitEntry{Sub: s, Handle: s.handle, IsIntra: false})
		if s.IsIntra() {
			out = append(out, SubscriptionWaitEntry{Sub: s, Handle: s.noticeHandle, IsIntra: true})
		}
	}
	return out
}

// ListTimers returns a snapshot of the node's timers.
func (n *Node) ListTimers() []*Timer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return lo.Values(n.timers)
}

// ListServices returns a snapshot of the node's services.
func (n *Node) ListServices() []*Service {
	n.mu.Lock()
	defer n.mu.Unlock()
	return lo.Values(n.services)
}

// ListClients returns a snapshot of the node's clients.
func (n *Node) ListClients() []*Client {
	n.mu.Lock()
	defer n.mu.Unlock()
	return lo.Values(n.clients)
}

// Close tears down every entity owned by this node, aggregating any
// failures with multierr rather than stopping at the first one.
func (n *Node) Close() error {
	n.log.Info("closing node", zap.String("name", n.name), zap.String("tag", n.tag))
	var err error
	for _, p := range n.ListPublishers() {
		err = multierr.Append(err, n.DestroyPublisher(p))
	}
	for _, s := range n.listSubscriptions() {
		err = multierr.Append(err, n.DestroySubscription(s))
	}
	for _, t := range n.ListTimers() {
		err = multierr.Append(err, n.DestroyTimer(t))
	}
	for _, s := range n.ListServices() {
		err = multierr.Append(err, n.DestroyService(s))
	}
	for _, c := range n.ListClients() {
		err = multierr.Append(err, n.DestroyClient(c))
	}
	return err
}

func (n *Node) listSubscriptions() []*Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	return lo.Values(n.subscriptions)
}
