package node

import (
	"sync"
	"time"

	"github.com/wayfarer-robotics/rclgo/callbackgroup"
	"github.com/wayfarer-robotics/rclgo/internal/xerr"
	"github.com/wayfarer-robotics/rclgo/middleware"
)

// IntraTopicSuffix is appended to a topic name to derive the companion
// topic carrying (publisher_id, seq) intra-process notices.
const IntraTopicSuffix = "__intra"

// intraNotice is published on the T__intra companion topic. It never
// leaves the in-memory notice channel into user code.
type intraNotice struct {
	PublisherID uint64
	Seq         uint64
}

// interEnvelope wraps a message an intra-process-enabled publisher also
// emits on the plain topic for subscribers outside this process. The
// sender gid lets a same-process subscriber recognize it as a duplicate
// of the intra-process delivery and drop it.
type interEnvelope struct {
	GID     string
	Payload any
}

// Publisher wraps a middleware publisher handle and, when the owning node
// has intra-process enabled, also owns an intra-process publisher id and a
// companion notice publisher.
type Publisher struct {
	id     uint64
	topic  string
	typeID string
	node   *Node
	handle middleware.PublisherHandle

	intraID      uint64
	noticeHandle middleware.PublisherHandle
}

func (p *Publisher) ID() uint64      { return p.id }
func (p *Publisher) Topic() string   { return p.topic }
func (p *Publisher) IsIntra() bool   { return p.intraID != 0 }

// Publish hands msg to the middleware. When intra-process is enabled this
// stores the owned object in the intra-process manager and emits a notice
// on the companion topic; the plain topic carries only a gid-tagged
// envelope so out-of-process subscribers still see the message while
// same-process ones drop it as a duplicate.
func (p *Publisher) Publish(msg any) error {
	if p.IsIntra() {
		seq, err := p.node.ipm.StoreIntraProcessMessage(p.intraID, p.typeID, msg)
		if err != nil {
			return err
		}
		if err := p.noticeHandle.Publish(intraNotice{PublisherID: p.intraID, Seq: seq}); err != nil {
			return err
		}
		return p.handle.Publish(interEnvelope{GID: p.node.gid, Payload: msg})
	}
	return p.handle.Publish(msg)
}

func (p *Publisher) close() error {
	if p.IsIntra() {
		p.node.ipm.RemovePublisher(p.intraID)
		_ = p.noticeHandle.Close()
	}
	return p.handle.Close()
}

// Subscription wraps a middleware subscription handle and, when intra
// process is enabled, also a companion notice subscription and an
// intra-process subscription id.
type Subscription struct {
	id          uint64
	topic       string
	typeID      string
	ignoreLocal bool
	group       *callbackgroup.Group
	node        *Node
	handle      middleware.SubscriptionHandle
	callback    func(msg any)

	intraID      uint64
	noticeHandle middleware.SubscriptionHandle
}

func (s *Subscription) ID() uint64                          { return s.id }
func (s *Subscription) Topic() string                       { return s.topic }
func (s *Subscription) Group() *callbackgroup.Group          { return s.group }
func (s *Subscription) IsIntra() bool                        { return s.intraID != 0 }
func (s *Subscription) Handle() middleware.SubscriptionHandle { return s.handle }
func (s *Subscription) NoticeHandle() middleware.SubscriptionHandle {
	return s.noticeHandle
}

// ResolveNotice type-asserts raw (as taken off the companion notice
// handle by the middleware) into an intra-process notice and resolves it
// into the owned or shared message it refers to, via the owning node's
// intra-process manager.
func (s *Subscription) ResolveNotice(raw any) (any, bool, error) {
	notice, ok := raw.(intraNotice)
	if !ok {
		return nil, false, xerr.New(xerr.ErrTypeMismatch, "malformed intra-process notice")
	}
	return s.node.ipm.TakeIntraProcessMessage(notice.PublisherID, s.intraID, notice.Seq)
}

// ResolveInter unwraps a message taken off the plain topic handle.
// deliver is false when the message is a same-process publisher's
// envelope: it was already handed over through the intra-process path (or
// deliberately skipped there because this subscription ignores local
// publications), so dispatching it again would be a duplicate.
func (s *Subscription) ResolveInter(raw any) (payload any, deliver bool) {
	env, isEnv := raw.(interEnvelope)
	if !isEnv {
		return raw, true
	}
	if s.node.useIntraProcess && s.node.ipm.MatchesAnyPublishers(env.GID) {
		return nil, false
	}
	return env.Payload, true
}

// Dispatch invokes the user callback with msg.
func (s *Subscription) Dispatch(msg any) { s.callback(msg) }

func (s *Subscription) close() error {
	s.group.Remove(s.id)
	if s.IsIntra() {
		s.node.ipm.RemoveSubscription(s.intraID)
		_ = s.noticeHandle.Close()
	}
	return s.handle.Close()
}

// Timer wraps a middleware timer handle.
type Timer struct {
	id       uint64
	group    *callbackgroup.Group
	node     *Node
	handle   middleware.TimerHandle
	callback func()
	period   time.Duration
}

func (t *Timer) ID() uint64                     { return t.id }
func (t *Timer) Group() *callbackgroup.Group    { return t.group }
func (t *Timer) Deadline() time.Time            { return t.handle.Deadline() }
func (t *Timer) Dispatch()                      { t.callback() }
func (t *Timer) Reset()                         { t.handle.Reset(t.period) }
func (t *Timer) close() error                   { t.group.Remove(t.id); return t.handle.Close() }

// Service wraps a middleware service handle.
type Service struct {
	id       uint64
	name     string
	group    *callbackgroup.Group
	node     *Node
	handle   middleware.ServiceHandle
	callback func(req any) any
}

func (s *Service) ID() uint64                  { return s.id }
func (s *Service) Name() string                { return s.name }
func (s *Service) Group() *callbackgroup.Group { return s.group }
func (s *Service) Handle() middleware.ServiceHandle { return s.handle }
func (s *Service) Dispatch(req any) any        { return s.callback(req) }
func (s *Service) close() error                { s.group.Remove(s.id); return s.handle.Close() }

// Client wraps a middleware client handle and tracks pending calls so a
// resolved response can find the waiter that issued it.
type Client struct {
	id     uint64
	name   string
	group  *callbackgroup.Group
	node   *Node
	handle middleware.ClientHandle

	pendingMu sync.Mutex
	pending   map[uint64]func(resp any)
}

func (c *Client) ID() uint64                  { return c.id }
func (c *Client) Name() string                { return c.name }
func (c *Client) Group() *callbackgroup.Group { return c.group }
func (c *Client) Handle() middleware.ClientHandle { return c.handle }

// Call sends req and registers onResponse to be invoked when the executor
// later resolves the matching TakeResponse.
func (c *Client) Call(req any, onResponse func(resp any)) (uint64, error) {
	corrID, err := c.handle.SendRequest(req)
	if err != nil {
		return 0, err
	}
	c.pendingMu.Lock()
	c.pending[corrID] = onResponse
	c.pendingMu.Unlock()
	return corrID, nil
}

// PendingCorrelationIDs snapshots the correlation ids this client is
// still waiting on a response for. The executor uses this to figure out
// which id(s) to try TakeResponse against once the client's handle is
// reported ready, since the wait-set only reports "this client has
// something", not which request it belongs to.
func (c *Client) PendingCorrelationIDs() []uint64 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	out := make([]uint64, 0, len(c.pending))
	for id := range c.pending {
		out = append(out, id)
	}
	return out
}

// Resolve looks up and invokes the pending callback registered for
// corrID by Call, used by the executor after TakeResponse succeeds. A
// no-op if corrID is unknown (already resolved, or never registered).
func (c *Client) Resolve(corrID uint64, resp any) {
	c.pendingMu.Lock()
	cb, ok := c.pending[corrID]
	if ok {
		delete(c.pending, corrID)
	}
	c.pendingMu.Unlock()
	if ok {
		cb(resp)
	}
}

func (c *Client) close() error { c.group.Remove(c.id); return c.handle.Close() }
