// Package inmem is the one concrete Middleware this module ships: an
// in-process broker that fans out published messages to subscriber queues
// and routes service requests/responses by name, entirely in memory. It
// exists to make node/executor genuinely testable end-to-end without a
// real DDS-like transport.
package inmem

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wayfarer-robotics/rclgo/internal/xerr"
	"github.com/wayfarer-robotics/rclgo/lib/id"
	"github.com/wayfarer-robotics/rclgo/lib/ipc"
	"github.com/wayfarer-robotics/rclgo/middleware"
	"github.com/wayfarer-robotics/rclgo/shutdown"
)

// pollInterval is how often Wait re-checks readiness. An in-memory
// reference broker has no OS-level readiness notification to block on, so
// it polls; real transports back Wait with epoll/kqueue/IOCP instead.
const pollInterval = 250 * time.Microsecond

// Middleware is the in-memory broker.
type Middleware struct {
	mu  sync.Mutex
	ids id.UUIDGen

	topics   map[string][]*subscription
	services map[string]*service
	// pendingResponses maps a correlation id to the one-shot closable
	// channel a client's SendRequest registered, so a matching
	// SendResponse can deliver without the service knowing which client
	// asked. ClosableChannel guards against a response racing a client
	// that gave up and closed its side first.
	pendingResponses map[uint64]ipc.ClosableChannel[any]
	correlations     map[uint64]*client
}

// New builds an empty broker. Correlation ids are snowflake ids rather
// than a monotonic counter: unlike node/intraprocess's entity ids, nothing
// here relies on correlation id ordering, only on uniqueness across the
// broker's lifetime, so a single (datacenter, machine) pair of zero is
// enough for a process-local broker.
func New() *Middleware {
	gen, err := id.SnowFlakeID(0, 0, time.Now)
	if err != nil {
		panic(err)
	}
	return &Middleware{
		ids:              gen,
		topics:           make(map[string][]*subscription),
		services:         make(map[string]*service),
		pendingResponses: make(map[uint64]ipc.ClosableChannel[any]),
		correlations:     make(map[uint64]*client),
	}
}

var _ middleware.Middleware = (*Middleware)(nil)

// --- publisher -------------------------------------------------------------

type publisher struct {
	topic  string
	broker *Middleware
}

func (p *publisher) Topic() string { return p.topic }

func (p *publisher) Publish(msg any) error {
	p.broker.mu.Lock()
	subs := append([]*subscription(nil), p.broker.topics[p.topic]...)
	p.broker.mu.Unlock()
	for _, s := range subs {
		select {
		case s.queue <- msg:
		default:
			// subscriber queue full: drop, mirroring a bounded QoS depth
			// rather than blocking the publisher.
		}
	}
	return nil
}

func (p *publisher) Close() error { return nil }

func (m *Middleware) CreatePublisher(topic string) (middleware.PublisherHandle, error) {
	if topic == "" {
		return nil, xerr.New(xerr.ErrMiddlewareCreateFailure, "empty topic name")
	}
	return &publisher{topic: topic, broker: m}, nil
}

// --- subscription ------------------------------------------------------------

type subscription struct {
	topic  string
	queue  chan any
	broker *Middleware
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	subs := s.broker.topics[s.topic]
	for i, other := range subs {
		if other == s {
			s.broker.topics[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Middleware) CreateSubscription(topic string) (middleware.SubscriptionHandle, error) {
	if topic == "" {
		return nil, xerr.New(xerr.ErrMiddlewareCreateFailure, "empty topic name")
	}
	s := &subscription{topic: topic, queue: make(chan any, 64), broker: m}
	m.mu.Lock()
	m.topics[topic] = append(m.topics[topic], s)
	m.mu.Unlock()
	return s, nil
}

// --- service / client --------------------------------------------------------

type requestEnvelope struct {
	correlationID uint64
	req           any
}

type service struct {
	name   string
	reqs   chan requestEnvelope
	broker *Middleware
}

func (s *service) Name() string { return s.name }

func (s *service) Close() error {
	s.broker.mu.Lock()
	delete(s.broker.services, s.name)
	s.broker.mu.Unlock()
	return nil
}

func (m *Middleware) CreateService(name string) (middleware.ServiceHandle, error) {
	if name == "" {
		return nil, xerr.New(xerr.ErrMiddlewareCreateFailure, "empty service name")
	}
	s := &service{name: name, reqs: make(chan requestEnvelope, 64), broker: m}
	m.mu.Lock()
	m.services[name] = s
	m.mu.Unlock()
	return s, nil
}

type client struct {
	name    string
	broker  *Middleware
	readyMu sync.Mutex
	ready   int32 // count of correlations with an undelivered response
}

func (c *client) Name() string { return c.name }

func (c *client) Close() error { return nil }

func (c *client) SendRequest(req any) (uint64, error) {
	c.broker.mu.Lock()
	svc, ok := c.broker.services[c.name]
	if !ok {
		c.broker.mu.Unlock()
		return 0, xerr.Newf(xerr.ErrMiddlewareCreateFailure, "no service registered for %q", c.name)
	}
	corrID := c.broker.ids.Number()
	respCh := ipc.NewSafeClosableChannel[any](1)
	c.broker.pendingResponses[corrID] = respCh
	c.broker.correlations[corrID] = c
	c.broker.mu.Unlock()

	select {
	case svc.reqs <- requestEnvelope{correlationID: corrID, req: req}:
	default:
		return 0, xerr.Newf(xerr.ErrMiddlewareWaitFailure, "service %q request queue full", c.name)
	}
	return corrID, nil
}

func (m *Middleware) CreateClient(name string) (middleware.ClientHandle, error) {
	if name == "" {
		return nil, xerr.New(xerr.ErrMiddlewareCreateFailure, "empty client name")
	}
	return &client{name: name, broker: m}, nil
}

// --- timer -------------------------------------------------------------------

type timer struct {
	period   time.Duration
	deadline atomic.Value // time.Time
}

func (t *timer) Deadline() time.Time { return t.deadline.Load().(time.Time) }

func (t *timer) Reset(period time.Duration) {
	if period > 0 {
		t.period = period
	}
	t.deadline.Store(time.Now().Add(t.period))
}

func (t *timer) Close() error { return nil }

func (m *Middleware) CreateTimer(period time.Duration) (middleware.TimerHandle, error) {
	if period <= 0 {
		return nil, xerr.New(xerr.ErrMiddlewareCreateFailure, "timer period must be positive")
	}
	t := &timer{period: period}
	t.deadline.Store(time.Now().Add(period))
	return t, nil
}

func (m *Middleware) CreateGuardCondition() *shutdown.GuardCondition {
	return shutdown.NewGuardCondition()
}

// --- wait / take / send -------------------------------------------------------

func subReady(s middleware.SubscriptionHandle) bool {
	sub, ok := s.(*subscription)
	return ok && sub != nil && len(sub.queue) > 0
}

func svcReady(s middleware.ServiceHandle) bool {
	svc, ok := s.(*service)
	return ok && svc != nil && len(svc.reqs) > 0
}

func clientReady(c middleware.ClientHandle) bool {
	cl, ok := c.(*client)
	if !ok || cl == nil {
		return false
	}
	cl.readyMu.Lock()
	defer cl.readyMu.Unlock()
	return cl.ready > 0
}

func guardReady(g *shutdown.GuardCondition) bool {
	select {
	case <-g.Wait():
		return true
	default:
		return false
	}
}

func (m *Middleware) Wait(ws *middleware.WaitSet, timeout time.Duration) error {
	var deadline time.Time
	bounded := timeout > 0
	if bounded {
		deadline = time.Now().Add(timeout)
	}

	anyReady := func() bool {
		for _, s := range ws.Subscriptions {
			if s != nil && subReady(s) {
				return true
			}
		}
		for _, s := range ws.Services {
			if s != nil && svcReady(s) {
				return true
			}
		}
		for _, c := range ws.Clients {
			if c != nil && clientReady(c) {
				return true
			}
		}
		for _, g := range ws.Guards {
			if g != nil && guardReady(g) {
				return true
			}
		}
		return false
	}

	for {
		if anyReady() {
			break
		}
		if timeout == 0 {
			break // single non-blocking poll, e.g. for spin_some
		}
		if bounded && !time.Now().Before(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}

	for i, s := range ws.Subscriptions {
		if s != nil && !subReady(s) {
			ws.Subscriptions[i] = nil
		}
	}
	for i, s := range ws.Services {
		if s != nil && !svcReady(s) {
			ws.Services[i] = nil
		}
	}
	for i, c := range ws.Clients {
		if c != nil && !clientReady(c) {
			ws.Clients[i] = nil
		}
	}
	for i, g := range ws.Guards {
		if g != nil && !guardReady(g) {
			ws.Guards[i] = nil
		}
	}
	return nil
}

func (m *Middleware) Take(sub middleware.SubscriptionHandle) (any, bool) {
	s, ok := sub.(*subscription)
	if !ok {
		return nil, false
	}
	select {
	case msg := <-s.queue:
		return msg, true
	default:
		return nil, false
	}
}

func (m *Middleware) TakeRequest(svc middleware.ServiceHandle) (any, uint64, bool) {
	s, ok := svc.(*service)
	if !ok {
		return nil, 0, false
	}
	select {
	case env := <-s.reqs:
		return env.req, env.correlationID, true
	default:
		return nil, 0, false
	}
}

func (m *Middleware) TakeResponse(cli middleware.ClientHandle, correlationID uint64) (any, bool) {
	c, ok := cli.(*client)
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	ch, exists := m.pendingResponses[correlationID]
	m.mu.Unlock()
	if !exists {
		return nil, false
	}
	select {
	case resp := <-ch.Wait():
		_ = ch.Close()
		m.mu.Lock()
		delete(m.pendingResponses, correlationID)
		delete(m.correlations, correlationID)
		m.mu.Unlock()
		c.readyMu.Lock()
		c.ready--
		c.readyMu.Unlock()
		return resp, true
	default:
		return nil, false
	}
}

func (m *Middleware) SendResponse(svc middleware.ServiceHandle, correlationID uint64, resp any) error {
	m.mu.Lock()
	ch, exists := m.pendingResponses[correlationID]
	cl := m.correlations[correlationID]
	m.mu.Unlock()
	if !exists {
		return xerr.Newf(xerr.ErrMiddlewareWaitFailure, "no pending request for correlation id %d", correlationID)
	}
	if err := ch.Send(resp, true); err != nil {
		return xerr.Newf(xerr.ErrMiddlewareWaitFailure, "response channel for correlation id %d: %v", correlationID, err)
	}
	if cl != nil {
		cl.readyMu.Lock()
		cl.ready++
		cl.readyMu.Unlock()
	}
	return nil
}
