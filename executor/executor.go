// Package executor implements the wait-and-dispatch engine: the core
// scheduling loop that rebuilds a wait-set, blocks until something is
// ready, picks exactly one ready executable honoring callback-group rules,
// dispatches it, and loops.
package executor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wayfarer-robotics/rclgo/callbackgroup"
	"github.com/wayfarer-robotics/rclgo/internal/obs"
	"github.com/wayfarer-robotics/rclgo/internal/xerr"
	"github.com/wayfarer-robotics/rclgo/internal/xlog"
	"github.com/wayfarer-robotics/rclgo/lib/queue"
	"github.com/wayfarer-robotics/rclgo/memstrategy"
	"github.com/wayfarer-robotics/rclgo/middleware"
	"github.com/wayfarer-robotics/rclgo/node"
	"github.com/wayfarer-robotics/rclgo/shutdown"
)

// defaultWaitTimeout bounds a blocking wait when no node has a pending
// timer; the station's guard condition still wakes it early on shutdown
// or on an add/remove notification.
const defaultWaitTimeout = 500 * time.Millisecond

// execKind discriminates the one ready unit of work an anyExecutable
// names.
type execKind int

const (
	execTimer execKind = iota
	execSubscription
	execService
	execClient
)

func (k execKind) String() string {
	switch k {
	case execTimer:
		return "timer"
	case execSubscription:
		return "subscription"
	case execService:
		return "service"
	case execClient:
		return "client"
	default:
		return "unknown"
	}
}

// anyExecutable names exactly one ready unit of work: created by
// selection, destroyed (via release) after dispatch returns.
type anyExecutable struct {
	kind  execKind
	group *callbackgroup.Group

	timer *node.Timer

	subEntry node.SubscriptionWaitEntry

	service *node.Service

	client *node.Client
}

// release restores the owning group's takeable flag, unconditionally of
// whether dispatch returned an error.
func (e *anyExecutable) release() {
	e.group.Release()
}

// Base is shared by the single- and multi-threaded executors: the
// attached-node set, the memory strategy, and the process interrupt
// guard every wait-set includes.
type Base struct {
	mu       sync.Mutex
	nodes    []*node.Node
	ms       memstrategy.Strategy
	station  *shutdown.Station
	addGuard *shutdown.GuardCondition
	mw       middleware.Middleware
	log      xlog.Logger
	rec      *obs.Recorder
}

// SetRecorder attaches an obs.Recorder so every selection pass reports its
// wait duration and every dispatch is counted by kind. Optional: a nil or
// never-set recorder leaves these as no-ops.
func (b *Base) SetRecorder(rec *obs.Recorder) {
	b.mu.Lock()
	b.rec = rec
	b.mu.Unlock()
}

func newBase(mw middleware.Middleware, station *shutdown.Station, logger xlog.Logger) *Base {
	if station == nil {
		station = shutdown.Default()
	}
	if logger == nil {
		logger = xlog.Nop()
	}
	return &Base{
		ms:       memstrategy.NewDefault(),
		station:  station,
		addGuard: shutdown.NewGuardCondition(),
		mw:       mw,
		log:      logger,
	}
}

// AddNode attaches node to this engine. If notify, the engine's own guard
// condition is triggered so an in-progress wait wakes and rebuilds its
// set to include the new node.
func (b *Base) AddNode(n *node.Node, notify bool) {
	b.mu.Lock()
	b.nodes = append(b.nodes, n)
	b.mu.Unlock()
	if notify {
		b.addGuard.Trigger()
	}
}

// RemoveNode detaches node. Removing the last node while a wait is in
// progress must wake it; notify achieves that the same way AddNode does.
func (b *Base) RemoveNode(n *node.Node, notify bool) {
	b.mu.Lock()
	for i, existing := range b.nodes {
		if existing == n {
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	if notify {
		b.addGuard.Trigger()
	}
}

// SetMemoryStrategy swaps the scratch allocator. Unsafe during an active
// wait; callers must only do this at a quiescent point.
func (b *Base) SetMemoryStrategy(ms memstrategy.Strategy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ms = ms
}

func (b *Base) snapshotNodes() []*node.Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*node.Node, len(b.nodes))
	copy(out, b.nodes)
	return out
}

func (b *Base) strategy() memstrategy.Strategy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ms
}

func (b *Base) recorder() *obs.Recorder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec
}

// waitSetOwners pins the entity behind each wait-set slot, index for
// index. The registry snapshots are taken exactly once per wait, so
// post-wait readiness can be zipped back onto the owning entity without a
// second, possibly differently ordered, registry walk.
type waitSetOwners struct {
	subEntries []node.SubscriptionWaitEntry
	services   []*node.Service
	clients    []*node.Client
}

// buildWaitSet snapshots every attached node's entities, borrows a
// wait-set sized for them from the memory strategy, and fills it, plus the
// station's interrupt guard and this engine's add/remove notify guard.
func (b *Base) buildWaitSet(ms memstrategy.Strategy, nodes []*node.Node) (*middleware.WaitSet, *waitSetOwners) {
	owners := &waitSetOwners{}
	for _, n := range nodes {
		owners.subEntries = append(owners.subEntries, n.ListSubscriptionWaitEntries()...)
		owners.services = append(owners.services, n.ListServices()...)
		owners.clients = append(owners.clients, n.ListClients()...)
	}

	ws := ms.BorrowWaitSet(memstrategy.WaitSetSizes{
		Subscriptions: len(owners.subEntries),
		Services:      len(owners.services),
		Clients:       len(owners.clients),
		Guards:        2,
	})
	for _, e := range owners.subEntries {
		ws.Subscriptions = append(ws.Subscriptions, e.Handle)
	}
	for _, s := range owners.services {
		ws.Services = append(ws.Services, s.Handle())
	}
	for _, c := range owners.clients {
		ws.Clients = append(ws.Clients, c.Handle())
	}
	ws.Guards = append(ws.Guards, b.station.GuardConditionHandle(), b.addGuard)
	return ws, owners
}

// earliestTimerDeadline scans every attached node's timers and returns the
// soonest deadline, used to bound the wait duration so an about-to-expire
// timer is never overshot. ok is false if there are no timers anywhere.
func earliestTimerDeadline(nodes []*node.Node) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, n := range nodes {
		for _, t := range n.ListTimers() {
			d := t.Deadline()
			if !found || d.Before(earliest) {
				earliest = d
				found = true
			}
		}
	}
	return earliest, found
}

// timerDeadlineComparator orders timers earliest-deadline-first, with
// entity id as the insertion-order tie-break. Priority() is left unused
// since the comparator reads straight off the wrapped *node.Timer instead
// of a separately maintained int64 priority.
func timerDeadlineComparator(i, j queue.ReadOnlyPQItem[*node.Timer]) queue.CmpEnum {
	ti, tj := i.Value(), j.Value()
	di, dj := ti.Deadline(), tj.Deadline()
	switch {
	case di.Before(dj):
		return queue.CmpEnum(-1)
	case di.After(dj):
		return queue.CmpEnum(1)
	case ti.ID() < tj.ID():
		return queue.CmpEnum(-1)
	case ti.ID() > tj.ID():
		return queue.CmpEnum(1)
	default:
		return queue.CmpEnum(0)
	}
}

// readyTimers returns every timer across nodes whose deadline has already
// passed, earliest first. Built fresh each call via a min-heap rather than
// maintained across calls, since timers can be added to or removed from
// any attached node between selection passes.
func readyTimers(nodes []*node.Node) []*node.Timer {
	now := time.Now()
	pq := queue.NewArrayPriorityQueue[*node.Timer](
		queue.WithArrayPriorityQueueComparator[*node.Timer](timerDeadlineComparator),
	)
	for _, n := range nodes {
		for _, t := range n.ListTimers() {
			if !t.Deadline().After(now) {
				pq.Push(queue.NewPriorityQueueItem[*node.Timer](t, 0))
			}
		}
	}
	out := make([]*node.Timer, 0, int(pq.Len()))
	for pq.Len() > 0 {
		out = append(out, pq.Pop().Value())
	}
	return out
}

// dedupeSubscriptionCandidates collapses {ordinary, intra} pairs belonging
// to the same Subscription down to one candidate, preferring the intra
// variant when both are ready: the intra notice marks an already-stored
// owned message, so it wins over the inter-process copy.
func dedupeSubscriptionCandidates(entries []node.SubscriptionWaitEntry, ready []bool) []node.SubscriptionWaitEntry {
	bySub := make(map[*node.Subscription]node.SubscriptionWaitEntry)
	order := make([]*node.Subscription, 0, len(entries))
	for i, e := range entries {
		if !ready[i] {
			continue
		}
		existing, seen := bySub[e.Sub]
		if !seen {
			order = append(order, e.Sub)
			bySub[e.Sub] = e
			continue
		}
		if e.IsIntra && !existing.IsIntra {
			bySub[e.Sub] = e
		}
	}
	out := make([]node.SubscriptionWaitEntry, 0, len(order))
	for _, s := range order {
		out = append(out, bySub[s])
	}
	return out
}

// selectOnce runs one pass of the selection algorithm: build and wait on
// a fresh wait-set, then pick and claim exactly one executable in
// timer > subscription > service > client order. ok is false if the wait
// returned with nothing claimable (either nothing was ready, or
// everything ready lost its CAS).
func (b *Base) selectOnce(timeout time.Duration) (*anyExecutable, bool, error) {
	nodes := b.snapshotNodes()
	ms := b.strategy()

	ws, owners := b.buildWaitSet(ms, nodes)
	defer ms.ReturnWaitSet(ws)

	waitFor := timeout
	if waitFor < 0 {
		// An unbounded wait still gets re-armed periodically so a guard
		// condition triggered between wait-set construction and mw.Wait()
		// (add_node, remove_node, shutdown) is never missed indefinitely.
		waitFor = defaultWaitTimeout
	}
	if earliest, found := earliestTimerDeadline(nodes); found {
		untilTimer := time.Until(earliest)
		if untilTimer < 0 {
			untilTimer = 0
		}
		if untilTimer < waitFor {
			waitFor = untilTimer
		}
	}

	waitStart := time.Now()
	err := b.mw.Wait(ws, waitFor)
	b.recorder().RecordWait(context.Background(), time.Since(waitStart).Seconds())
	// Re-arm the add/remove notify guard now that this pass has a fresh
	// node snapshot; leaving it triggered would turn every later wait
	// into a busy poll. The station's interrupt guard is never cleared.
	b.addGuard.Clear()
	if err != nil {
		return nil, false, xerr.Newf(xerr.ErrMiddlewareWaitFailure, "wait: %v", err)
	}

	// 1. timers
	for _, t := range readyTimers(nodes) {
		if t.Group().TryClaim() {
			return &anyExecutable{kind: execTimer, group: t.Group(), timer: t}, true, nil
		}
	}

	// 2. subscriptions
	ready := make([]bool, len(owners.subEntries))
	for i := range owners.subEntries {
		ready[i] = ws.Subscriptions[i] != nil
	}
	for _, c := range dedupeSubscriptionCandidates(owners.subEntries, ready) {
		if c.Sub.Group().TryClaim() {
			return &anyExecutable{kind: execSubscription, group: c.Sub.Group(), subEntry: c}, true, nil
		}
	}

	// 3. services
	for i, svc := range owners.services {
		if ws.Services[i] == nil {
			continue
		}
		if svc.Group().TryClaim() {
			return &anyExecutable{kind: execService, group: svc.Group(), service: svc}, true, nil
		}
	}

	// 4. clients
	for i, c := range owners.clients {
		if ws.Clients[i] == nil {
			continue
		}
		if c.Group().TryClaim() {
			return &anyExecutable{kind: execClient, group: c.Group(), client: c}, true, nil
		}
	}

	return nil, false, nil
}

// dispatch executes exec's callback and releases its group's takeable
// flag whether or not the dispatch path hit an error.
// TakeFailure is logged, not propagated: a clean "nothing there" after
// claiming is a race against another taker, not a caller-visible error.
func (b *Base) dispatch(exec *anyExecutable) {
	defer exec.release()
	defer b.recorder().RecordDispatch(context.Background(), exec.kind.String())

	switch exec.kind {
	case execTimer:
		exec.timer.Dispatch()
		exec.timer.Reset()

	case execSubscription:
		e := exec.subEntry
		raw, got := b.mw.Take(e.Handle)
		if !got {
			b.log.Warn("take failed after claim",
				zap.String("topic", e.Sub.Topic()),
				zap.Error(xerr.New(xerr.ErrTakeFailure, "readiness reported but nothing to take")))
			return
		}
		if e.IsIntra {
			payload, ok, err := e.Sub.ResolveNotice(raw)
			if err != nil {
				b.log.Error("intra-process take failed", zap.Error(err))
				return
			}
			if !ok {
				return
			}
			e.Sub.Dispatch(payload)
			return
		}
		// Inter-process path: stage the taken message in a slot borrowed
		// from the strategy for the duration of this dispatch. The slot
		// stays private until returned, so concurrent reentrant
		// dispatches of the same subscription never share staging.
		payload, deliver := e.Sub.ResolveInter(raw)
		if !deliver {
			return
		}
		ms := b.strategy()
		slot := ms.BorrowMessageSlot(e.Sub.ID())
		*slot = payload
		e.Sub.Dispatch(*slot)
		ms.ReturnMessageSlot(e.Sub.ID(), slot)

	case execService:
		req, corrID, got := b.mw.TakeRequest(exec.service.Handle())
		if !got {
			return
		}
		resp := exec.service.Dispatch(req)
		if err := b.mw.SendResponse(exec.service.Handle(), corrID, resp); err != nil {
			b.log.Error("send response failed", zap.Error(err))
		}

	case execClient:
		// The client's handle only becomes "ready" in the wait-set once
		// some correlation id has a pending response; TakeResponse still
		// needs that id, tracked by the client's own pending map, so we
		// let the client resolve against whichever ids are ready.
		resolveClientReadyResponses(b.mw, exec.client)
	}
}

// resolveClientReadyResponses drains every response currently available
// for client, since the wait-set only reports "this client has at least
// one ready response" rather than which correlation id.
func resolveClientReadyResponses(mw middleware.Middleware, c *node.Client) {
	for _, corrID := range c.PendingCorrelationIDs() {
		resp, got := mw.TakeResponse(c.Handle(), corrID)
		if got {
			c.Resolve(corrID, resp)
		}
	}
}
