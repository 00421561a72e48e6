// Package middleware defines the narrow contract this core depends on to
// reach the underlying pub/sub and request/reply fabric. Everything here is
// opaque handles plus create/wait/take/send: no wire format, no discovery,
// no QoS negotiation, no transport — those are an external collaborator's
// problem. middleware/inmem provides the one concrete
// implementation this module ships, used both by cmd/rclnode and by the
// executor/node test suites.
package middleware

import (
	"time"

	"github.com/wayfarer-robotics/rclgo/shutdown"
)

// PublisherHandle is an owning handle to a created publisher.
type PublisherHandle interface {
	Topic() string
	// Publish hands msg to the middleware for delivery to subscribers of
	// Topic(). Delivery semantics (copy vs reference, ordering) are the
	// implementation's business; this core never inspects them.
	Publish(msg any) error
	Close() error
}

// SubscriptionHandle is an owning handle to a created subscription.
type SubscriptionHandle interface {
	Topic() string
	Close() error
}

// ServiceHandle is an owning handle to a created service endpoint.
type ServiceHandle interface {
	Name() string
	Close() error
}

// ClientHandle is an owning handle to a created service client.
type ClientHandle interface {
	Name() string
	// SendRequest dispatches req to the service named Name() and returns
	// a correlation id the eventual TakeResponse call will match against.
	SendRequest(req any) (correlationID uint64, err error)
	Close() error
}

// TimerHandle is an owning handle to a created timer. Timers are not
// included in a WaitSet — the middleware exposes them via deadline
// comparisons rather than readiness, so the executor polls
// Deadline() directly against wall-clock time.
type TimerHandle interface {
	Deadline() time.Time
	// Reset reschedules the next deadline period from now, called by the
	// executor immediately after dispatching the timer's callback.
	Reset(period time.Duration)
	Close() error
}

// WaitSet is the mutable collection of handle pointers the engine rebuilds
// on every iteration and passes to Wait. Entries readiness is reported
// in-place: a handle not ready on return is zeroed out.
type WaitSet struct {
	Subscriptions []SubscriptionHandle
	Services      []ServiceHandle
	Clients       []ClientHandle
	Guards        []*shutdown.GuardCondition
}

// Clear empties every slot without releasing backing array capacity, so
// the engine can rebuild into the same WaitSet on the next iteration.
func (ws *WaitSet) Clear() {
	for i := range ws.Subscriptions {
		ws.Subscriptions[i] = nil
	}
	ws.Subscriptions = ws.Subscriptions[:0]
	for i := range ws.Services {
		ws.Services[i] = nil
	}
	ws.Services = ws.Services[:0]
	for i := range ws.Clients {
		ws.Clients[i] = nil
	}
	ws.Clients = ws.Clients[:0]
	ws.Guards = ws.Guards[:0]
}

// Middleware is the full abstraction surface consumed by node/executor.
type Middleware interface {
	CreatePublisher(topic string) (PublisherHandle, error)
	CreateSubscription(topic string) (SubscriptionHandle, error)
	CreateService(name string) (ServiceHandle, error)
	CreateClient(name string) (ClientHandle, error)
	CreateTimer(period time.Duration) (TimerHandle, error)
	CreateGuardCondition() *shutdown.GuardCondition

	// Wait blocks until at least one WaitSet entry becomes ready, the
	// timeout elapses, or a guard condition in ws.Guards triggers.
	// Non-ready entries are cleared to nil in place on return.
	Wait(ws *WaitSet, timeout time.Duration) error

	// Take retrieves one pending message for sub. got is false if the
	// subscription had nothing queued (a clean empty, not an error).
	Take(sub SubscriptionHandle) (msg any, got bool)
	TakeRequest(svc ServiceHandle) (req any, correlationID uint64, got bool)
	TakeResponse(cli ClientHandle, correlationID uint64) (resp any, got bool)
	SendResponse(svc ServiceHandle, correlationID uint64, resp any) error
}
