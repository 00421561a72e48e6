package executor

import (
	"time"

	"github.com/wayfarer-robotics/rclgo/internal/xlog"
	"github.com/wayfarer-robotics/rclgo/middleware"
	"github.com/wayfarer-robotics/rclgo/node"
	"github.com/wayfarer-robotics/rclgo/shutdown"
)

// SingleThreadedExecutor runs the selection algorithm on a single
// goroutine: one thread runs the wait, selection, and dispatch serially.
// Same contract as MultiThreadedExecutor with pool size one; no CAS
// contention, but MutuallyExclusive/Reentrant semantics are identical.
type SingleThreadedExecutor struct {
	*Base
}

// NewSingleThreadedExecutor builds a SingleThreadedExecutor talking to mw
// and watching station (the process-global one if nil).
func NewSingleThreadedExecutor(mw middleware.Middleware, station *shutdown.Station, logger xlog.Logger) *SingleThreadedExecutor {
	return &SingleThreadedExecutor{Base: newBase(mw, station, logger)}
}

// Spin loops while the station says ok, picking and dispatching the next
// executable, blocking as needed. Returns when the station shuts down.
func (e *SingleThreadedExecutor) Spin() error {
	for e.station.Ok() {
		exec, ok, err := e.selectOnce(-1)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		e.dispatch(exec)
	}
	return nil
}

// SpinSome drains every executable that is ready right now, without
// blocking for anything not already available.
func (e *SingleThreadedExecutor) SpinSome() error {
	for {
		exec, ok, err := e.selectOnce(0)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		e.dispatch(exec)
	}
}

// SpinNodeOnce attaches n, dispatches at most one executable (waiting up
// to timeout), then detaches n.
func (e *SingleThreadedExecutor) SpinNodeOnce(n *node.Node, timeout time.Duration) error {
	e.AddNode(n, true)
	defer e.RemoveNode(n, true)

	exec, ok, err := e.selectOnce(timeout)
	if err != nil {
		return err
	}
	if ok {
		e.dispatch(exec)
	}
	return nil
}

// SpinNodeSome attaches n, drains every executable ready right now
// without blocking, then detaches n.
func (e *SingleThreadedExecutor) SpinNodeSome(n *node.Node) error {
	e.AddNode(n, true)
	defer e.RemoveNode(n, true)

	for {
		exec, ok, err := e.selectOnce(0)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		e.dispatch(exec)
	}
}
