package executor

import (
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/multierr"

	"github.com/wayfarer-robotics/rclgo/internal/xerr"
	"github.com/wayfarer-robotics/rclgo/internal/xlog"
	"github.com/wayfarer-robotics/rclgo/middleware"
	"github.com/wayfarer-robotics/rclgo/shutdown"
)

// MultiThreadedExecutor runs the selection algorithm on a fixed worker
// pool; each worker runs the loop concurrently. The takeable flag on
// MutuallyExclusive groups is the sole serialization mechanism that makes
// concurrent dispatch safe.
type MultiThreadedExecutor struct {
	*Base
	pool *ants.Pool
	wg   sync.WaitGroup
}

// NewMultiThreadedExecutor builds a MultiThreadedExecutor with workers
// goroutines in its pool.
func NewMultiThreadedExecutor(mw middleware.Middleware, station *shutdown.Station, logger xlog.Logger, workers int) (*MultiThreadedExecutor, error) {
	if workers <= 0 {
		workers = 4
	}
	base := newBase(mw, station, logger)
	pool, err := ants.NewPool(workers,
		ants.WithPreAlloc(true),
		ants.WithLogger(xlog.NewAntsLogger(base.log)),
		ants.WithPanicHandler(func(r any) {
			base.log.Error("worker panic recovered")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &MultiThreadedExecutor{Base: base, pool: pool}, nil
}

// Spin submits `workers` copies of the selection loop to the pool and
// blocks until every one observes shutdown.
func (e *MultiThreadedExecutor) Spin() error {
	var errs error
	var errMu sync.Mutex
	n := e.pool.Cap()
	e.wg.Add(n)
	for i := 0; i < n; i++ {
		err := e.pool.Submit(func() {
			defer e.wg.Done()
			for e.station.Ok() {
				exec, ok, err := e.selectOnce(-1)
				if err != nil {
					errMu.Lock()
					errs = multierr.Append(errs, xerr.WithStack(err))
					errMu.Unlock()
					return
				}
				if !ok {
					continue
				}
				e.dispatch(exec)
			}
		})
		if err != nil {
			e.wg.Done()
			errMu.Lock()
			errs = multierr.Append(errs, err)
			errMu.Unlock()
		}
	}
	e.wg.Wait()
	return errs
}

// SpinSome drains everything currently ready across `workers` concurrent
// scans without blocking for anything not already available.
func (e *MultiThreadedExecutor) SpinSome() error {
	n := e.pool.Cap()
	var wg sync.WaitGroup
	var errs error
	var errMu sync.Mutex
	wg.Add(n)
	for i := 0; i < n; i++ {
		err := e.pool.Submit(func() {
			defer wg.Done()
			for {
				exec, ok, err := e.selectOnce(0)
				if err != nil {
					errMu.Lock()
					errs = multierr.Append(errs, xerr.WithStack(err))
					errMu.Unlock()
					return
				}
				if !ok {
					return
				}
				e.dispatch(exec)
			}
		})
		if err != nil {
			wg.Done()
			errMu.Lock()
			errs = multierr.Append(errs, err)
			errMu.Unlock()
		}
	}
	wg.Wait()
	return errs
}

// Close releases the worker pool. Safe to call once Spin has returned.
func (e *MultiThreadedExecutor) Close() error {
	e.pool.Release()
	return nil
}

