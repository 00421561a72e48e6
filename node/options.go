package node

import (
	"github.com/wayfarer-robotics/rclgo/internal/xerr"
	"github.com/wayfarer-robotics/rclgo/internal/xlog"
	"github.com/wayfarer-robotics/rclgo/intraprocess"
)

// options is the internal functional-options target:
// an internal struct mutated by Option funcs, with an isValueChecked guard
// so validate only ever fills in defaults once.
type options struct {
	useIntraProcess bool
	ipm             *intraprocess.Manager
	intraDepth      int
	logger          xlog.Logger
	isValueChecked  bool
}

// Option configures a Node at construction.
type Option func(*options)

// WithIntraProcess enables the intra-process short circuit for this node,
// registering its publishers/subscriptions with mgr.
func WithIntraProcess(mgr *intraprocess.Manager) Option {
	return func(o *options) {
		o.useIntraProcess = true
		o.ipm = mgr
	}
}

// WithIntraDepth sets the ring-buffer depth allocated for each of this
// node's intra-process publishers, typically the publisher QoS depth.
func WithIntraDepth(depth int) Option {
	return func(o *options) {
		o.intraDepth = depth
	}
}

// WithLogger overrides the node's logger. Defaults to a nop logger.
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func (o *options) validate() error {
	if o.isValueChecked {
		return nil
	}
	if o.logger == nil {
		o.logger = xlog.Nop()
	}
	if o.useIntraProcess && o.ipm == nil {
		return xerr.New(xerr.ErrMiddlewareCreateFailure, "use_intra_process requires an intra-process manager")
	}
	if o.intraDepth <= 0 {
		o.intraDepth = defaultIntraDepth
	}
	o.isValueChecked = true
	return nil
}
