// Command rclnode is a minimal demo process wiring a node, an executor,
// and the intra-process manager together via fx.
package main

import (
	"context"
	"fmt"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/wayfarer-robotics/rclgo/executor"
	"github.com/wayfarer-robotics/rclgo/internal/obs"
	"github.com/wayfarer-robotics/rclgo/internal/xlog"
	"github.com/wayfarer-robotics/rclgo/intraprocess"
	"github.com/wayfarer-robotics/rclgo/middleware"
	"github.com/wayfarer-robotics/rclgo/middleware/inmem"
	"github.com/wayfarer-robotics/rclgo/node"
	"github.com/wayfarer-robotics/rclgo/param"
	"github.com/wayfarer-robotics/rclgo/shutdown"
)

func main() {
	logger := xlog.New("rclnode", zap.InfoLevel)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Info("maxprocs", zap.String("msg", fmt.Sprintf(format, args...)))
	})); err != nil {
		logger.Warn("maxprocs.Set failed, leaving GOMAXPROCS unchanged", zap.Error(err))
	}

	app := fx.New(
		fx.WithLogger(func() fxevent.Logger { return xlog.NewFxLogger(logger) }),
		fx.Supply(logger),
		fx.Provide(
			func() *shutdown.Station { return shutdown.Default() },
			func() middleware.Middleware { return inmem.New() },
			newIntraProcessManager,
			newMetricsRecorder,
			newTalkerNode,
			newExecutor,
		),
		fx.Invoke(registerParameterService, runExecutor),
	)

	app.Run()
}

func newIntraProcessManager(rec *obs.Recorder) (*intraprocess.Manager, error) {
	ipm, err := intraprocess.New()
	if err != nil {
		return nil, err
	}
	ipm.SetEvictionHook(func(topic string) {
		rec.RecordRingEviction(context.Background(), topic)
	})
	return ipm, nil
}

func newMetricsRecorder() (*obs.Recorder, error) {
	return obs.NewRecorder("rclgo/rclnode")
}

func newTalkerNode(mw middleware.Middleware, ipm *intraprocess.Manager, logger xlog.Logger) (*node.Node, error) {
	return node.New("talker", mw, node.WithIntraProcess(ipm), node.WithLogger(logger))
}

func newExecutor(mw middleware.Middleware, station *shutdown.Station, logger xlog.Logger, rec *obs.Recorder, n *node.Node, lc fx.Lifecycle) (*executor.SingleThreadedExecutor, error) {
	exec := executor.NewSingleThreadedExecutor(mw, station, logger)
	exec.SetRecorder(rec)
	exec.AddNode(n, false)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			station.Shutdown()
			return nil
		},
	})
	return exec, nil
}

func registerParameterService(n *node.Node) error {
	store := param.NewStore()
	store.Declare("rate_hz", param.Value{Type: param.TypeInteger, IntValue: 10}, param.Descriptor{
		Description: "publish rate in Hz",
	})
	_, err := param.Register(n, store, nil)
	return err
}

func runExecutor(exec *executor.SingleThreadedExecutor, lc fx.Lifecycle, logger xlog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := exec.Spin(); err != nil {
					logger.Error("executor stopped with error", zap.Error(err))
				}
			}()
			return nil
		},
	})
}
