package xlog

import (
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLogger adapts Logger to fx's event logging interface, covering the
// lifecycle events a process without hot log-core swapping emits.
type FxLogger struct {
	logger Logger
}

// NewFxLogger wraps logger for use as an fx.WithLogger provider.
func NewFxLogger(logger Logger) *FxLogger {
	return &FxLogger{logger: logger.With(zap.String("component", "fx"))}
}

func (l *FxLogger) LogEvent(event fxevent.Event) {
	if l == nil || l.logger == nil {
		return
	}
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		l.logger.Debug("hook OnStart executing", zap.String("function", e.FunctionName))
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			l.logger.Error("hook OnStart failed", zap.Error(e.Err), zap.String("function", e.FunctionName))
		} else {
			l.logger.Debug("hook OnStart executed", zap.String("function", e.FunctionName))
		}
	case *fxevent.OnStopExecuting:
		l.logger.Info("hook OnStop executing", zap.String("function", e.FunctionName))
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			l.logger.Error("hook OnStop failed", zap.Error(e.Err), zap.String("function", e.FunctionName))
		}
	case *fxevent.Provided:
		if e.Err != nil {
			l.logger.Error("provide failed", zap.Error(e.Err))
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			l.logger.Error("invoke failed", zap.Error(e.Err), zap.String("function", e.FunctionName))
		}
	case *fxevent.Started:
		if e.Err != nil {
			l.logger.Error("start failed", zap.Error(e.Err))
		} else {
			l.logger.Info("started")
		}
	case *fxevent.Stopping:
		l.logger.Info("stopping", zap.String("signal", e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			l.logger.Error("stop failed", zap.Error(e.Err))
		}
	case *fxevent.RollingBack:
		l.logger.Warn("start failed, rolling back", zap.Error(e.StartErr))
	}
}
