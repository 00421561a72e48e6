package xlog

// AntsLogger adapts a Logger to the ants.Pool logging interface
// (Printf(format string, args ...interface{})).
type AntsLogger struct {
	logger Logger
}

func (l *AntsLogger) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.zap().Sugar().Errorf(format, args...)
}

// NewAntsLogger wraps logger for use as an ants.Options.Logger.
func NewAntsLogger(logger Logger) *AntsLogger {
	if logger == nil {
		logger = Nop()
	}
	return &AntsLogger{logger: logger.With()}
}
