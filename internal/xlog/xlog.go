package xlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the narrow logging surface every rclgo package depends on.
// Kept deliberately small; the core has no persistence layer to log for,
// so one zap core suffices.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	zap() *zap.Logger
}

type xLogger struct {
	l *zap.Logger
}

func (x *xLogger) Debug(msg string, fields ...zap.Field) { x.l.Debug(msg, fields...) }
func (x *xLogger) Info(msg string, fields ...zap.Field)  { x.l.Info(msg, fields...) }
func (x *xLogger) Warn(msg string, fields ...zap.Field)  { x.l.Warn(msg, fields...) }
func (x *xLogger) Error(msg string, fields ...zap.Field) { x.l.Error(msg, fields...) }
func (x *xLogger) With(fields ...zap.Field) Logger       { return &xLogger{l: x.l.With(fields...)} }
func (x *xLogger) zap() *zap.Logger                      { return x.l }

// New builds the default production-style logger: JSON encoder writing
// straight to stdout, with no buffering.
func New(name string, level zapcore.Level) Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg),
		zapcore.AddSync(os.Stdout),
		level,
	)
	l := zap.New(core).Named(name)
	return &xLogger{l: l}
}

// Nop returns a logger that discards everything; the default for
// constructors that receive no WithLogger option.
func Nop() Logger {
	return &xLogger{l: zap.NewNop()}
}
