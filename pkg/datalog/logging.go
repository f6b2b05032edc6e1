package datalog

import "go.uber.org/zap"

// Logger is the narrow structured-logging seam the Driver and Engine
// write through. A *zap.SugaredLogger satisfies it directly; NopLogger
// is used when a caller supplies no logger (Config's zero value).
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
}

// NopLogger discards everything. It is the Config default so the engine
// never has to nil-check its logger.
type NopLogger struct{}

func (NopLogger) Debugw(string, ...interface{}) {}
func (NopLogger) Infow(string, ...interface{})  {}
func (NopLogger) Warnw(string, ...interface{})  {}

// NewZapLogger adapts a *zap.Logger (as constructed by a caller via
// zap.NewProduction/zap.NewDevelopment) to the Logger interface.
func NewZapLogger(z *zap.Logger) Logger {
	return zapLogger{z.Sugar()}
}

type zapLogger struct{ s *zap.SugaredLogger }

func (l zapLogger) Debugw(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l zapLogger) Infow(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l zapLogger) Warnw(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
