package logging

import "go.uber.org/zap"

type zapWrapper struct {
	logger *zap.Logger
}

func (l zapWrapper) WithField(key string, value interface{}) Interface {
	return zapWrapper{l.logger.With(zap.Any(key, value))}
}

func (l zapWrapper) WithError(err error) Interface {
	return zapWrapper{l.logger.With(zap.Error(err))}
}

// skip one frame so the caller of the wrapper is reported, not this file
func (l zapWrapper) caller() *zap.Logger { return l.logger.WithOptions(zap.AddCallerSkip(1)) }

func (l zapWrapper) Debug(msg string) { l.caller().Debug(msg) }
func (l zapWrapper) Info(msg string)  { l.caller().Info(msg) }
func (l zapWrapper) Warn(msg string)  { l.caller().Warn(msg) }
func (l zapWrapper) Error(msg string) { l.caller().Error(msg) }
func (l zapWrapper) Fatal(msg string) { l.caller().Fatal(msg) }

func (l zapWrapper) Debugf(format string, args ...interface{}) {
	l.caller().Debug(fmtMsg(format, args))
}
func (l zapWrapper) Infof(format string, args ...interface{}) {
	l.caller().Info(fmtMsg(format, args))
}
func (l zapWrapper) Warnf(format string, args ...interface{}) {
	l.caller().Warn(fmtMsg(format, args))
}
func (l zapWrapper) Errorf(format string, args ...interface{}) {
	l.caller().Error(fmtMsg(format, args))
}
func (l zapWrapper) Fatalf(format string, args ...interface{}) {
	l.caller().Fatal(fmtMsg(format, args))
}

// ForZap adapts a zap logger to Interface.
func ForZap(logger *zap.Logger) Interface {
	return zapWrapper{logger: logger}
}
