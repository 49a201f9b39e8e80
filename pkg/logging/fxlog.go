package logging

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// UseLoggingInterface routes fx's own lifecycle events to the Interface
// provided inside the container. Events are logged at debug level so a
// plain CLI invocation stays quiet; failures are logged as errors.
var UseLoggingInterface fx.Option = fx.WithLogger(
	func(logger Interface) fxevent.Logger {
		return &fxLoggerAdapter{Interface: logger}
	},
)

type fxLoggerAdapter struct{ Interface }

// LogEvent logs an fx event to the underlying Interface.
func (f fxLoggerAdapter) LogEvent(event fxevent.Event) {
	log := f.Interface.WithField("fx", "event")

	switch e := event.(type) {
	case *fxevent.Provided:
		for _, rtype := range e.OutputTypeNames {
			log.WithField("constructor", e.ConstructorName).
				WithField("type", rtype).
				Debug("Provided")
		}
		if e.Err != nil {
			log.WithError(e.Err).Error("error encountered while applying options")
		}
	case *fxevent.Invoking:
		log.WithField("function", e.FunctionName).Debug("Invoking")
	case *fxevent.Invoked:
		debugOrErr("Invoke", e.Err, log.WithField("function", e.FunctionName))
	case *fxevent.OnStartExecuted:
		debugOrErr("OnStart hook", e.Err, log.WithField("callee", e.FunctionName))
	case *fxevent.OnStopExecuted:
		debugOrErr("OnStop hook", e.Err, log.WithField("callee", e.FunctionName))
	case *fxevent.Started:
		debugOrErr("App start", e.Err, log)
	case *fxevent.Stopped:
		debugOrErr("App stop", e.Err, log)
	case *fxevent.LoggerInitialized:
		debugOrErr("Custom logger initialization", e.Err, log.WithField("function", e.ConstructorName))
	}
}

func debugOrErr(msg string, err error, log Interface) {
	if err == nil {
		log.Debug(msg + " succeeded")
		return
	}

	log.WithError(err).Error(msg + " failed")
}
