package thread

import (
	"log/slog"
	"sync/atomic"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
)

// ErrorHandler receives failures that escape a unit of work running on a
// thread, pool thread, dispatcher or task. It must be safe for concurrent use.
type ErrorHandler interface {
	Handle(err error)
}

// ErrorHandlerFunc adapts a function to the ErrorHandler interface.
type ErrorHandlerFunc func(err error)

// Handle calls f(err).
func (f ErrorHandlerFunc) Handle(err error) {
	f(err)
}

type handlerBox struct {
	h ErrorHandler
}

var currentHandler atomic.Pointer[handlerBox]

func init() {
	currentHandler.Store(&handlerBox{h: LogErrorHandler(slog.Default())})
}

// LogErrorHandler returns a handler that logs every error at error level.
// Panics are logged together with the captured stack.
func LogErrorHandler(logger *slog.Logger) ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return ErrorHandlerFunc(func(err error) {
		if pe, ok := gferrors.AsPanic(err); ok {
			logger.Error("unhandled panic", "panic", pe.Value, "stack", pe.Stack)
			return
		}
		logger.Error("unhandled error", "error", err)
	})
}

// SetErrorHandler installs h as the process-wide error handler and returns
// the previous one. Passing nil restores the logging default.
func SetErrorHandler(h ErrorHandler) ErrorHandler {
	if h == nil {
		h = LogErrorHandler(nil)
	}
	old := currentHandler.Swap(&handlerBox{h: h})
	return old.h
}

// CurrentErrorHandler returns the installed process-wide error handler.
func CurrentErrorHandler() ErrorHandler {
	return currentHandler.Load().h
}

// HandleError forwards err to the installed handler. Nil errors are ignored.
func HandleError(err error) {
	if err == nil {
		return
	}
	CurrentErrorHandler().Handle(err)
}

// HandlePanic converts a recovered value into a PanicError and forwards it.
func HandlePanic(r any) {
	if r == nil {
		return
	}
	HandleError(gferrors.NewPanicError(r))
}
