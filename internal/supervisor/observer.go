package supervisor

import (
	"github.com/schmitthub/stencil/internal/logger"
	"github.com/schmitthub/stencil/internal/procout"
)

// Observer receives build and process output as it is produced. Calls come
// from several goroutines, so implementations must be safe for concurrent use.
type Observer interface {
	OnOutput(source string, line procout.Line)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(source string, line procout.Line)

func (f ObserverFunc) OnOutput(source string, line procout.Line) { f(source, line) }

// Output sources.
const (
	SourceBuild   = "build"
	SourceProcess = "process"
)

// LogObserver forwards every line to l at debug level.
func LogObserver(l logger.Logger) Observer {
	return ObserverFunc(func(source string, line procout.Line) {
		l.Debug().
			Str("source", source).
			Str("stream", string(line.Stream)).
			Msg(line.Text)
	})
}

type multiObserver []Observer

func (m multiObserver) OnOutput(source string, line procout.Line) {
	for _, o := range m {
		o.OnOutput(source, line)
	}
}

// Multi fans output out to every non-nil observer.
func Multi(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}
