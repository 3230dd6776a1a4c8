package supervisor

import (
	"fmt"
	"strings"
)

// FailureKind classifies why a launch did not produce a ready instance.
type FailureKind int

const (
	// BuildFailed means the build command could not run or exited non-zero.
	BuildFailed FailureKind = iota + 1
	// StartupTimeout means the process never answered its readiness probe in time.
	StartupTimeout
	// PortBindFailed means the process could not bind its reserved port,
	// or no port could be reserved at all.
	PortBindFailed
	// ProcessExited means the process exited before becoming ready.
	ProcessExited
	// Canceled means the caller's context ended during the launch.
	Canceled
)

func (k FailureKind) String() string {
	switch k {
	case BuildFailed:
		return "BuildFailed"
	case StartupTimeout:
		return "StartupTimeout"
	case PortBindFailed:
		return "PortBindFailed"
	case ProcessExited:
		return "ProcessExited"
	case Canceled:
		return "Canceled"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// LaunchError is returned by Launch. Output holds the tail of the build or
// process output, whichever step failed.
type LaunchError struct {
	Kind     FailureKind
	Port     int
	Attempts int
	ExitCode int
	Output   string
	Err      error
}

func (e *LaunchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "launch failed: %s", e.Kind)
	if e.Port > 0 {
		fmt.Fprintf(&b, " (port %d)", e.Port)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Is lets errors.Is match a LaunchError by kind: errors.Is(err, &LaunchError{Kind: StartupTimeout}).
func (e *LaunchError) Is(target error) bool {
	t, ok := target.(*LaunchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// bindFailureMarkers are substrings of listener errors meaning the port was taken.
var bindFailureMarkers = []string{
	"address already in use",
	"Only one usage of each socket address",
}

func isBindFailure(output string) bool {
	for _, m := range bindFailureMarkers {
		if strings.Contains(output, m) {
			return true
		}
	}
	return false
}
