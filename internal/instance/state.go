package instance

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of an Instance.
type State int32

const (
	Created State = iota
	Running
	Disposed
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Running:
		return "Running"
	case Disposed:
		return "Disposed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrInvalidState matches every InvalidStateError.
var ErrInvalidState = errors.New("invalid instance state")

// InvalidStateError reports an operation attempted in a state that does not allow it.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: instance is %s", e.Op, e.State)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }
