package materialize

import (
	"fmt"
	"strings"

	"github.com/schmitthub/stencil/internal/catalog"
)

// Reason classifies a materialization failure.
type Reason int

const (
	// TemplateNotFound means the catalog has no template for the kind.
	TemplateNotFound Reason = iota + 1
	// InvalidTemplate means the template manifest is unusable.
	InvalidTemplate
	// DirectoryCollision means no unique directory could be created within the retry budget.
	DirectoryCollision
	// IOFailure covers directory creation, reads and writes.
	IOFailure
	// RenderFailure means a template file failed to render.
	RenderFailure
	// Canceled means the context ended before the project was complete.
	Canceled
)

func (r Reason) String() string {
	switch r {
	case TemplateNotFound:
		return "template not found"
	case InvalidTemplate:
		return "invalid template"
	case DirectoryCollision:
		return "directory collision"
	case IOFailure:
		return "i/o failure"
	case RenderFailure:
		return "render failure"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// MaterializationError is returned for every failed Materialize call.
// Dir names the project directory that was created and already removed, if any.
type MaterializationError struct {
	Reason Reason
	Kind   catalog.Kind
	Dir    string
	Path   string
	Err    error
}

func (e *MaterializationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "materialize %s: %s", e.Kind, e.Reason)
	if e.Path != "" {
		fmt.Fprintf(&b, ": %s", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *MaterializationError) Unwrap() error { return e.Err }
