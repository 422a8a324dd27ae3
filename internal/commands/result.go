package commands

import (
	"fmt"

	"github.com/ggmhub/hub/internal/remote"
)

// Kind classifies a handler outcome.
type Kind int

const (
	KindOk Kind = iota
	// KindUnavailable means a collaborator the command needs is not
	// configured. The command still completes, carrying the reason.
	KindUnavailable
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindUnavailable:
		return "unavailable"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is what a handler reports back to the shared store.
type Result struct {
	Kind    Kind
	Message string
}

func Ok(format string, args ...any) Result {
	return Result{Kind: KindOk, Message: fmt.Sprintf(format, args...)}
}

func Unavailable(format string, args ...any) Result {
	return Result{Kind: KindUnavailable, Message: fmt.Sprintf(format, args...)}
}

func Failed(err error) Result {
	if err == nil {
		return Result{Kind: KindError, Message: "unknown error"}
	}
	return Result{Kind: KindError, Message: err.Error()}
}

// Status maps the result to the row status written back to the store.
func (r Result) Status() remote.Status {
	if r.Kind == KindError {
		return remote.StatusFailed
	}
	return remote.StatusCompleted
}

func (r Result) icon() string {
	switch r.Kind {
	case KindOk:
		return "✅"
	case KindUnavailable:
		return "⚠️"
	default:
		return "❌"
	}
}
