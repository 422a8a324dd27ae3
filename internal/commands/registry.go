package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/remote"
)

// Request is the input of a handler.
type Request struct {
	Command remote.Command
	Payload Payload
}

// Handler executes one named command. A returned error is reported as a
// failed command, the same as a KindError result.
type Handler func(ctx context.Context, req Request) (Result, error)

// Registry maps command names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{handlers: make(map[string]Handler), logger: log.Component("commands")}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names lists registered commands in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the handler for req.Command.Command. It never panics and
// never returns an error: unknown commands complete with an explanatory
// message and handler failures become KindError results.
func (r *Registry) Dispatch(ctx context.Context, req Request) (res Result) {
	name := req.Command.Command

	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.WarnCtx(ctx, "unknown command", logger.Field{Key: "command", Value: name})
		return Ok("Unknown command: %s", name)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorCtx(ctx, "command handler panic recovered", fmt.Errorf("panic: %v", p),
				logger.Field{Key: "command", Value: name},
				logger.Field{Key: "stack", Value: string(debug.Stack())})
			res = Failed(fmt.Errorf("handler panicked: %v", p))
		}
	}()

	result, err := h(ctx, req)
	if err != nil {
		return Failed(err)
	}
	return result
}
