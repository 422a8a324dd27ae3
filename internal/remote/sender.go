package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ggmhub/hub/internal/logger"
)

// SendResult is the outcome of enqueueing a command. Send never returns a
// Go error; failures are carried in Message.
type SendResult struct {
	Success bool
	ID      string
	Message string
}

// Sender enqueues commands for another node. There is no retry: a failed
// send is reported to the caller, who decides whether to try again.
type Sender struct {
	transport Transport
	logger    *logger.Logger
	now       func() time.Time
}

func NewSender(transport Transport, log *logger.Logger) *Sender {
	if log == nil {
		log = logger.Nop()
	}
	return &Sender{
		transport: transport,
		logger:    log.Component("sender"),
		now:       time.Now,
	}
}

// Send serializes data as JSON and posts one pending row. A nil data is
// sent as an empty object.
func (s *Sender) Send(ctx context.Context, command string, data any, source, target string) SendResult {
	if command == "" {
		return SendResult{Message: "command name is required"}
	}
	if data == nil {
		data = map[string]any{}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return SendResult{Message: fmt.Sprintf("failed to encode payload: %v", err)}
	}

	id, err := s.transport.PostCommand(ctx, command, string(payload), source, target, s.now())
	if err != nil {
		s.logger.WarnCtx(ctx, "failed to queue command",
			logger.Field{Key: "command", Value: command},
			logger.Field{Key: "target", Value: target},
			logger.Field{Key: "error", Value: err.Error()})
		return SendResult{Message: err.Error()}
	}

	s.logger.InfoCtx(ctx, "command queued",
		logger.Field{Key: "command", Value: command},
		logger.Field{Key: "command_id", Value: id},
		logger.Field{Key: "source", Value: source},
		logger.Field{Key: "target", Value: target})
	return SendResult{Success: true, ID: id, Message: fmt.Sprintf("Command '%s' sent to %s", command, target)}
}
