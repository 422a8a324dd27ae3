// Package llm is the text-generation collaborator: a Provider contract,
// an OpenAI-compatible HTTP provider (which also covers local Ollama), and
// a Resolver that picks the first reachable provider and caches it.
package llm

import (
	"context"
	"errors"
)

// ErrNoProvider is returned when no configured provider is reachable.
var ErrNoProvider = errors.New("no LLM provider available")

// Provider generates text from a prompt.
type Provider interface {
	// Name identifies the provider in logs and status output.
	Name() string

	// Generate returns the completion for req.
	Generate(ctx context.Context, req Request) (string, error)

	// Ping reports whether the provider is reachable and serving its model.
	Ping(ctx context.Context) error
}

// Request is a single-turn generation request.
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
}

// Role of a chat message on the wire.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Messages converts req into chat messages, omitting an empty system prompt.
func (r Request) Messages() []Message {
	msgs := make([]Message, 0, 2)
	if r.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.System})
	}
	return append(msgs, Message{Role: RoleUser, Content: r.Prompt})
}
