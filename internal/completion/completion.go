// Package completion defines the boundary to a chat-completion model.
//
// The chat service only knows this interface; the OpenAI-backed client
// lives in the openai subpackage and tests use a hand-written fake.
package completion

import (
	"context"
	"errors"
	"time"

	"github.com/macleann/fountainheadapi/internal/model"
)

// Request is one completion call: the full message list (system prompt
// first), the model name and the sampling temperature.
type Request struct {
	Messages    []model.Turn
	Model       string
	Temperature float64
}

// Response carries the assistant's reply text.
type Response struct {
	Reply    string
	Model    string
	Duration time.Duration
}

// Client produces a single completion. Implementations must honour ctx
// cancellation and must not retry on their own.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Disabled is the Client used when no completion backend is configured.
// Every call fails, which the chat service reports as a service error.
type Disabled struct {
	Reason string
}

// Complete always returns an error.
func (d Disabled) Complete(context.Context, Request) (*Response, error) {
	return nil, errors.New("completion: disabled: " + d.Reason)
}
