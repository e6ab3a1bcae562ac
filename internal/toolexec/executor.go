// Package toolexec executes provider-requested tool calls against local
// handlers. Every call is answered: a handler failure is converted into
// a structured error payload so the run can finish instead of hanging.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/replygate/replygate/internal/generation"
)

// Handler runs one named tool function. arguments is the raw JSON
// argument string from the provider.
type Handler func(ctx context.Context, conversationID, arguments string) (string, error)

// Executor dispatches tool calls to registered handlers.
type Executor struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewExecutor creates an empty tool executor.
func NewExecutor(log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		handlers: map[string]Handler{},
		logger:   log.With(slog.String("component", "tool_executor")),
	}
}

// Register adds a handler for the given function name, replacing any
// previous registration.
func (e *Executor) Register(name string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = handler
}

// Execute runs one tool call and always produces an output.
func (e *Executor) Execute(ctx context.Context, conversationID string, call generation.ToolCall) generation.ToolOutput {
	e.mu.RLock()
	handler, ok := e.handlers[call.Name]
	e.mu.RUnlock()

	if !ok {
		e.logger.Warn("unknown tool function requested",
			slog.String("function", call.Name),
			slog.String("call_id", call.ID),
		)
		return errorOutput(call.ID, fmt.Sprintf("unknown function: %s", call.Name))
	}

	result, err := handler(ctx, conversationID, call.Arguments)
	if err != nil {
		e.logger.Warn("tool function failed",
			slog.String("function", call.Name),
			slog.String("call_id", call.ID),
			slog.Any("error", err),
		)
		return errorOutput(call.ID, err.Error())
	}
	return generation.ToolOutput{CallID: call.ID, Output: result}
}

func errorOutput(callID, message string) generation.ToolOutput {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		payload = []byte(`{"error":"tool execution failed"}`)
	}
	return generation.ToolOutput{CallID: callID, Output: string(payload)}
}
