package model

import "context"

// Request captures one completion call. Temperature and MaxTokens override
// the adapter defaults when non-zero.
type Request struct {
	System      string  `json:"system"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
}

// Engine is the completion collaborator. Implementations return the raw
// response text; failures are wrapped as *core.ProviderError. Callers bound
// the call with the supplied context.
type Engine interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Name returns the model identifier of an engine when the implementation
// exposes one via a ModelName method, otherwise "unknown".
func Name(e Engine) string {
	if n, ok := e.(interface{ ModelName() string }); ok {
		return n.ModelName()
	}
	return "unknown"
}

// EngineFunc adapts a plain function to the Engine interface.
type EngineFunc func(ctx context.Context, req Request) (string, error)

// Complete implements Engine.
func (f EngineFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
