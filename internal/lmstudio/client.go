// Package lmstudio is a client for the OpenAI-compatible HTTP API served by
// LM Studio.
package lmstudio

import "context"

// Client is the capability the orchestration engine consumes: model listing,
// health reporting and single-shot text completion.
type Client interface {
	// ListModels returns the models currently available on the server.
	ListModels(ctx context.Context) ([]Model, error)

	// HealthCheck reports whether the server answers and has models loaded.
	// It never returns an error; failures are described in the Health value.
	HealthCheck(ctx context.Context) Health

	// CreateCompletion issues one completion request. Failures are *Error.
	CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Close releases idle connections.
	Close() error
}
