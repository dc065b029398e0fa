package utils

import (
	"context"
	"fmt"
	"strings"
)

type CompletionRequest struct {
	Provider     string
	Model        string
	SystemPrompt string
	Prompt       string
	Images       []string
	MaxTokens    int
	Temperature  float32
}

type CompletionResult struct {
	Content    string
	TokensUsed int
}

// CompletionClientInterface is the only contract the analysis core needs from
// an AI provider: prompt in, raw JSON text and token count out.
type CompletionClientInterface interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// CompletionRouter fans requests out to a provider client by req.Provider.
type CompletionRouter struct {
	clients map[string]CompletionClientInterface
}

func NewCompletionRouter(clients map[string]CompletionClientInterface) *CompletionRouter {
	normalized := make(map[string]CompletionClientInterface, len(clients))
	for name, c := range clients {
		if c != nil {
			normalized[strings.ToLower(name)] = c
		}
	}
	return &CompletionRouter{clients: normalized}
}

func (r *CompletionRouter) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	client, ok := r.clients[strings.ToLower(req.Provider)]
	if !ok {
		return CompletionResult{}, fmt.Errorf("no completion client configured for provider %q", req.Provider)
	}
	return client.Complete(ctx, req)
}

func (r *CompletionRouter) Providers() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
