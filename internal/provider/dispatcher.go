package provider

import (
	"context"
	"net/http"
	"time"
)

const defaultRequestTimeout = 60 * time.Second

// Dispatcher routes requests to the adapter of a provider tag.
type Dispatcher struct {
	client *http.Client
}

// NewDispatcher returns a dispatcher using client, or a default client with a timeout.
func NewDispatcher(client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Dispatcher{client: client}
}

// Adapter returns the adapter for tag.
func (d *Dispatcher) Adapter(tag string) (Adapter, bool) {
	info, ok := providers[NormalizeTag(tag)]
	if !ok {
		return nil, false
	}
	switch info.kind {
	case KindGenerateContent:
		return newGeminiAdapter(d.client, info), true
	case KindChatCompletion:
		return newChatCompletionAdapter(d.client, info), true
	default:
		return nil, false
	}
}

// Generate makes exactly one upstream call, or none for an unsupported tag.
func (d *Dispatcher) Generate(ctx context.Context, tag string, req Request) Response {
	adapter, ok := d.Adapter(tag)
	if !ok {
		return failure("Unsupported provider: %s", tag)
	}
	return adapter.Generate(ctx, req)
}
