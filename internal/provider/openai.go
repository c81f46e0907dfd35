package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/sjson"
)

// ChatCompletionAdapter speaks the OpenAI chat completions protocol.
type ChatCompletionAdapter struct {
	client          *http.Client
	name            string
	defaultEndpoint string
}

func newChatCompletionAdapter(client *http.Client, info providerInfo) *ChatCompletionAdapter {
	return &ChatCompletionAdapter{client: client, name: info.name, defaultEndpoint: info.endpoint}
}

// Generate sends a system and a user message.
func (a *ChatCompletionAdapter) Generate(ctx context.Context, req Request) Response {
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		endpoint = a.defaultEndpoint
	}
	if endpoint == "" {
		return failure("%s endpoint is not configured", a.name)
	}

	body, errBody := chatCompletionBody(req)
	if errBody != nil {
		return failure("%s request build failed: %v", a.name, errBody)
	}

	return post(ctx, a.client, exchange{
		name:        a.name,
		endpoint:    endpoint,
		headers:     map[string]string{"Authorization": "Bearer " + req.APIKey},
		body:        body,
		contentPath: "choices.0.message.content",
	})
}

func chatCompletionBody(req Request) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		body, err = sjson.SetBytes(body, path, value)
	}
	set("model", req.ModelID)
	set("messages.0.role", "system")
	set("messages.0.content", req.SystemPrompt)
	set("messages.1.role", "user")
	set("messages.1.content", req.UserPrompt)
	set("temperature", temperature)
	set("max_tokens", maxOutputTokens)
	return body, err
}
