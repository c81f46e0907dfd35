package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/sjson"
)

// GeminiAdapter speaks the generateContent protocol.
type GeminiAdapter struct {
	client          *http.Client
	name            string
	defaultEndpoint string
}

func newGeminiAdapter(client *http.Client, info providerInfo) *GeminiAdapter {
	return &GeminiAdapter{client: client, name: info.name, defaultEndpoint: info.endpoint}
}

// Generate sends the system prompt and topic as one user turn.
func (a *GeminiAdapter) Generate(ctx context.Context, req Request) Response {
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" && a.defaultEndpoint != "" {
		endpoint = fmt.Sprintf(a.defaultEndpoint, req.ModelID)
	}
	if endpoint == "" {
		return failure("%s endpoint is not configured", a.name)
	}

	body, errBody := geminiBody(req)
	if errBody != nil {
		return failure("%s request build failed: %v", a.name, errBody)
	}

	return post(ctx, a.client, exchange{
		name:        a.name,
		endpoint:    endpoint,
		headers:     map[string]string{"x-goog-api-key": req.APIKey},
		body:        body,
		contentPath: "candidates.0.content.parts.0.text",
	})
}

func geminiBody(req Request) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		body, err = sjson.SetBytes(body, path, value)
	}
	set("contents.0.role", "user")
	set("contents.0.parts.0.text", req.SystemPrompt+"\n\nTopic: "+req.UserPrompt)
	set("generationConfig.temperature", temperature)
	set("generationConfig.maxOutputTokens", maxOutputTokens)
	return body, err
}
