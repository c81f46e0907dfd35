package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	temperature     = 0.7
	maxOutputTokens = 1024
	maxResponseSize = 4 << 20
)

// Request is a provider-agnostic generation request.
type Request struct {
	APIKey       string
	SystemPrompt string
	UserPrompt   string
	ModelID      string
	Endpoint     string
}

// Response carries either generated content or an error message.
type Response struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Failed reports whether the response carries an error.
func (r Response) Failed() bool {
	return r.Error != ""
}

func failure(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

// Adapter generates content through one upstream API.
type Adapter interface {
	Generate(ctx context.Context, req Request) Response
}

type exchange struct {
	name        string
	endpoint    string
	headers     map[string]string
	body        []byte
	contentPath string
}

// post performs one JSON POST and extracts the content at contentPath.
func post(ctx context.Context, client *http.Client, ex exchange) Response {
	if client == nil {
		client = http.DefaultClient
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, ex.endpoint, bytes.NewReader(ex.body))
	if errReq != nil {
		return failure("%s request build failed: %v", ex.name, errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range ex.headers {
		req.Header.Set(key, value)
	}

	resp, errDo := client.Do(req)
	if errDo != nil {
		return Response{Error: errDo.Error()}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("provider: close response body failed")
		}
	}()

	raw, errRead := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if errRead != nil {
		return failure("%s response read failed: %v", ex.name, errRead)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if message := upstreamErrorMessage(raw); message != "" {
			return Response{Error: message}
		}
		return failure("%s API error (status %d)", ex.name, resp.StatusCode)
	}

	content := gjson.GetBytes(raw, ex.contentPath).String()
	if strings.TrimSpace(content) == "" {
		return failure("%s returned an empty response", ex.name)
	}
	return Response{Content: content}
}

func upstreamErrorMessage(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	for _, path := range []string{"error.message", "0.error.message", "message"} {
		if message := strings.TrimSpace(gjson.GetBytes(raw, path).String()); message != "" {
			return message
		}
	}
	if message := gjson.GetBytes(raw, "error"); message.Type == gjson.String {
		return strings.TrimSpace(message.String())
	}
	return ""
}
