package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type countingTransport struct {
	calls atomic.Int32
	next  http.RoundTripper
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return t.next.RoundTrip(req)
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"gemini":                KindGenerateContent,
		"Google":                KindGenerateContent,
		"openai":                KindChatCompletion,
		" openai-compatibility": KindChatCompletion,
		"deepseek":              KindChatCompletion,
		"groq":                  KindChatCompletion,
		"openrouter":            KindChatCompletion,
	}
	for tag, want := range cases {
		kind, ok := ParseKind(tag)
		assert.True(t, ok, tag)
		assert.Equal(t, want, kind, tag)
	}

	kind, ok := ParseKind("anthropic")
	assert.False(t, ok)
	assert.Equal(t, KindUnknown, kind)
	assert.Equal(t, "unknown", kind.String())
}

func TestDispatcher_UnsupportedProviderMakesNoCall(t *testing.T) {
	transport := &countingTransport{next: http.DefaultTransport}
	dispatcher := NewDispatcher(&http.Client{Transport: transport})

	resp := dispatcher.Generate(context.Background(), "mistral", Request{
		APIKey:   "key",
		Endpoint: "http://127.0.0.1:1/never",
	})

	assert.Equal(t, Response{Content: "", Error: "Unsupported provider: mistral"}, resp)
	assert.Equal(t, int32(0), transport.calls.Load())
}

func TestGemini_Success(t *testing.T) {
	var gotKey string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"A vivid prompt"}]}}]}`)
	}))
	defer srv.Close()

	transport := &countingTransport{next: http.DefaultTransport}
	resp := NewDispatcher(&http.Client{Transport: transport}).Generate(context.Background(), "gemini", Request{
		APIKey:       "g-key",
		SystemPrompt: "Write about it.",
		UserPrompt:   "rivers",
		ModelID:      "gemini-1.5-flash",
		Endpoint:     srv.URL,
	})

	require.False(t, resp.Failed(), resp.Error)
	assert.Equal(t, "A vivid prompt", resp.Content)
	assert.Equal(t, "g-key", gotKey)
	assert.Equal(t, int32(1), transport.calls.Load())
	assert.Equal(t, "user", gjson.GetBytes(gotBody, "contents.0.role").String())
	assert.Equal(t, "Write about it.\n\nTopic: rivers", gjson.GetBytes(gotBody, "contents.0.parts.0.text").String())
	assert.Equal(t, 0.7, gjson.GetBytes(gotBody, "generationConfig.temperature").Float())
	assert.Equal(t, int64(1024), gjson.GetBytes(gotBody, "generationConfig.maxOutputTokens").Int())
}

func TestChatCompletion_Success(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Done."}}]}`)
	}))
	defer srv.Close()

	resp := NewDispatcher(srv.Client()).Generate(context.Background(), "openai", Request{
		APIKey:       "sk-test",
		SystemPrompt: "system text",
		UserPrompt:   "topic text",
		ModelID:      "gpt-4o-mini",
		Endpoint:     srv.URL,
	})

	require.False(t, resp.Failed(), resp.Error)
	assert.Equal(t, "Done.", resp.Content)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gjson.GetBytes(gotBody, "model").String())
	assert.Equal(t, "system", gjson.GetBytes(gotBody, "messages.0.role").String())
	assert.Equal(t, "system text", gjson.GetBytes(gotBody, "messages.0.content").String())
	assert.Equal(t, "topic text", gjson.GetBytes(gotBody, "messages.1.content").String())
	assert.Equal(t, int64(1024), gjson.GetBytes(gotBody, "max_tokens").Int())
}

func TestAdapters_UpstreamErrors(t *testing.T) {
	cases := []struct {
		name   string
		tag    string
		status int
		body   string
		want   string
	}{
		{name: "message propagated", tag: "openai", status: http.StatusUnauthorized, body: `{"error":{"message":"Incorrect API key provided"}}`, want: "Incorrect API key provided"},
		{name: "status fallback", tag: "gemini", status: http.StatusInternalServerError, body: `oops`, want: "Gemini API error (status 500)"},
		{name: "groq status fallback", tag: "groq", status: http.StatusTooManyRequests, body: `{}`, want: "Groq API error (status 429)"},
		{name: "empty content", tag: "openai", status: http.StatusOK, body: `{"choices":[]}`, want: "OpenAI returned an empty response"},
		{name: "empty gemini content", tag: "gemini", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, want: "Gemini returned an empty response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			resp := NewDispatcher(srv.Client()).Generate(context.Background(), tc.tag, Request{
				APIKey:   "k",
				ModelID:  "m",
				Endpoint: srv.URL,
			})
			assert.Equal(t, "", resp.Content)
			assert.Equal(t, tc.want, resp.Error)
		})
	}
}

func TestAdapters_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	resp := NewDispatcher(nil).Generate(context.Background(), "openai", Request{APIKey: "k", Endpoint: endpoint})
	assert.True(t, resp.Failed())
	assert.Empty(t, resp.Content)
}

func TestGemini_DefaultEndpointUsesModel(t *testing.T) {
	adapter, ok := NewDispatcher(nil).Adapter("google")
	require.True(t, ok)
	gemini, ok := adapter.(*GeminiAdapter)
	require.True(t, ok)
	assert.Contains(t, gemini.defaultEndpoint, ":generateContent")
}
