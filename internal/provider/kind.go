// Package provider calls upstream LLM HTTP APIs and normalizes their responses.
package provider

import "strings"

// Kind is the wire protocol family of a provider.
type Kind int

const (
	KindUnknown         Kind = iota
	KindGenerateContent      // Gemini generateContent.
	KindChatCompletion       // OpenAI chat completions and compatible APIs.
)

func (k Kind) String() string {
	switch k {
	case KindGenerateContent:
		return "generate-content"
	case KindChatCompletion:
		return "chat-completion"
	default:
		return "unknown"
	}
}

// Canonical provider tags.
const (
	TagGemini               = "gemini"
	TagOpenAI               = "openai"
	TagOpenAICompatibility  = "openai-compatibility"
	TagDeepSeek             = "deepseek"
	TagGroq                 = "groq"
	TagOpenRouter           = "openrouter"
	defaultGeminiEndpoint   = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"
	defaultOpenAIEndpoint   = "https://api.openai.com/v1/chat/completions"
	defaultDeepSeekEndpoint = "https://api.deepseek.com/chat/completions"
	defaultGroqEndpoint     = "https://api.groq.com/openai/v1/chat/completions"
	defaultOpenRouterURL    = "https://openrouter.ai/api/v1/chat/completions"
)

var providerAliases = map[string]string{
	"gemini":               TagGemini,
	"google":               TagGemini,
	"openai":               TagOpenAI,
	"openai-compatibility": TagOpenAICompatibility,
	"deepseek":             TagDeepSeek,
	"groq":                 TagGroq,
	"openrouter":           TagOpenRouter,
}

type providerInfo struct {
	kind     Kind
	name     string
	endpoint string
}

var providers = map[string]providerInfo{
	TagGemini:              {kind: KindGenerateContent, name: "Gemini", endpoint: defaultGeminiEndpoint},
	TagOpenAI:              {kind: KindChatCompletion, name: "OpenAI", endpoint: defaultOpenAIEndpoint},
	TagOpenAICompatibility: {kind: KindChatCompletion, name: "OpenAI"},
	TagDeepSeek:            {kind: KindChatCompletion, name: "DeepSeek", endpoint: defaultDeepSeekEndpoint},
	TagGroq:                {kind: KindChatCompletion, name: "Groq", endpoint: defaultGroqEndpoint},
	TagOpenRouter:          {kind: KindChatCompletion, name: "OpenRouter", endpoint: defaultOpenRouterURL},
}

// NormalizeTag maps a provider tag or alias to its canonical tag.
// Unknown tags are returned lowercased and trimmed.
func NormalizeTag(tag string) string {
	trimmed := strings.ToLower(strings.TrimSpace(tag))
	if trimmed == "" {
		return ""
	}
	if alias, ok := providerAliases[trimmed]; ok {
		return alias
	}
	return trimmed
}

// ParseKind returns the protocol family for a provider tag.
func ParseKind(tag string) (Kind, bool) {
	info, ok := providers[NormalizeTag(tag)]
	if !ok {
		return KindUnknown, false
	}
	return info.kind, true
}

// IsSupported reports whether tag names a provider with an adapter.
func IsSupported(tag string) bool {
	_, ok := ParseKind(tag)
	return ok
}

// Tags lists the canonical provider tags.
func Tags() []string {
	return []string{TagGemini, TagOpenAI, TagOpenAICompatibility, TagDeepSeek, TagGroq, TagOpenRouter}
}
