// Package prompt renders template strings into the final instruction sent to a model.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// Trailer is appended to every rendered prompt.
	Trailer = "\n\nRespond ONLY with the generated prompt, no explanations."

	styleBlockPrefix = "\n\nVisual Style: "
	stylePlaceholder = "{{style}}"
)

// TopicAliases are the placeholders filled with the request topic, in order.
var TopicAliases = []string{"topic", "subject", "details", "input"}

// Render substitutes params and the topic into template, applies the style and appends Trailer.
// Substitution is a single pass, so substituted values are never expanded again.
func Render(template string, params map[string]any, topic, style string) string {
	body := strings.TrimSuffix(template, Trailer)
	body = placeholderReplacer(params, topic).Replace(body)

	if style != "" {
		if strings.Contains(body, stylePlaceholder) {
			body = strings.ReplaceAll(body, stylePlaceholder, style)
		} else if !strings.HasSuffix(body, styleBlockPrefix+style) {
			body += styleBlockPrefix + style
		}
	}
	return body + Trailer
}

// placeholderReplacer builds one replacer for params and topic aliases.
// A param named like a topic alias takes precedence over the topic.
func placeholderReplacer(params map[string]any, topic string) *strings.Replacer {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*(len(keys)+len(TopicAliases)))
	for _, key := range keys {
		pairs = append(pairs, placeholder(key), Stringify(params[key]))
	}
	for _, alias := range TopicAliases {
		if _, shadowed := params[alias]; shadowed {
			continue
		}
		pairs = append(pairs, placeholder(alias), topic)
	}
	return strings.NewReplacer(pairs...)
}

func placeholder(name string) string {
	return "{{" + name + "}}"
}

// Stringify renders a parameter value as text.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

// MergeParams overlays request params on template defaults.
func MergeParams(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for key, value := range defaults {
		merged[key] = value
	}
	for key, value := range overrides {
		merged[key] = value
	}
	return merged
}
