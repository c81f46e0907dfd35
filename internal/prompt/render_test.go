package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SubstitutesParamsGlobally(t *testing.T) {
	out := Render("{{tone}} story, {{tone}} ending, {{length}} words", map[string]any{
		"tone":   "dark",
		"length": 300,
	}, "", "")

	assert.Equal(t, "dark story, dark ending, 300 words"+Trailer, out)
}

func TestRender_ReplacesAllTopicAliases(t *testing.T) {
	template := "A {{topic}} / {{subject}} / {{details}} / {{input}} / {{topic}}"
	out := Render(template, nil, "lighthouse", "")

	for _, alias := range TopicAliases {
		assert.NotContains(t, out, "{{"+alias+"}}")
	}
	assert.Equal(t, "A lighthouse / lighthouse / lighthouse / lighthouse / lighthouse"+Trailer, out)
}

func TestRender_TopicIsNotReexpanded(t *testing.T) {
	out := Render("{{topic}} and {{subject}}", nil, "about {{subject}}", "")
	assert.Equal(t, "about {{subject}} and about {{subject}}"+Trailer, out)
}

func TestRender_ParamShadowsTopicAlias(t *testing.T) {
	out := Render("{{subject}}: {{topic}}", map[string]any{"subject": "cats"}, "dogs", "")
	assert.Equal(t, "cats: dogs"+Trailer, out)
}

func TestRender_StylePlaceholderSubstituted(t *testing.T) {
	out := Render("Paint {{topic}} in {{style}}", nil, "a fox", "watercolor")
	assert.Equal(t, "Paint a fox in watercolor"+Trailer, out)
	assert.NotContains(t, out, "Visual Style:")
}

func TestRender_StyleAppendedWhenNoPlaceholder(t *testing.T) {
	out := Render("Paint {{topic}}", nil, "a fox", "noir")
	assert.Equal(t, "Paint a fox\n\nVisual Style: noir"+Trailer, out)
}

func TestRender_EmptyTemplate(t *testing.T) {
	assert.Equal(t, Trailer, Render("", nil, "topic", ""))
	assert.Equal(t, "\n\nVisual Style: pop art"+Trailer, Render("", nil, "topic", "pop art"))
}

func TestRender_UnknownPlaceholdersUntouched(t *testing.T) {
	out := Render("{{unknown}} {{topic}}", map[string]any{"other": 1}, "x", "")
	assert.Equal(t, "{{unknown}} x"+Trailer, out)
}

func TestRender_Idempotent(t *testing.T) {
	cases := []struct {
		name     string
		template string
		params   map[string]any
		topic    string
		style    string
	}{
		{name: "empty", template: ""},
		{name: "params and topic", template: "{{a}} about {{topic}}", params: map[string]any{"a": "Essay"}, topic: "tides"},
		{name: "style appended", template: "{{input}}", topic: "owls", style: "ink"},
		{name: "no placeholders", template: "Write a haiku.", style: "minimal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			once := Render(tc.template, tc.params, tc.topic, tc.style)
			twice := Render(once, tc.params, tc.topic, tc.style)
			assert.Equal(t, once, twice)
			assert.Equal(t, 1, strings.Count(twice, Trailer))
		})
	}
}

func TestStringify(t *testing.T) {
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"n":7,"f":1.5,"b":true,"s":"x","l":[1,2],"z":null}`), &decoded))

	assert.Equal(t, "7", Stringify(decoded["n"]))
	assert.Equal(t, "1.5", Stringify(decoded["f"]))
	assert.Equal(t, "true", Stringify(decoded["b"]))
	assert.Equal(t, "x", Stringify(decoded["s"]))
	assert.Equal(t, "[1,2]", Stringify(decoded["l"]))
	assert.Equal(t, "", Stringify(decoded["z"]))
	assert.Equal(t, "42", Stringify(int64(42)))
}

func TestMergeParams(t *testing.T) {
	merged := MergeParams(map[string]any{"tone": "formal", "length": 100}, map[string]any{"tone": "casual"})
	assert.Equal(t, map[string]any{"tone": "casual", "length": 100}, merged)
}
