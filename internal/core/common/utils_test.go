package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Interpretation string   `json:"interpretation"`
	Items          []string `json:"items"`
}

func TestParseJSON(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		got, err := ParseJSON[payload](`{"interpretation": "ok", "items": ["a"]}`)
		require.NoError(t, err)
		assert.Equal(t, payload{Interpretation: "ok", Items: []string{"a"}}, got)
	})

	t.Run("fenced with chatter", func(t *testing.T) {
		got, err := ParseJSON[payload]("Sure! Here it is:\n```json\n{\"interpretation\": \"nested {braces}\"}\n```\nAnything else?")
		require.NoError(t, err)
		assert.Equal(t, "nested {braces}", got.Interpretation)
	})

	t.Run("no object", func(t *testing.T) {
		_, err := ParseJSON[payload]("I cannot help with that.")
		assert.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("broken object", func(t *testing.T) {
		_, err := ParseJSON[payload](`{"interpretation": }`)
		assert.ErrorContains(t, err, "failed to unmarshal JSON")
	})
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "hello", StripFences("```\nhello\n```"))
	assert.Equal(t, "hello", StripFences("```text\nhello\n```"))
	assert.Equal(t, "hello", StripFences("  hello "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}
