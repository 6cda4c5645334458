// Package llmadapter implements the opaque LLM Adapter contract: schema-
// guided structured generation, embedding, token budgeting, and retry.
package llmadapter

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// charsPerToken is the approximate number of characters per token for
// English text. Used for threshold estimation only — not exact counting.
const charsPerToken = 4

// DefaultPromptMaxTokens bounds a single structured_generate prompt before
// truncation kicks in, keeping window content within the backing model's
// context window regardless of provider.
const DefaultPromptMaxTokens = 100000

// EstimateTokens returns an approximate token count for text using the
// common ~4-characters-per-token heuristic. Intentionally approximate: an
// exact tokenizer would add a dependency for a threshold that's a soft
// limit, not a hard boundary.
//
// len(text) counts bytes, not runes, so multi-byte UTF-8 content
// overestimates the token count — erring toward truncating slightly early
// rather than overflowing the model's context window.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// TruncateToTokenBudget truncates text to fit maxTokens, cutting at the last
// newline before the limit so structured content (JSON windows, transcripts)
// isn't split mid-line.
func TruncateToTokenBudget(text string, maxTokens int) string {
	maxChars := maxTokens * charsPerToken
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	truncated := text[:cut]
	if idx := strings.LastIndex(truncated, "\n"); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + fmt.Sprintf("\n\n[TRUNCATED: prompt exceeded %d-token budget]", maxTokens)
}
