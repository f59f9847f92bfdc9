package monitor

import "strings"

// EnsureAIPrefix guarantees that a comment starts with the mandatory AI
// disclosure prefix. Idempotent: content that already carries the prefix is
// returned unchanged, so re-running generation never stacks prefixes.
func EnsureAIPrefix(content, prefix string) string {
	trimmed := strings.TrimSpace(content)
	if prefix == "" {
		return trimmed
	}
	if strings.HasPrefix(trimmed, prefix) {
		return trimmed
	}
	return prefix + " " + trimmed
}
