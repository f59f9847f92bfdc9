package monitor

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/yourmoment/yourmoment/pkg/models"
)

// placeholderPattern matches {name} placeholders in user prompt templates.
var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// PlaceholderValues carries the article snapshot fields a prompt template may
// reference.
type PlaceholderValues struct {
	ArticleTitle       string
	ArticleContent     string
	ArticleAuthor      string
	ArticleCategory    *int
	ArticlePublishedAt *time.Time
	ArticleURL         string
	PlatformUsername   string
}

func (v PlaceholderValues) lookup(name string) (string, bool) {
	switch name {
	case "article_title":
		return v.ArticleTitle, true
	case "article_content":
		return v.ArticleContent, true
	case "article_author":
		return v.ArticleAuthor, true
	case "article_category":
		if v.ArticleCategory == nil {
			return "", true
		}
		return fmt.Sprintf("%d", *v.ArticleCategory), true
	case "article_published_at":
		if v.ArticlePublishedAt == nil {
			return "", true
		}
		return v.ArticlePublishedAt.Format("02.01.2006 15:04"), true
	case "article_url":
		return v.ArticleURL, true
	case "platform_username":
		return v.PlatformUsername, true
	}
	return "", false
}

// ValidatePlaceholders returns the placeholders in template that are not in
// the recognized set. An empty result means the template is well-formed.
func ValidatePlaceholders(template string) []string {
	var unknown []string
	seen := make(map[string]bool)
	for _, match := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		name := match[1]
		if _, ok := models.RecognizedPlaceholders[name]; !ok && !seen[name] {
			unknown = append(unknown, name)
			seen[name] = true
		}
	}
	return unknown
}

// RenderPrompt substitutes every recognized placeholder with its snapshot
// value. Unknown placeholders fail the render rather than leaking braces into
// the prompt.
func RenderPrompt(template string, values PlaceholderValues) (string, error) {
	if unknown := ValidatePlaceholders(template); len(unknown) > 0 {
		return "", fmt.Errorf("unknown placeholders in prompt template: %s", strings.Join(unknown, ", "))
	}
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, _ := values.lookup(name)
		return value
	})
	return rendered, nil
}
