package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ArticleDetail is the full article page, raw HTML included so downstream
// consumers can re-parse without another fetch.
type ArticleDetail struct {
	ArticleMetadata
	Content string `json:"content"`
	RawHTML string `json:"raw_html"`
	EditURL string `json:"edit_url,omitempty"`
}

// FetchArticle loads and parses one article's detail page.
func (s *Session) FetchArticle(ctx context.Context, articleID string) (*ArticleDetail, error) {
	detailURL := s.absoluteURL("/article/" + articleID + "/")
	doc, err := s.get(ctx, "article detail", detailURL)
	if err != nil {
		return nil, err
	}

	detail := &ArticleDetail{
		ArticleMetadata: ArticleMetadata{ID: articleID, URL: detailURL},
	}

	// The heading reads "Titel von Autor"; split on the last " von " so
	// titles containing the word survive.
	heading := strings.TrimSpace(doc.Find("h1").First().Text())
	if idx := strings.LastIndex(heading, " von "); idx > 0 {
		detail.Title = strings.TrimSpace(heading[:idx])
		detail.Author = strings.TrimSpace(heading[idx+len(" von "):])
	} else {
		detail.Title = heading
	}

	detail.PublishedAt = parseGermanDate(doc.Find(".article-date").First().Text())

	// Body paragraphs, falling back to the text-to-speech textarea when the
	// highlight markup is absent.
	var paragraphs []string
	doc.Find(".article .highlight-target p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		detail.Content = strings.Join(paragraphs, "\n\n")
	} else {
		detail.Content = strings.TrimSpace(doc.Find("textarea#text-to-speech").First().Text())
	}

	if html, err := doc.Find(".article").First().Html(); err == nil {
		detail.RawHTML = strings.TrimSpace(html)
	}
	if detail.RawHTML == "" {
		if html, err := doc.Html(); err == nil {
			detail.RawHTML = html
		}
	}

	if editHref, ok := doc.Find(`a[href*="/edit/"]`).First().Attr("href"); ok {
		detail.EditURL = s.absoluteURL(editHref)
	}

	if detail.Title == "" && detail.Content == "" {
		return nil, &ScrapingError{Op: "article detail", Err: fmt.Errorf("article %s: empty page", articleID)}
	}
	return detail, nil
}

// PostComment submits a comment on an article and returns a synthesized
// platform comment identifier. The platform assigns no visible ID, so the
// identifier is built from the article, the posting instant, and the caller's
// reference token to stay unique across logins.
func (s *Session) PostComment(ctx context.Context, articleID, text, highlight, ref string) (string, error) {
	detailURL := s.absoluteURL("/article/" + articleID + "/")

	doc, err := s.get(ctx, "comment form", detailURL)
	if err != nil {
		return "", err
	}
	token, ok := doc.Find(`form input[name="csrfmiddlewaretoken"]`).First().Attr("value")
	if !ok || token == "" {
		return "", &ScrapingError{Op: "comment form", Err: fmt.Errorf("no CSRF token on article %s", articleID)}
	}

	form := url.Values{
		"csrfmiddlewaretoken": {token},
		"text":                {text},
		"status":              {"20"},
		"highlight":           {highlight},
	}
	commentURL := s.absoluteURL("/article/" + articleID + "/comment/")
	if _, err := s.postForm(ctx, "post comment", commentURL, detailURL, form); err != nil {
		return "", err
	}

	suffix := ref
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("%s-%d-%s", articleID, time.Now().Unix(), suffix), nil
}
