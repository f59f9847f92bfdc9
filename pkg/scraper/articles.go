package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Tab is one filter tab on the article index, e.g. "Alle Texte".
type Tab struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ArticleStatus is the editorial state the platform shows on each card.
type ArticleStatus string

// Editorial states, in the platform's German vocabulary.
const (
	ArticleStatusDraft     ArticleStatus = "entwurf"
	ArticleStatusInReview  ArticleStatus = "lehrpersonenkontrolle"
	ArticleStatusPublished ArticleStatus = "publiziert"
)

// ArticleMetadata is one card from the article index.
type ArticleMetadata struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Author      string        `json:"author"`
	Status      ArticleStatus `json:"status"`
	Category    *int          `json:"category,omitempty"`
	PublishedAt *time.Time    `json:"published_at,omitempty"`
	URL         string        `json:"url"`
}

// ArticleFilters narrows the article index. Tab is mandatory for discovery;
// the rest map straight to query parameters.
type ArticleFilters struct {
	Tab      string
	Category *int
	Task     *int
	Search   string
	Sort     string
}

// categoryKeywords maps the category icon's filename fragments to the
// platform's numeric category IDs.
var categoryKeywords = map[string]int{
	"abenteuer": 1,
	"fantasie":  2,
	"maerchen":  3,
	"sachtext":  4,
	"tiere":     5,
	"witz":      6,
}

// ListTabs returns the filter tabs visible to this login.
func (s *Session) ListTabs(ctx context.Context) ([]Tab, error) {
	doc, err := s.get(ctx, "tabs", s.absoluteURL("/articles/"))
	if err != nil {
		return nil, err
	}

	var tabs []Tab
	doc.Find("ul#pills-tab button[data-bs-target]").Each(func(_ int, btn *goquery.Selection) {
		target, _ := btn.Attr("data-bs-target")
		id := strings.TrimPrefix(strings.TrimPrefix(target, "#"), "pills-")
		label := strings.TrimSpace(btn.Text())
		if id != "" && label != "" {
			tabs = append(tabs, Tab{ID: id, Label: label})
		}
	})
	if len(tabs) == 0 {
		return nil, &ScrapingError{Op: "tabs", Err: fmt.Errorf("no filter tabs found")}
	}
	return tabs, nil
}

// ListArticles returns up to limit article cards matching the filters.
// limit <= 0 means no cap beyond what the page serves.
func (s *Session) ListArticles(ctx context.Context, filters ArticleFilters, limit int) ([]ArticleMetadata, error) {
	q := url.Values{}
	if filters.Tab != "" {
		q.Set("tab", filters.Tab)
	}
	if filters.Category != nil {
		q.Set("category", fmt.Sprintf("%d", *filters.Category))
	}
	if filters.Task != nil {
		q.Set("task", fmt.Sprintf("%d", *filters.Task))
	}
	if filters.Search != "" {
		q.Set("search", filters.Search)
	}
	if filters.Sort != "" {
		q.Set("sort", filters.Sort)
	}

	indexURL := s.absoluteURL("/articles/")
	if encoded := q.Encode(); encoded != "" {
		indexURL += "?" + encoded
	}

	doc, err := s.get(ctx, "article index", indexURL)
	if err != nil {
		return nil, err
	}

	var articles []ArticleMetadata
	doc.Find("div.col-xl-4.mb-4").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if limit > 0 && len(articles) >= limit {
			return false
		}
		meta, ok := s.parseCard(card)
		if ok {
			articles = append(articles, meta)
		}
		return true
	})
	return articles, nil
}

func (s *Session) parseCard(card *goquery.Selection) (ArticleMetadata, bool) {
	link := card.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		return strings.Contains(href, "/article/")
	}).First()
	href, ok := link.Attr("href")
	if !ok {
		return ArticleMetadata{}, false
	}
	id := articleIDFromHref(href)
	if id == "" {
		return ArticleMetadata{}, false
	}

	meta := ArticleMetadata{
		ID:     id,
		Title:  strings.TrimSpace(card.Find(".article-title").First().Text()),
		Author: strings.TrimSpace(card.Find(".article-author").First().Text()),
		URL:    s.absoluteURL(href),
	}
	meta.PublishedAt = parseGermanDate(card.Find(".article-date").First().Text())
	meta.Status = cardStatus(card)
	meta.Category = cardCategory(card)
	return meta, true
}

func articleIDFromHref(href string) string {
	parts := strings.Split(strings.Trim(href, "/"), "/")
	for i, p := range parts {
		if p == "article" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// cardStatus reads the editorial state from the card header's class list.
func cardStatus(card *goquery.Selection) ArticleStatus {
	classes, _ := card.Find(".card-header").First().Attr("class")
	lower := strings.ToLower(classes)
	switch {
	case strings.Contains(lower, string(ArticleStatusPublished)):
		return ArticleStatusPublished
	case strings.Contains(lower, string(ArticleStatusInReview)):
		return ArticleStatusInReview
	case strings.Contains(lower, string(ArticleStatusDraft)):
		return ArticleStatusDraft
	}
	return ""
}

// cardCategory derives the numeric category from the category icon filename.
func cardCategory(card *goquery.Selection) *int {
	var category *int
	card.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		lower := strings.ToLower(src)
		for keyword, id := range categoryKeywords {
			if strings.Contains(lower, keyword) {
				v := id
				category = &v
				return false
			}
		}
		return true
	})
	return category
}
