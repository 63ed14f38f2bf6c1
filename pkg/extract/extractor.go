package extract

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// ErrNoArticle means the document holds no article-like content. It is an
// expected outcome, not a fault.
var ErrNoArticle = errors.New("failed to parse content")

// Article is the readable part of a page.
type Article struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Length   int    `json:"length"`
	Excerpt  string `json:"excerpt"`
	SiteName string `json:"siteName"`
}

var strict = bluemonday.StrictPolicy()

// maxElements bounds the documents handed to the readability parser.
var maxElements = 100000

// Extract parses a page snapshot and returns its article. The input string is
// parsed into a private document, so the caller's copy is never touched.
func Extract(ctx context.Context, rawHTML, pageURL string) (article *Article, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rawHTML) == "" {
		return nil, ErrNoArticle
	}

	base, err := parseBaseURL(pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	// Executable and embedded nodes never carry article text.
	doc.Find("script, style, noscript, template, iframe, embed, object").Remove()

	cleaned, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			article = nil
			err = fmt.Errorf("content extraction failed: %v", r)
		}
	}()

	parser := readability.NewParser()
	parser.MaxElemsToParse = maxElements
	parsed, err := parser.Parse(strings.NewReader(cleaned), base)
	if err != nil {
		return nil, fmt.Errorf("content extraction failed: %w", err)
	}

	text := strings.TrimSpace(parsed.TextContent)
	if text == "" {
		return nil, ErrNoArticle
	}

	length := parsed.Length
	if length == 0 {
		length = utf8.RuneCountInString(parsed.TextContent)
	}

	return &Article{
		Title:    plain(parsed.Title),
		Content:  parsed.TextContent,
		Length:   length,
		Excerpt:  plain(parsed.Excerpt),
		SiteName: plain(parsed.SiteName),
	}, nil
}

func parseBaseURL(pageURL string) (*url.URL, error) {
	if strings.TrimSpace(pageURL) == "" {
		return url.Parse("about:blank")
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}
	return u, nil
}

// plain strips any markup left in metadata fields.
func plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
