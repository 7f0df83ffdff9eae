package feed

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const fetchTimeout = 10 * time.Second

// Adapter normalizes syndication documents and scraped blog pages into
// candidate posts, newest first. It is safe for concurrent use.
type Adapter struct {
	client *http.Client
	logger *log.Logger
}

// NewAdapter creates an adapter with a bounded fetch timeout.
func NewAdapter(logger *log.Logger) *Adapter {
	return &Adapter{
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger,
	}
}

// Fetch pulls the source and returns its posts in document order plus the
// source's display title. Failures are typed as *FetchError or *ParseError.
func (a *Adapter) Fetch(ctx context.Context, src Source) ([]CandidatePost, string, error) {
	if src.Scraped() {
		posts, err := a.scrape(ctx, src)
		return posts, src.Title, err
	}
	return a.fetchSyndication(ctx, src.URL)
}

func (a *Adapter) fetchSyndication(ctx context.Context, rawURL string) ([]CandidatePost, string, error) {
	// gofeed parsers carry per-parse state and are not safe to share
	// across the concurrent feeds of one cycle; build a fresh one per
	// call and share only the HTTP client.
	parser := gofeed.NewParser()
	parser.Client = a.client

	parsed, err := parser.ParseURLWithContext(rawURL, ctx)
	if err != nil {
		return nil, "", wrapFeedErr(rawURL, err)
	}

	posts := make([]CandidatePost, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		snippet := item.Content
		if snippet == "" {
			snippet = item.Description
		}
		posts = append(posts, CandidatePost{
			Title:   item.Title,
			Link:    item.Link,
			Content: snippet,
		})
	}
	return posts, parsed.Title, nil
}

func (a *Adapter) scrape(ctx context.Context, src Source) ([]CandidatePost, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.BlogURL, nil)
	if err != nil {
		return nil, &FetchError{URL: src.BlogURL, Err: err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: src.BlogURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: src.BlogURL, Err: &httpStatusError{status: resp.Status}}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &ParseError{URL: src.BlogURL, Err: err}
	}

	var posts []CandidatePost
	doc.Find(src.LinkSelector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Text())
		href, _ := sel.Attr("href")
		if title == "" || href == "" {
			return
		}
		posts = append(posts, CandidatePost{
			Title: title,
			Link:  resolveLink(src.BaseURL, href),
		})
	})
	return posts, nil
}

// resolveLink joins site-relative hrefs to the configured base URL and
// leaves absolute links alone.
func resolveLink(base, href string) string {
	if !strings.HasPrefix(href, "/") {
		return href
	}
	return strings.TrimSuffix(base, "/") + href
}

type httpStatusError struct {
	status string
}

func (e *httpStatusError) Error() string {
	return "unexpected status " + e.status
}
