// Package extract pulls readable article text out of post pages.
package extract

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const fetchTimeout = 10 * time.Second

// strippedSelectors matches the page chrome removed before text extraction.
const strippedSelectors = "script, style, nav, header, footer, aside, .advertisement, .ads, .sidebar, .comments"

// browserHeaders mimic a desktop browser; some blogs reject bare clients.
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Cache-Control":             "max-age=0",
}

// Extractor fetches post pages and strips them down to body text.
type Extractor struct {
	client *http.Client
	logger *log.Logger
}

func NewExtractor(logger *log.Logger) *Extractor {
	return &Extractor{
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger,
	}
}

// Extract returns the plaintext body of the page at link, or "" when the
// page cannot be fetched or parsed. Extraction is best effort; the caller
// falls back to the feed-supplied snippet.
func (e *Extractor) Extract(ctx context.Context, link string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		e.logger.Printf("failed to build request for %s: %v", link, err)
		return ""
	}
	for name, value := range browserHeaders {
		req.Header.Set(name, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Printf("failed to fetch %s: %v", link, err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.logger.Printf("failed to fetch %s: unexpected status %s", link, resp.Status)
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		e.logger.Printf("failed to parse %s: %v", link, err)
		return ""
	}
	doc.Find(strippedSelectors).Remove()
	return strings.TrimSpace(doc.Find("body").Text())
}
