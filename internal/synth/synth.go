// Package synth renders RSS documents for scraped blogs that publish no
// native feed, so external readers can subscribe to them too.
package synth

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/feeds"

	"feedwatch/internal/feed"
)

// Generator holds the most recent RSS rendering per scraped source.
type Generator struct {
	adapter *feed.Adapter
	logger  *log.Logger

	mu       sync.RWMutex
	rendered map[string]string
}

func NewGenerator(adapter *feed.Adapter, logger *log.Logger) *Generator {
	return &Generator{
		adapter:  adapter,
		logger:   logger,
		rendered: make(map[string]string),
	}
}

// Refresh re-renders every scraped source. A failing source keeps its
// previous rendering.
func (g *Generator) Refresh(ctx context.Context, sources []feed.Source) {
	for _, src := range sources {
		if !src.Scraped() {
			continue
		}
		posts, _, err := g.adapter.Fetch(ctx, src)
		if err != nil {
			g.logger.Printf("synthesize feed for %s: %v", src.Title, err)
			continue
		}

		out := &feeds.Feed{
			Title:       src.Title,
			Link:        &feeds.Link{Href: src.BlogURL},
			Description: src.Description,
			Created:     time.Now(),
		}
		for _, p := range posts {
			out.Items = append(out.Items, &feeds.Item{
				Title: p.Title,
				Link:  &feeds.Link{Href: p.Link},
				Id:    p.Link,
			})
		}
		rss, err := out.ToRss()
		if err != nil {
			g.logger.Printf("render feed for %s: %v", src.Title, err)
			continue
		}

		g.mu.Lock()
		g.rendered[Slug(src.Title)] = rss
		g.mu.Unlock()
	}
}

// Feed returns the rendered RSS document for the named source.
func (g *Generator) Feed(name string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rss, ok := g.rendered[name]
	return rss, ok
}

// Slug derives the URL path segment a scraped source is served under.
func Slug(title string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(title), " ", "-"))
}
