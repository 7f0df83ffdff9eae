// Package watch detects newly published posts across configured feeds and
// drives the extract/classify/notify pipeline for each change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"feedwatch/internal/classify"
	"feedwatch/internal/feed"
	"feedwatch/internal/notify"
	"feedwatch/internal/store"
)

// ErrCycleInFlight is returned when a cycle is triggered while another one
// is still running. Triggers are skipped, not queued.
var ErrCycleInFlight = errors.New("watch cycle already in flight")

// FeedSource produces a source's candidate posts, newest first, plus the
// source's display title.
type FeedSource interface {
	Fetch(ctx context.Context, src feed.Source) ([]feed.CandidatePost, string, error)
}

// StateStore is the slice of the persistence contract the watcher needs.
type StateStore interface {
	LoadAll(ctx context.Context) ([]store.FeedState, error)
	Upsert(ctx context.Context, url, title, lastLink string, updated time.Time) error
}

// Extractor returns the readable text of a post page, or "" on failure.
type Extractor interface {
	Extract(ctx context.Context, link string) string
}

// Notifier delivers a rendered notification payload.
type Notifier interface {
	Send(ctx context.Context, p notify.Payload) error
}

// Watcher is the per-cycle orchestrator. It owns all writes to the state
// store; every other collaborator is read-only or fire-and-forget.
type Watcher struct {
	store      StateStore
	source     FeedSource
	extractor  Extractor
	classifier classify.Classifier
	notifier   Notifier
	logger     *log.Logger

	busy atomic.Bool
	now  func() time.Time
}

func New(st StateStore, source FeedSource, extractor Extractor, classifier classify.Classifier, notifier Notifier, logger *log.Logger) *Watcher {
	return &Watcher{
		store:      st,
		source:     source,
		extractor:  extractor,
		classifier: classifier,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// RunCycle processes every configured source once, concurrently. A failure
// in one source never blocks the others; only a failure to load stored
// state aborts the cycle. Overlapping triggers are rejected with
// ErrCycleInFlight.
func (w *Watcher) RunCycle(ctx context.Context, sources []feed.Source, interests []string) error {
	if !w.busy.CompareAndSwap(false, true) {
		return ErrCycleInFlight
	}
	defer w.busy.Store(false)

	states, err := w.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load feed states: %w", err)
	}
	byURL := make(map[string]store.FeedState, len(states))
	for _, state := range states {
		byURL[state.URL] = state
	}

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src feed.Source) {
			defer wg.Done()
			prev, seen := byURL[src.Key()]
			if err := w.processSource(ctx, src, prev, seen, interests); err != nil {
				w.logger.Printf("feed %s: %v", src.Key(), err)
			}
		}(src)
	}
	wg.Wait()
	return nil
}

// ProcessOne runs the full detection pipeline for a single source
// immediately and reports its outcome, for the add-one-feed endpoint.
func (w *Watcher) ProcessOne(ctx context.Context, src feed.Source, interests []string) error {
	states, err := w.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load feed states: %w", err)
	}
	var prev store.FeedState
	var seen bool
	for _, state := range states {
		if state.URL == src.Key() {
			prev, seen = state, true
			break
		}
	}
	return w.processSource(ctx, src, prev, seen, interests)
}

// processSource is the per-feed state machine: fetch, compare against the
// stored last link, persist on change, then hand the new post downstream.
// State is persisted before classification and notification so a slow or
// failing downstream call never causes the same post to be redetected.
func (w *Watcher) processSource(ctx context.Context, src feed.Source, prev store.FeedState, seen bool, interests []string) error {
	posts, feedTitle, err := w.source.Fetch(ctx, src)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		w.logger.Printf("no items found in feed %s", src.Key())
		return nil
	}
	latest := posts[0]
	if latest.Link == "" {
		w.logger.Printf("no valid post found in feed %s", src.Key())
		return nil
	}

	title := feedTitle
	switch {
	case !seen:
		// First successful poll of this feed.
	case latest.Link != prev.LastLink:
		// Keep the stored title on updates.
		title = prev.Title
	default:
		return nil
	}

	if err := w.store.Upsert(ctx, src.Key(), title, latest.Link, w.now()); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}

	w.handleNewPost(ctx, title, latest, interests)
	return nil
}

// handleNewPost extracts content for the post, classifies it, and notifies
// when relevant. Nothing in here may fail the feed: state is already
// persisted and delivery is best effort.
func (w *Watcher) handleNewPost(ctx context.Context, feedTitle string, post feed.CandidatePost, interests []string) {
	content := w.extractor.Extract(ctx, post.Link)
	if content == "" {
		content = post.Content
	}
	if content == "" {
		w.logger.Printf("no content available for %s, skipping classification", post.Link)
		return
	}

	result := w.classifier.Classify(ctx, content, interests)
	if !result.Relevant {
		return
	}

	payload := notify.Payload{
		FeedTitle: feedTitle,
		PostTitle: post.Title,
		PostLink:  post.Link,
		Summary:   result.Summary,
	}
	if err := w.notifier.Send(ctx, payload); err != nil {
		w.logger.Printf("notify about %s: %v", post.Link, err)
	}
}
