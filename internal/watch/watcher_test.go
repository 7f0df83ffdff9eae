package watch

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"feedwatch/internal/classify"
	"feedwatch/internal/feed"
	"feedwatch/internal/notify"
	"feedwatch/internal/store"
)

type fetchResult struct {
	posts []feed.CandidatePost
	title string
	err   error
}

type fakeSource struct {
	mu      sync.Mutex
	results map[string]fetchResult
	block   chan struct{} // when set, Fetch parks until closed
}

func (f *fakeSource) Fetch(ctx context.Context, src feed.Source) ([]feed.CandidatePost, string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	res := f.results[src.Key()]
	f.mu.Unlock()
	return res.posts, res.title, res.err
}

type upsertCall struct {
	url      string
	title    string
	lastLink string
}

type fakeStore struct {
	mu        sync.Mutex
	states    []store.FeedState
	upserts   []upsertCall
	loadErr   error
	upsertErr error
}

func (f *fakeStore) LoadAll(ctx context.Context) ([]store.FeedState, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.FeedState(nil), f.states...), nil
}

func (f *fakeStore) Upsert(ctx context.Context, url, title, lastLink string, updated time.Time) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, upsertCall{url: url, title: title, lastLink: lastLink})
	return nil
}

type fakeExtractor struct {
	text string
}

func (f *fakeExtractor) Extract(ctx context.Context, link string) string { return f.text }

type fakeClassifier struct {
	mu     sync.Mutex
	result classify.Result
	posts  []string
}

func (f *fakeClassifier) Classify(ctx context.Context, post string, interests []string) classify.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post)
	return f.result
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []notify.Payload
	err      error
}

func (f *fakeNotifier) Send(ctx context.Context, p notify.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return f.err
}

type fixture struct {
	watcher    *Watcher
	store      *fakeStore
	source     *fakeSource
	extractor  *fakeExtractor
	classifier *fakeClassifier
	notifier   *fakeNotifier
}

func newFixture() *fixture {
	f := &fixture{
		store:      &fakeStore{},
		source:     &fakeSource{results: map[string]fetchResult{}},
		extractor:  &fakeExtractor{text: "article text"},
		classifier: &fakeClassifier{result: classify.Result{Summary: "sum", Relevant: true}},
		notifier:   &fakeNotifier{},
	}
	f.watcher = New(f.store, f.source, f.extractor, f.classifier, f.notifier, log.New(io.Discard, "", 0))
	return f
}

func TestFirstSeenFeedInsertsAndNotifies(t *testing.T) {
	f := newFixture()
	f.source.results["http://x/feed"] = fetchResult{
		posts: []feed.CandidatePost{{Title: "T1", Link: "http://x/p1"}},
		title: "X Blog",
	}

	err := f.watcher.RunCycle(context.Background(), []feed.Source{{URL: "http://x/feed"}}, []string{"go"})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(f.store.upserts) != 1 {
		t.Fatalf("got %d upserts, want 1", len(f.store.upserts))
	}
	got := f.store.upserts[0]
	if got.url != "http://x/feed" || got.title != "X Blog" || got.lastLink != "http://x/p1" {
		t.Errorf("upsert = %+v", got)
	}
	if len(f.notifier.payloads) != 1 {
		t.Fatalf("got %d notifications, want 1", len(f.notifier.payloads))
	}
	p := f.notifier.payloads[0]
	if p.FeedTitle != "X Blog" || p.PostTitle != "T1" || p.PostLink != "http://x/p1" || p.Summary != "sum" {
		t.Errorf("payload = %+v", p)
	}
}

func TestUnchangedFeedDoesNothing(t *testing.T) {
	f := newFixture()
	f.store.states = []store.FeedState{{URL: "http://x/feed", Title: "X Blog", LastLink: "http://x/p1"}}
	f.source.results["http://x/feed"] = fetchResult{
		posts: []feed.CandidatePost{{Title: "T1", Link: "http://x/p1"}},
		title: "X Blog",
	}

	if err := f.watcher.RunCycle(context.Background(), []feed.Source{{URL: "http://x/feed"}}, nil); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(f.store.upserts) != 0 {
		t.Errorf("got %d upserts, want 0", len(f.store.upserts))
	}
	if len(f.notifier.payloads) != 0 {
		t.Errorf("got %d notifications, want 0", len(f.notifier.payloads))
	}
	if len(f.classifier.posts) != 0 {
		t.Errorf("classifier called %d times, want 0", len(f.classifier.posts))
	}
}

func TestChangedFeedUpdatesPreservingTitle(t *testing.T) {
	f := newFixture()
	f.store.states = []store.FeedState{{URL: "http://x/feed", Title: "Stored Title", LastLink: "http://x/p1"}}
	f.source.results["http://x/feed"] = fetchResult{
		posts: []feed.CandidatePost{{Title: "T2", Link: "http://x/p2"}},
		title: "Fresh Title",
	}

	if err := f.watcher.RunCycle(context.Background(), []feed.Source{{URL: "http://x/feed"}}, nil); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(f.store.upserts) != 1 {
		t.Fatalf("got %d upserts, want 1", len(f.store.upserts))
	}
	got := f.store.upserts[0]
	if got.title != "Stored Title" {
		t.Errorf("upsert title = %q, want the stored title preserved", got.title)
	}
	if got.lastLink != "http://x/p2" {
		t.Errorf("upsert lastLink = %q, want http://x/p2", got.lastLink)
	}
	if len(f.notifier.payloads) != 1 {
		t.Fatalf("got %d notifications, want 1", len(f.notifier.payloads))
	}
	if p := f.notifier.payloads[0]; p.PostLink != "http://x/p2" || p.PostTitle != "T2" {
		t.Errorf("payload = %+v", p)
	}
}

func TestExtractionFailureFallsBackToSnippet(t *testing.T) {
	f := newFixture()
	f.extractor.text = ""
	f.source.results["http://x/feed"] = fetchResult{
		posts: []feed.CandidatePost{{Title: "T1", Link: "http://x/p1", Content: "inline snippet"}},
		title: "X Blog",
	}

	if err := f.watcher.RunCycle(context.Background(), []feed.Source{{URL: "http://x/feed"}}, nil); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(f.classifier.posts) != 1 || f.classifier.posts[0] != "inline snippet" {
		t.Errorf("classifier saw %v, want the inline snippet", f.classifier.posts)
	}
}

func TestNoContentSkipsClassification(t *testing.T) {
	f := newFixture()
	f.extractor.text = ""
	f.source.results["http://x/feed"] = fetchResult{
		posts: []feed.CandidatePost{{Title: "T1", Link: "http://x/p1"}},
		title: "X Blog",
	}

	if err := f.watcher.RunCycle(context.Background(), []feed.Source{{URL: "http://x/feed"}}, nil); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(f.classifier.posts) != 0 {
		t.Errorf("classifier called %d times, want 0", len(f.classifier.posts))
	}
	if len(f.notifier.payloads) != 0 {
		t.Errorf("got %d notifications, want 0", len(f.notifier.payloads))
	}
	// The state change still persisted.
	if len(f.store.upserts) != 1 {
		t.Errorf("got %d upserts, want 1", len(f.store.upserts))
	}
}

func TestNotRelevantPersistsWithoutNotifying(t *testing.T) {
	f := newFixture()
	f.classifier.result = classify.Result{}
	f.source.results["http://x/feed"] = fetchResult{
		posts: []feed.CandidatePost{{Title: "T1", Link: "http://x/p1"}},
		title: "X Blog",
	}

	if err := f.watcher.RunCycle(context.Background(), []feed.Source{{URL: "http://x/feed"}}, nil); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(f.store.upserts) != 1 {
		t.Errorf("got %d upserts, want 1", len(f.store.upserts))
	}
	if len(f.notifier.payloads) != 0 {
		t.Errorf("got %d notifications, want 0", len(f.notifier.payloads))
	}
}

func TestFetchFailureIsolatedFromSiblings(t *testing.T) {
	f := newFixture()
	f.store.states = []store.FeedState{{URL: "http://bad/feed", Title: "Bad", LastLink: "http://bad/p1"}}
	f.source.results["http://bad/feed"] = fetchResult{
		err: &feed.ParseError{URL: "http://bad/feed", Err: errors.New("not a feed")},
	}
	f.source.results["http://good/feed"] = fetchResult{
		posts: []feed.CandidatePost{{Title: "G1", Link: "http://good/p1"}},
		title: "Good Blog",
	}

	sources := []feed.Source{{URL: "http://bad/feed"}, {URL: "http://good/feed"}}
	if err := f.watcher.RunCycle(context.Background(), sources, nil); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(f.store.upserts) != 1 {
		t.Fatalf("got %d upserts, want only the good feed's", len(f.store.upserts))
	}
	if f.store.upserts[0].url != "http://good/feed" {
		t.Errorf("upsert url = %q, the failing feed's state must stay untouched", f.store.upserts[0].url)
	}
	if len(f.notifier.payloads) != 1 {
		t.Errorf("got %d notifications, want 1 for the good feed", len(f.notifier.payloads))
	}
}

func TestNotifierFailureDoesNotUndoState(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("smtp down")
	f.source.results["http://x/feed"] = fetchResult{
		posts: []feed.CandidatePost{{Title: "T1", Link: "http://x/p1"}},
		title: "X Blog",
	}

	if err := f.watcher.RunCycle(context.Background(), []feed.Source{{URL: "http://x/feed"}}, nil); err != nil {
		t.Fatalf("RunCycle must not surface notifier errors, got %v", err)
	}
	if len(f.store.upserts) != 1 {
		t.Errorf("got %d upserts, want 1", len(f.store.upserts))
	}
}

func TestEmptyFeedLeavesStateAlone(t *testing.T) {
	f := newFixture()
	f.source.results["http://x/feed"] = fetchResult{title: "X Blog"}

	if err := f.watcher.RunCycle(context.Background(), []feed.Source{{URL: "http://x/feed"}}, nil); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(f.store.upserts) != 0 {
		t.Errorf("got %d upserts, want 0", len(f.store.upserts))
	}
}

func TestLoadAllFailureAbortsCycle(t *testing.T) {
	f := newFixture()
	f.store.loadErr = errors.New("db locked")

	err := f.watcher.RunCycle(context.Background(), []feed.Source{{URL: "http://x/feed"}}, nil)
	if err == nil {
		t.Fatal("expected a cycle-level error when stored state cannot be loaded")
	}
	if !errors.Is(err, f.store.loadErr) {
		t.Errorf("error = %v, want it to wrap the store error", err)
	}
}

func TestOverlappingCycleIsRejected(t *testing.T) {
	f := newFixture()
	f.source.block = make(chan struct{})
	f.source.results["http://x/feed"] = fetchResult{
		posts: []feed.CandidatePost{{Title: "T1", Link: "http://x/p1"}},
		title: "X Blog",
	}

	sources := []feed.Source{{URL: "http://x/feed"}}
	done := make(chan error, 1)
	go func() {
		done <- f.watcher.RunCycle(context.Background(), sources, nil)
	}()

	// Wait until the first cycle is parked inside Fetch.
	for !f.watcher.busy.Load() {
		time.Sleep(time.Millisecond)
	}
	if err := f.watcher.RunCycle(context.Background(), sources, nil); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("overlapping RunCycle = %v, want ErrCycleInFlight", err)
	}

	close(f.source.block)
	if err := <-done; err != nil {
		t.Fatalf("first RunCycle: %v", err)
	}
	// And a fresh trigger works again afterwards.
	f.source.block = nil
	if err := f.watcher.RunCycle(context.Background(), sources, nil); err != nil {
		t.Errorf("RunCycle after completion: %v", err)
	}
}

func TestProcessOne(t *testing.T) {
	f := newFixture()
	f.store.states = []store.FeedState{{URL: "http://x/feed", Title: "Stored", LastLink: "http://x/p1"}}
	f.source.results["http://x/feed"] = fetchResult{
		posts: []feed.CandidatePost{{Title: "T2", Link: "http://x/p2"}},
		title: "Fresh",
	}

	if err := f.watcher.ProcessOne(context.Background(), feed.Source{URL: "http://x/feed"}, nil); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if len(f.store.upserts) != 1 || f.store.upserts[0].lastLink != "http://x/p2" {
		t.Errorf("upserts = %+v", f.store.upserts)
	}
}

func TestProcessOneSurfacesFetchError(t *testing.T) {
	f := newFixture()
	f.source.results["http://x/feed"] = fetchResult{
		err: &feed.FetchError{URL: "http://x/feed", Err: errors.New("timeout")},
	}

	err := f.watcher.ProcessOne(context.Background(), feed.Source{URL: "http://x/feed"}, nil)
	var fetchErr *feed.FetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("ProcessOne error = %v, want the fetch error surfaced", err)
	}
}
