// Package service ties the watcher to its triggers: the HTTP endpoints and
// the recurring poll timer.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"feedwatch/internal/config"
	"feedwatch/internal/feed"
	"feedwatch/internal/store"
	"feedwatch/internal/watch"
)

// Cycler runs watch cycles; satisfied by *watch.Watcher.
type Cycler interface {
	RunCycle(ctx context.Context, sources []feed.Source, interests []string) error
	ProcessOne(ctx context.Context, src feed.Source, interests []string) error
}

// FeedStates is the slice of the store the HTTP endpoints need.
type FeedStates interface {
	LoadAll(ctx context.Context) ([]store.FeedState, error)
	ReplaceAll(ctx context.Context, states []store.FeedState) error
}

// FeedRenderer serves synthesized RSS for scraped sources.
type FeedRenderer interface {
	Refresh(ctx context.Context, sources []feed.Source)
	Feed(name string) (string, bool)
}

// Service drives the poll loop and exposes the manual trigger and
// inspection endpoints.
type Service struct {
	watcher Cycler
	store   FeedStates
	synth   FeedRenderer
	logger  *log.Logger
	cfg     config.Config

	mu      sync.RWMutex
	feedSet config.FeedSet
}

func New(watcher Cycler, st FeedStates, synth FeedRenderer, logger *log.Logger, cfg config.Config, feedSet config.FeedSet) *Service {
	return &Service{
		watcher: watcher,
		store:   st,
		synth:   synth,
		logger:  logger,
		cfg:     cfg,
		feedSet: feedSet,
	}
}

// Run starts the HTTP server and the polling loop, blocking until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.feedsHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/watch-rss-feeds", s.watchHandler)
	mux.HandleFunc("/add-to-db", s.addFeedHandler)
	mux.HandleFunc("/refresh-feeds-db", s.refreshHandler)
	mux.HandleFunc("/feeds/custom/", s.customFeedHandler)

	srv := &http.Server{
		Addr:    s.cfg.BindAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		s.logger.Printf("HTTP server listening on %s", s.cfg.BindAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("http server error: %v", err)
		}
	}()

	go s.watchConfigFile(ctx)

	// Kick off an initial cycle.
	s.runCycle(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Println("stopping service, context cancelled")
			return nil
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	set := s.currentFeedSet()
	err := s.watcher.RunCycle(ctx, set.Sources(), set.Interests)
	switch {
	case errors.Is(err, watch.ErrCycleInFlight):
		// A skipped trigger must not re-fetch the scraped pages either.
		s.logger.Println("watch cycle already running, skipping trigger")
		return err
	case err != nil:
		s.logger.Printf("watch cycle failed: %v", err)
	}
	s.synth.Refresh(ctx, set.Scraped)
	return err
}

func (s *Service) currentFeedSet() config.FeedSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feedSet
}

// watchConfigFile hot-reloads the feed set whenever the YAML file changes.
// The new set takes effect on the next cycle.
func (s *Service) watchConfigFile(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Printf("config watcher unavailable: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(s.cfg.ConfigFile); err != nil {
		s.logger.Printf("cannot watch %s: %v", s.cfg.ConfigFile, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			set, err := config.LoadFeedSet(s.cfg.ConfigFile)
			if err != nil {
				s.logger.Printf("reload feed config failed: %v", err)
				continue
			}
			s.mu.Lock()
			s.feedSet = set
			s.mu.Unlock()
			s.logger.Printf("reloaded feed config: %d feeds, %d scraped", len(set.Feeds), len(set.Scraped))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Printf("config watcher error: %v", err)
		}
	}
}

func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// feedsHandler lists all stored feed states, most recently updated first.
func (s *Service) feedsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	states, err := s.store.LoadAll(r.Context())
	if err != nil {
		s.logger.Printf("list feed states failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if states == nil {
		states = []store.FeedState{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(states); err != nil {
		s.logger.Printf("write feed states response failed: %v", err)
	}
}

// watchHandler triggers a full cycle. Per-feed failures are logged, not
// surfaced; only structural failures make the request fail.
func (s *Service) watchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	err := s.runCycle(r.Context())
	switch {
	case errors.Is(err, watch.ErrCycleInFlight):
		http.Error(w, "a watch cycle is already running", http.StatusConflict)
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		_, _ = w.Write([]byte("RSS feeds watched"))
	}
}

// addFeedHandler runs the detection pipeline for one feed synchronously.
func (s *Service) addFeedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Feed feed.Source `json:"feed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "invalid request body")
		return
	}
	if body.Feed.Key() == "" {
		writeStatus(w, http.StatusBadRequest, "error", "feed url is required")
		return
	}

	if err := s.watcher.ProcessOne(r.Context(), body.Feed, s.currentFeedSet().Interests); err != nil {
		s.logger.Printf("add feed %s failed: %v", body.Feed.Key(), err)
		writeStatus(w, http.StatusInternalServerError, "error", err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "success", "Feed added to db")
}

// refreshHandler atomically replaces all stored feed states, for seeding
// and migration.
func (s *Service) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Feeds []store.FeedState `json:"feeds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.store.ReplaceAll(r.Context(), body.Feeds); err != nil {
		s.logger.Printf("refresh feed states failed: %v", err)
		http.Error(w, "error adding feeds to db", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte("Feeds added to db"))
}

// customFeedHandler serves the synthesized RSS for a scraped source.
func (s *Service) customFeedHandler(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/feeds/custom/")
	name = strings.TrimSuffix(name, ".xml")
	rss, ok := s.synth.Feed(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	_, _ = w.Write([]byte(rss))
}

func writeStatus(w http.ResponseWriter, code int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  status,
		"message": message,
	})
}
