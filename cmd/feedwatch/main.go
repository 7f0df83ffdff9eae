package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"feedwatch/internal/classify"
	"feedwatch/internal/config"
	"feedwatch/internal/extract"
	"feedwatch/internal/feed"
	"feedwatch/internal/notify"
	"feedwatch/internal/service"
	"feedwatch/internal/store"
	"feedwatch/internal/synth"
	"feedwatch/internal/watch"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[feedwatch] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OpenAIKey == "" {
		logger.Println("warning: OPENAI_API_KEY is not set, every post will classify as not relevant")
	}
	if cfg.SMTPHost == "" {
		logger.Println("warning: SMTP_HOST is not set, notifications will not be delivered")
	}

	feedSet, err := config.LoadFeedSet(cfg.ConfigFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Printf("warning: %s not found, starting with an empty feed set", cfg.ConfigFile)
		} else {
			logger.Fatalf("failed to load feed config: %v", err)
		}
	}

	st, err := store.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Fatalf("failed to open feed state store: %v", err)
	}
	defer st.Close()

	mailer, err := notify.NewMailer(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to build mailer: %v", err)
	}

	adapter := feed.NewAdapter(logger)
	extractor := extract.NewExtractor(logger)
	classifier := classify.NewClient(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBase, logger)
	generator := synth.NewGenerator(adapter, logger)
	watcher := watch.New(st, adapter, extractor, classifier, mailer, logger)

	svc := service.New(watcher, st, generator, logger, cfg, feedSet)
	if err := svc.Run(ctx); err != nil {
		logger.Fatalf("service stopped with error: %v", err)
	}
}
