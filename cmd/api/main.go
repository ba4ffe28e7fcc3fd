package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"almanac/api/internal/app"
	"almanac/api/internal/config"
	"almanac/api/internal/docstore"
	"almanac/api/internal/email"
	"almanac/api/internal/notify"
	"almanac/api/internal/review"
	"almanac/api/internal/search"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := docstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := docstore.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	store := docstore.NewPostgresStore(db)

	// Search: Meilisearch when configured, always with the docstore scan as
	// fallback so /api/search works on a bare deployment.
	var meili *search.Meili
	if cfg.MeiliURL != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		log.Printf("search: meilisearch enabled at %s", cfg.MeiliURL)
	} else {
		log.Printf("search: meilisearch not configured, using docstore scan")
	}
	searchService := search.NewService(meili, search.NewStoreScan(store))

	// Email is optional; fan-out runs without it.
	var mailer review.Mailer
	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if emailService.IsConfigured() {
		mailer = emailService
		log.Printf("email: notifications enabled from %s", cfg.SMTPFrom)
	} else {
		log.Printf("email: not configured, notification mail disabled")
	}

	audit := review.NewAuditLog(store)
	proposals := review.NewProposalStore(store, audit)
	watchlist := review.NewWatchlistIndex(store, review.MatchPolicy(cfg.WatchScope))
	threads := review.NewThreadParticipants(store)
	fanout := review.NewFanout(store, watchlist, threads, mailer)
	outbox := review.NewOutbox(store)
	notifications := review.NewNotifications(store)

	var channel *notify.Channel
	if cfg.RedisURL != "" {
		channel, err = notify.NewChannel(cfg.RedisURL)
		if err != nil {
			log.Printf("redis: unavailable, continuing without nudges: %v", err)
			channel = nil
		} else {
			defer channel.Close()
		}
	}

	var dispatcher review.Dispatcher
	switch cfg.FanoutMode {
	case "server":
		var signaler review.Signaler
		var wake <-chan struct{}
		if channel != nil {
			signaler = channel
			wake = channel.Listen(ctx)
		}
		dispatcher = review.NewServerDispatcher(signaler)
		worker := review.NewWorker(outbox, fanout, wake, review.WorkerConfig{
			Interval:     cfg.WorkerInterval,
			EventTimeout: cfg.FanoutTimeout,
			BaseBackoff:  cfg.WorkerBackoff,
			MaxAttempts:  cfg.WorkerMaxAttempts,
		})
		go worker.Run(ctx)
		log.Printf("fanout: server mode, worker polling every %s", cfg.WorkerInterval)
	default:
		dispatcher = review.NewClientDispatcher(fanout, outbox, cfg.FanoutTimeout)
		log.Printf("fanout: client mode, timeout %s", cfg.FanoutTimeout)
	}

	service := app.New(cfg, store, proposals, audit, watchlist, notifications, dispatcher, searchService)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("api listening on %s", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
