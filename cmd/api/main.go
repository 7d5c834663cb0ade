package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fruitlog/api/internal/app"
	"fruitlog/api/internal/archive"
	"fruitlog/api/internal/blob"
	"fruitlog/api/internal/catstore"
	"fruitlog/api/internal/config"
	"fruitlog/api/internal/email"
	"fruitlog/api/internal/importer"
	"fruitlog/api/internal/session"
	"fruitlog/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	sessionStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer sessionStore.Close()

	categories, err := catstore.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("category store failed: %v", err)
	}
	defer categories.Close()
	if categories.Degraded() {
		log.Printf("WARNING: category store running in degraded local mode")
	}

	blobs, err := blob.New(blob.Config{
		Endpoint:      cfg.BlobEndpoint,
		AccessKey:     cfg.BlobAccessKey,
		SecretKey:     cfg.BlobSecretKey,
		Bucket:        cfg.BlobBucket,
		UseSSL:        cfg.BlobUseSSL,
		PublicBaseURL: cfg.BlobPublicBaseURL,
	})
	if err != nil {
		log.Fatalf("object storage failed: %v", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		log.Printf("WARNING: bucket check failed (uploads may fail): %v", err)
	}

	mailer := email.NewService(email.Config{
		WebhookURL: cfg.EmailWebhookURL,
		Timeout:    cfg.WebhookTimeout,
	}, log.Default())
	if !mailer.IsConfigured() {
		log.Printf("email webhook not configured, sends will be simulated")
	}

	importService := importer.NewService(cfg.ImportWebhookURL, cfg.WebhookTimeout, log.Default())

	service := app.New(cfg, app.Deps{
		Store:      dataStore,
		Sessions:   sessionStore,
		Categories: categories,
		Blobs:      blobs,
		Email:      mailer,
		Importer:   importService,
		Archiver:   archive.NewBuilder(http.DefaultClient, log.Default()),
		Logger:     log.Default(),
	})

	// Fan in category changes from other instances.
	subscribeCtx, stopSubscribe := context.WithCancel(ctx)
	defer stopSubscribe()
	go func() {
		if err := categories.Subscribe(subscribeCtx); err != nil && subscribeCtx.Err() == nil {
			log.Printf("category subscription ended: %v", err)
		}
	}()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Fruitlog API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
