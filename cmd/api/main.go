package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"promptlib/api/internal/app"
	"promptlib/api/internal/archive"
	"promptlib/api/internal/backup"
	"promptlib/api/internal/config"
	"promptlib/api/internal/livesync"
	"promptlib/api/internal/notify"
	"promptlib/api/internal/search"
	"promptlib/api/internal/seed"
	"promptlib/api/internal/store"
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

	broker, err := notify.NewBroker(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer broker.Close()

	archiveService, err := archive.New(cfg.ArchiveDir)
	if err != nil {
		log.Fatalf("archive init failed: %v", err)
	}

	backupService, err := backup.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("backup storage init failed: %v", err)
	}
	if backupService.Enabled() {
		log.Printf("backups enabled, bucket %s", cfg.MinioBucket)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}
	go searchService.ReindexAllFromPG(ctx)

	state := livesync.NewState()
	seeder := seed.NewBootstrapper(dataStore, state, broker, cfg.SeedFile)
	watcher := livesync.NewWatcher(
		dataStore,
		state,
		broker.Subscribe(ctx, store.CollectionCategories),
		broker.Subscribe(ctx, store.CollectionPrompts),
		seeder.Observe,
	)
	if err := watcher.Start(ctx); err != nil {
		log.Fatalf("initial sync failed: %v", err)
	}
	defer watcher.Close()

	service := app.NewService(dataStore, state, broker, searchService, archiveService, backupService, cfg.HistoryLimit)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: /api/stream holds its connection open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("promptlib API listening on %s", cfg.Addr)
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
