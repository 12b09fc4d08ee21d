package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timetravel/internal/auth"
	"timetravel/internal/capsule"
	"timetravel/internal/config"
	"timetravel/internal/db"
	httpx "timetravel/internal/http"
	"timetravel/internal/jobs"
	"timetravel/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s3, err := storage.NewS3Storage(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	if err != nil {
		log.Fatal(err)
	}
	var blobs storage.Blobs = s3
	if cfg.RedisURL != "" {
		rdb := storage.NewRedis(cfg.RedisURL)
		defer rdb.Close()
		blobs = &storage.URLCache{Blobs: s3, Redis: rdb}
	}

	jobsRepo := &jobs.Repo{DB: gdb}
	capsuleRepo := &capsule.Repo{DB: gdb}

	capsules := &capsule.Service{
		Store:        capsuleRepo,
		Blobs:        blobs,
		Cleanup:      jobsRepo,
		SignedURLTTL: cfg.SignedURLTTL,
		Now:          func() time.Time { return time.Now().In(cfg.Location) },
	}

	sessions := &auth.Sessions{
		DB:         gdb,
		JWT:        auth.NewJWT(cfg.JWTSecret, cfg.AccessTokenTTL),
		RefreshTTL: cfg.RefreshTokenTTL,
	}
	janitor := &auth.Janitor{Sweeper: sessions, Interval: time.Hour}
	janitor.Start()

	// worker
	worker := &jobs.Worker{ID: cfg.WorkerID, Queue: jobsRepo, Capsules: capsuleRepo, Blobs: blobs}
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(cfg, gdb, sessions, capsules),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v\n", err)
	}

	cancel()
	janitor.Stop()
	<-workerDone
}
