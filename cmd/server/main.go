package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/artwork"
	"github.com/fermata-audio/fermata/internal/config"
	"github.com/fermata-audio/fermata/internal/database"
	"github.com/fermata-audio/fermata/internal/handlers"
	"github.com/fermata-audio/fermata/internal/importer"
	"github.com/fermata-audio/fermata/internal/jobs"
	"github.com/fermata-audio/fermata/internal/metadata"
	"github.com/fermata-audio/fermata/internal/scope"
)

var (
	version   = "1.0.0"
	buildTime = "development"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("Starting Fermata - Personal Audio Library Organizer")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	db, err := database.New(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	for _, dir := range []string{cfg.Storage.LibraryPath, cfg.Storage.ArtworkPath, cfg.Storage.TempPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to create directory")
		}
	}

	// Initialize services
	scopes := scope.NewManager(cfg.Importer.MaxOpenFiles)
	extractor := metadata.NewExtractor(scopes)
	artworkStore, err := artwork.New(cfg.Storage.ArtworkPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize artwork store")
	}
	coordinator := importer.NewCoordinator(db, scopes, extractor, artworkStore, cfg.Storage.LibraryPath)

	jobLog := jobs.NewLogger(100)
	worker := jobs.NewWorker(db, coordinator, jobLog, cfg.Importer.WorkerCount)
	worker.Start(context.Background())
	defer worker.Stop()

	retention := 7 * 24 * time.Hour
	if s, err := db.GetSetting(context.Background(), "job_retention_days"); err == nil {
		if days, err := strconv.Atoi(s.Value); err == nil && days > 0 {
			retention = time.Duration(days) * 24 * time.Hour
		}
	}
	janitor := jobs.NewJanitor(db, artworkStore, time.Hour, retention)
	janitor.Start(context.Background())
	defer janitor.Stop()

	h := handlers.New(db, worker, artworkStore, jobLog, cfg.Storage.LibraryPath)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Library bytes and artwork are served straight off disk; entries are
	// addressed by their storage keys, never by original filenames.
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.Storage.LibraryPath))))
	r.Handle("/artwork/*", http.StripPrefix("/artwork/", http.FileServer(http.Dir(cfg.Storage.ArtworkPath))))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/stats", h.GetStats)

		r.Post("/import", h.StartImport)
		r.Get("/imports", h.ListImportRuns)
		r.Get("/imports/{id}", h.GetImportRun)

		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{id}", h.GetJob)

		r.Get("/folders", h.ListFolders)
		r.Get("/folders/{id}", h.GetFolder)
		r.Delete("/folders/{id}", h.DeleteFolder)

		r.Get("/entries", h.ListEntries)
		r.Get("/entries/{id}", h.GetEntry)
		r.Delete("/entries/{id}", h.DeleteEntry)
		r.Post("/entries/{id}/playback", h.UpdatePlayback)

		r.Get("/settings", h.ListSettings)
		r.Post("/settings", h.UpdateSetting)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
