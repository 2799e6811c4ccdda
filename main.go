package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/mealie-backup/internal/api"
	"github.com/isdelr/mealie-backup/internal/config"
	"github.com/isdelr/mealie-backup/internal/database"
	"github.com/isdelr/mealie-backup/internal/logger"
	"github.com/isdelr/mealie-backup/internal/mealie"
	"github.com/isdelr/mealie-backup/internal/monitoring"
	"github.com/isdelr/mealie-backup/internal/services"
	"github.com/isdelr/mealie-backup/internal/websocket"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}

	closer, err := logger.Init(cfg.LogLevel, cfg.LogLocation)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize logging")
		return 1
	}
	defer closer.Close()

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to initialize database")
		return 1
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Error().Err(err).Msg("Failed to apply database migrations")
		return 1
	}

	// The hub only exists when something can subscribe to it.
	var hub *websocket.Hub
	var publisher services.Publisher
	if cfg.Daemon() && cfg.StatusPort > 0 {
		hub = websocket.NewHub()
		go hub.Run()
		defer hub.Stop()
		publisher = hub
	}

	// Set up services
	eventService := services.NewEventService(db, publisher)
	client := mealie.NewClient(mealie.Options{
		BaseURL:     cfg.APIURL,
		APIKey:      cfg.APIKey,
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		LogRequests: cfg.LogLevel == "debug",
	})
	backupService := services.NewBackupService(client, eventService, services.BackupOptions{
		MaxServerBackups:     cfg.MaxServerBackups,
		MaxLocalBackups:      cfg.MaxLocalBackups,
		LocalBackupsLocation: cfg.LocalBackupsLocation,
		Locale:               cfg.AcceptLanguage,
	})

	if !cfg.Daemon() {
		return runOnce(backupService)
	}
	return runDaemon(cfg, hub, eventService, backupService)
}

func runOnce(backupService services.BackupServiceProvider) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := backupService.Run(ctx)
	if err != nil {
		return 1
	}
	log.Info().
		Str("backup", summary.Backup).
		Str("size", humanize.Bytes(uint64(summary.Bytes))).
		Str("server_deleted", summary.ServerDeleted).
		Int("local_deleted", len(summary.LocalDeleted)).
		Msg("Backup complete")
	return 0
}

func runDaemon(cfg *config.Config, hub *websocket.Hub, eventService services.EventServiceProvider, backupService services.BackupServiceProvider) int {
	scheduler, err := monitoring.NewScheduler(backupService, cfg.Schedule, cfg.RunOnStart)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create scheduler")
		return 1
	}
	go scheduler.Run()

	statUpdater := monitoring.NewStatUpdater(cfg.LocalBackupsLocation, eventService)
	go statUpdater.Run()

	var srv *http.Server
	if hub != nil {
		srv = &http.Server{
			Addr:              cfg.StatusAddr(),
			Handler:           api.NewRouter(hub, eventService),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("Status server starting")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status server stopped")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down...")

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Status server forced to shutdown")
		}
	}
	statUpdater.Stop()
	scheduler.Stop()

	log.Info().Msg("Exiting")
	return 0
}
