package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/enviodev/liqo/config"
	"github.com/enviodev/liqo/internal/capture"
	"github.com/enviodev/liqo/internal/export"
	"github.com/enviodev/liqo/internal/indexer"
	"github.com/enviodev/liqo/internal/models"
	"github.com/enviodev/liqo/internal/poller"
	"github.com/enviodev/liqo/internal/server"
	"github.com/enviodev/liqo/internal/store"
	"github.com/enviodev/liqo/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Liqo.Name,
		"version": cfg.Liqo.Version,
	}).Info("starting liqo")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	client := indexer.NewClient(cfg.Upstream.URL, cfg.Upstream.APIKey, cfg.Upstream.Timeout)

	// Seed the snapshot before serving so the first page load does not see
	// an empty table. A failed seed is not fatal; the poller retries.
	var initial []models.LiquidationRecord
	seedCtx, seedCancel := context.WithTimeout(ctx, cfg.Upstream.Timeout)
	if records, err := client.RecentLiquidations(seedCtx, cfg.Poller.Limit); err != nil {
		log.WithComponent("main").WithError(err).Warn("initial liquidation fetch failed")
	} else {
		initial = records
	}
	seedCancel()
	snap := store.NewSnapshotStore(initial)

	var captureDB capture.Store
	if cfg.Capture.Enabled {
		pg, err := capture.NewPostgresStore(ctx, cfg.Capture.DSN)
		if err != nil {
			log.WithError(err).Error("failed to connect to capture database")
			os.Exit(1)
		}
		defer pg.Close()
		captureDB = pg
	} else {
		log.WithComponent("main").Info("email capture disabled; skipping database")
	}

	var archiver export.Archiver
	if cfg.Archive.Enabled {
		s3a, err := export.NewS3Archiver(ctx, export.S3ArchiverConfig{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Prefix:          cfg.Archive.Prefix,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			log.WithError(err).Error("failed to create S3 archiver")
			os.Exit(1)
		}
		archiver = s3a
	} else {
		log.WithComponent("main").Info("S3 archiving disabled; skipping archiver")
	}

	exporter := export.NewService(client, archiver, cfg.Export.DefaultLimit)
	srv := server.NewServer(cfg.Server, cfg.Export, snap, client, exporter, captureDB)

	p := poller.New(poller.Config{
		Interval: cfg.Poller.Interval,
		Limit:    cfg.Poller.Limit,
	}, client, snap, srv.Hub().Broadcast)

	if cfg.Poller.Enabled {
		if err := p.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start poller")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("polling disabled; snapshot is static")
	}

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("api server failed")
		p.Stop()
		os.Exit(1)
	}

	p.Stop()
	log.Info("shutdown complete")
}
