package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"courtbook/internal/api"
	"courtbook/internal/availability"
	"courtbook/internal/booking"
	"courtbook/internal/cache"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/events"
	"courtbook/internal/gateway"
	"courtbook/internal/metrics"
	"courtbook/internal/payment"
	"courtbook/internal/payout"
	"courtbook/internal/sheets"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("COURTBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	platformCommission, err := cfg.PlatformCommission()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid platform commission config")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	availCache := cache.New(rdb, cfg.RedisTTL())

	bus := events.NewEventBus()
	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret, cfg.Gateway.Currency)

	bookingSvc := booking.NewService(db, bus, availCache, availability.NewCalculator(), &logger)
	machine := payment.NewMachine(db, gatewayClient, bus, platformCommission, &logger)
	reconciler := payout.NewReconciler(db, bus, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := payment.NewSweeper(db, cfg.ProcessingTimeout(), cfg.SweepInterval(), &logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	schedulerCfg := payout.DefaultSchedulerConfig()
	if cfg.Payout.Timezone != "" {
		schedulerCfg.Timezone = cfg.Payout.Timezone
	}
	if cfg.Payout.DailyHour > 0 || cfg.Payout.DailyMinute > 0 {
		schedulerCfg.DailyHour = cfg.Payout.DailyHour
		schedulerCfg.DailyMinute = cfg.Payout.DailyMinute
	}
	scheduler, err := payout.NewScheduler(schedulerCfg, reconciler, db, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create payout scheduler")
	}
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	backup := database.NewBackupService(db, database.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		StoragePath:   cfg.Backup.StoragePath,
		IntervalHours: cfg.Backup.IntervalHours,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	go backup.Start(ctx)

	if cfg.Sheets.Enabled {
		sync, err := sheets.NewSyncService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("sheets sync disabled")
		} else {
			subscribeSheetSync(bus, sync, db, &logger)
		}
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Config{
		Port:              cfg.Server.Port,
		APIKey:            cfg.Server.APIKey,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, bookingSvc, machine, reconciler, db, availCache, &logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxShutdown)
	}()

	logger.Info().Msg("courtbook started")
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("API server error")
	}
}

// subscribeSheetSync mirrors captures and settlements into the operator
// spreadsheet off the event bus. A sync failure never blocks the flow that
// produced the event.
func subscribeSheetSync(bus *events.EventBus, sync *sheets.SyncService, db *database.DB, logger *zerolog.Logger) {
	bus.Subscribe(events.TypePaymentCaptured, func(event events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var entry struct {
			ReservationID int64 `json:"reservation_id"`
		}
		if err := json.Unmarshal(event.Payload, &entry); err != nil {
			return err
		}
		// Re-read from the ledger so the sheet reflects committed state.
		entries, err := db.LedgerEntriesForReservation(ctx, entry.ReservationID)
		if err != nil {
			logger.Error().Err(err).Msg("load entries for sheet sync")
			return err
		}
		if err := sync.SyncLedger(ctx, entries); err != nil {
			logger.Error().Err(err).Msg("sheet sync failed")
			return err
		}
		return nil
	})

	bus.Subscribe(events.TypePayoutSettled, func(event events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var batch struct {
			VenueID int64 `json:"venue_id"`
		}
		if err := json.Unmarshal(event.Payload, &batch); err != nil {
			return err
		}
		batches, err := db.ListPayoutBatches(ctx, batch.VenueID)
		if err != nil {
			logger.Error().Err(err).Msg("load batches for sheet sync")
			return err
		}
		if err := sync.SyncPayouts(ctx, batches); err != nil {
			logger.Error().Err(err).Msg("payout sheet sync failed")
			return err
		}
		return nil
	})
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
