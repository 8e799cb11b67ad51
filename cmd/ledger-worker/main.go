package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/vickym250/jnschool/internal/cli"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/metrics"
	"github.com/vickym250/jnschool/internal/sheets"
	gsheet "github.com/vickym250/jnschool/internal/sheets/google"
	memsheet "github.com/vickym250/jnschool/internal/sheets/memory"
	"github.com/vickym250/jnschool/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting ledger-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()

	var register sheets.Register
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		register = client
		logger.Info("Google Sheets register initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		register = memsheet.New()
		logger.Info("No GOOGLE_SPREADSHEET_ID provided, keeping the register in memory")
	}

	amqpClient := cli.ConnectAMQP(logger, cfg, true)
	defer amqpClient.Close()

	m := metrics.New()
	if cfg.WorkerMetricsAddr != "" {
		srv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics listener failed", log.FieldError, err, "addr", cfg.WorkerMetricsAddr)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	w := worker.NewLedgerWorker(be.Store, register, m)
	if err := w.Run(ctx, amqpClient.ConsumeLedgerEvents, cfg.OverviewInterval); err != nil {
		logger.Error("Ledger worker stopped", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Ledger worker stopped gracefully")
}
