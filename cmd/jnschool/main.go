package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/vickym250/jnschool/internal/cache"
	"github.com/vickym250/jnschool/internal/cli"
	"github.com/vickym250/jnschool/internal/core"
	apphttp "github.com/vickym250/jnschool/internal/http"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/metrics"
	"github.com/vickym250/jnschool/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	policy, err := cfg.Policy()
	if err != nil {
		logger.Error("Invalid overpayment policy", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()

	m := metrics.New()

	studentCache := cache.NewLRUCache[core.Student](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager()
	caches.Register(studentCache)
	caches.StartCleanup(cfg.CacheTTL)
	defer caches.Stop()

	opts := services.Options{Metrics: m}
	if client := cli.ConnectAMQP(logger, cfg, false); client != nil {
		defer client.Close()
		opts.Events = client
	}

	st := be.Store
	var readerCache cache.Cache[core.Student]
	if cfg.CacheSize > 0 {
		readerCache = studentCache
	}
	reader := services.NewStudentReader(st, readerCache)
	registry := services.NewRegistry(st, st)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Admission:          services.NewAdmissionService(st, registry, reader, policy, opts),
		Fees:               services.NewFeeService(st, reader, opts),
		Registry:           registry,
		Policy:             policy,
		Logger:             logger,
		Metrics:            m,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Ready:              be.Ready,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting jnschool server",
		"port", cfg.Port, "backend", cfg.DataBackend, "overpayment_policy", policy.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
