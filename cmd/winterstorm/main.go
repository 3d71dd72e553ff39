package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"winterstorm/internal/backend"
	"winterstorm/internal/cli"
	"winterstorm/internal/config"
	apphttp "winterstorm/internal/http"
	applog "winterstorm/internal/log"
	"winterstorm/internal/metrics"
	"winterstorm/internal/payoff"
	"winterstorm/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize export backend",
			applog.FieldError, err.Error(),
			"backend", cfg.ExportBackend)
		os.Exit(1)
	}

	m := metrics.New()
	plans := services.NewPlanService(payoff.New(cfg.MaxSimulationMonths), res.Exporter, res.Type.String(), m, logger)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Plans:          plans,
		Metrics:        m,
		Logger:         logger,
		Ready:          res.Ready,
		SessionTTL:     cfg.SessionTTL,
		RateLimitRPM:   cfg.RateLimitRPM,
		AllowedOrigins: allowedOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", applog.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err.Error())
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err.Error())
		}
	})

	logger.Info("Starting winterstorm server",
		"port", cfg.Port,
		"backend", res.Type.String(),
		"max_months", plans.MaxMonths())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// allowedOrigins splits a comma separated origin list for the JSON API.
func allowedOrigins(v string) []string {
	var out []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
