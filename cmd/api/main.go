package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/survey-intake/internal/application"
	appsurveys "github.com/bryanwahyu/survey-intake/internal/application/surveys"
	"github.com/bryanwahyu/survey-intake/internal/bootstrap"
	"github.com/bryanwahyu/survey-intake/internal/config"
	"github.com/bryanwahyu/survey-intake/internal/infra/delivery"
	"github.com/bryanwahyu/survey-intake/internal/infra/httpserver"
	"github.com/bryanwahyu/survey-intake/internal/logger"
	"github.com/bryanwahyu/survey-intake/internal/middleware"
)

const version = "2.0.0"

func main() {
	os.Exit(start())
}

// start returns the process exit code so deferred flushes run before exit.
func start() int {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Server.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		return 1
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schema, err := cfg.Survey.Schema()
	if err != nil {
		return err
	}

	// init store
	st, err := bootstrap.OpenStore(cfg, schema, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// init sinks
	sinks, err := bootstrap.BuildSinks(ctx, cfg, schema, log, bootstrap.SinkOptions{IncludeEmail: true})
	if err != nil {
		return err
	}
	defer sinks.Close()

	metrics := middleware.NewMetrics()
	dispatcher := delivery.New(sinks.List, delivery.Options{
		Workers:   cfg.Delivery.Workers,
		QueueSize: cfg.Delivery.QueueSize,
		Timeout:   cfg.Delivery.Timeout,
	}, log, metrics)

	// init service
	svc := &appsurveys.Service{
		Store:      st,
		Schema:     schema,
		Deliveries: dispatcher,
		Clock:      application.SystemClock{},
		Log:        log,
	}

	health := map[string]middleware.HealthChecker{"store": st}
	for name, c := range sinks.Health {
		health[name] = c
	}

	capacity, refill := cfg.Server.RateLimit.Limits()

	// init router
	handler := httpserver.NewRouter(ctx, svc, log, httpserver.Options{
		Version:        version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AdminKeys:      cfg.Server.AdminKeys,
		RateLimit: httpserver.RateLimit{
			Capacity:        capacity,
			RefillPerSecond: refill,
		},
		Metrics:      metrics,
		Health:       health,
		EmailEnabled: cfg.EmailEnabled(),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening",
			zap.String("address", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("survey", schema.Name()),
			zap.Bool("email", cfg.EmailEnabled()),
			zap.Int("sinks", len(sinks.List)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", zap.Error(err))
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Warn("pending deliveries abandoned", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
