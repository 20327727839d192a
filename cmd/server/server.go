package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ventureforge/pipeline-server/internal/config"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/crontab"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/logger"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/metrics"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver"
)

type Application struct {
	httpServer *httpserver.HTTPServer
	crontab    *crontab.Crontab
	config     *config.Config
	logger     zerolog.Logger
}

func (application *Application) Start() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		err := application.serveMetrics(ctx)
		if err != nil {
			cancel()
		}
		return err
	})
	eg.Go(func() error {
		err := application.crontab.Run(ctx)
		if err != nil {
			cancel()
		}
		return err
	})
	eg.Go(func() error {
		err := application.httpServer.Run()
		if err != nil {
			cancel()
		}
		return err
	})

	return eg.Wait()
}

func (application *Application) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", application.config.MetricsPort),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func main() {
	// Local development convenience; deployments set real env vars.
	_ = godotenv.Load()

	log := logger.GetLogger()

	application, err := CreateApplication()
	if err != nil {
		log.Fatal().Err(err).Msg("create application")
	}

	application.logger.Info().
		Int("http_port", application.config.HTTPPort).
		Int("metrics_port", application.config.MetricsPort).
		Str("environment", application.config.Environment).
		Msg("starting pipeline-api")

	if err := application.Start(); err != nil {
		application.logger.Fatal().Err(err).Msg("server exited")
	}
}
