package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/digit-api/internal/config"
	"github.com/Brownie44l1/digit-api/internal/digits"
	"github.com/Brownie44l1/digit-api/internal/handlers"
	"github.com/Brownie44l1/digit-api/internal/metrics"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	zerolog.TimeFieldFormat = time.StampMilli
	// Default level is info, unless debug flag is present
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

type classifier interface {
	digits.Classifier
	Close()
}

// loadClassifier runs once at startup; the handle is passed to the handlers.
func loadClassifier(cfg config.Config) (classifier, model.Metadata, error) {
	if cfg.Engine == config.EngineMock {
		mock, err := model.NewMock(cfg.MockDigit)
		if err != nil {
			return nil, model.Metadata{}, err
		}
		log.Warn().Str("component", "CLI_HTTP").Int("digit", cfg.MockDigit).
			Msg("using mock engine, every prediction is the same digit")
		return mock, mock.Metadata, nil
	}

	server, err := model.NewServer(model.Config{
		ModelPath:         cfg.ModelPath,
		MetadataPath:      cfg.MetadataPath,
		SharedLibraryPath: cfg.OnnxLibPath,
	})
	if err != nil {
		return nil, model.Metadata{}, err
	}
	return server, server.Metadata, nil
}

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Str("component", "CLI_HTTP").Msg("invalid configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("component", "CLI_HTTP").Str("engine", cfg.Engine).Str("model", cfg.ModelPath).
		Msg("loading classifier")

	clf, metadata, err := loadClassifier(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("component", "CLI_HTTP").
			Bool("model_unavailable", errors.Is(err, model.ErrModelUnavailable)).
			Msg("classifier failed to load, no prediction is possible")
	}
	defer clf.Close()

	m := metrics.New()
	handler := handlers.NewHandler(clf, metadata, m, cfg.MaxUploadBytes())

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler.Routes(m),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info().Str("component", "CLI_HTTP").Msg("caught signal to terminate, draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("component", "CLI_HTTP").Msg("shutdown did not complete")
		}
	}()

	log.Info().Str("component", "CLI_HTTP").
		Str("listenAddr", srv.Addr).
		Strs("classes", metadata.Classes).
		Msg("Starting listener...")
	log.Info().Str("component", "CLI_HTTP").Msg("endpoints: GET / | GET /health | POST /predict | " +
		"POST /predict/canvas | POST /predict/image | GET /metrics")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Str("component", "CLI_HTTP").Caller().Msg("digit-api has failed to start")
		clf.Close()
		os.Exit(1)
	}
	log.Info().Str("component", "CLI_HTTP").Msg("server stopped")
}
