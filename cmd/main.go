package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audio-advisor/pkg/api"
	"audio-advisor/pkg/audio"
	"audio-advisor/pkg/classifier"
	"audio-advisor/pkg/config"
	"audio-advisor/pkg/logging"
	"audio-advisor/pkg/pipeline"
	"audio-advisor/pkg/storage"
	"audio-advisor/pkg/suggestion"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancelOpen := context.WithTimeout(ctx, 10*time.Second)
	store, err := storage.Open(openCtx, cfg.Store)
	cancelOpen()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", "driver", store.Driver(), "err", err)
		}
	}()

	normalizer := audio.NewNormalizer(audio.NewFFmpegConverter(cfg.Pipeline.FFmpegPath), cfg.Pipeline.ConvertedDir)
	genres := classifier.NewClient(cfg.Classifier.BaseURL, cfg.Classifier.APIKey, cfg.Classifier.Model)
	suggester := suggestion.NewClient(cfg.Suggestion.BaseURL, cfg.Suggestion.APIKey, cfg.Suggestion.Model, suggestion.Options{
		MaxTokens:   cfg.Suggestion.MaxTokens,
		Temperature: cfg.Suggestion.Temperature,
	})

	analyzer := pipeline.NewAnalyzer(pipeline.Config{
		UploadDir:      cfg.Pipeline.UploadDir,
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
	}, normalizer, genres, suggester).WithFeatures(audio.ReadFeatures)

	handlers := api.NewHandlers(analyzer, store, api.NewHub(), api.Options{
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
		Development:    cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"address", cfg.Server.Address,
			"environment", cfg.Environment,
			"store", store.Driver(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}
