package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"podcast-player/internal/catalog"
	"podcast-player/internal/config"
	"podcast-player/internal/logging"
	"podcast-player/internal/server"
	"podcast-player/internal/views"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the episode pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logCfg := config.ResolveLogging()
			logger, err := logging.New(cmd.ErrOrStderr(), logCfg.Level, logCfg.Format)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, logger)
		},
	}
}

func serve(ctx context.Context, logger *logrus.Logger) error {
	listenAddr := config.ListenAddr()
	if err := config.ValidateListenAddr(listenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}

	siteConfig, err := config.ResolveSiteMetadata()
	if err != nil {
		return fmt.Errorf("resolve site metadata: %w", err)
	}

	templateDir, live, err := config.ResolveTemplateDir()
	if err != nil {
		return fmt.Errorf("resolve template dir: %w", err)
	}

	var renderer *views.Renderer
	if live {
		renderer, err = views.NewLiveRenderer(templateDir, config.RefreshDebounce(), logger)
	} else {
		renderer, err = views.NewRenderer(logger)
	}
	if err != nil {
		return fmt.Errorf("initialise templates: %w", err)
	}
	defer func() {
		if err := renderer.Close(); err != nil {
			logger.WithError(err).Warn("error closing template watcher")
		}
	}()

	episodes := catalog.Default()

	site := views.Site{
		Title:       siteConfig.Title,
		Description: siteConfig.Description,
		Language:    siteConfig.Language,
		Author:      siteConfig.Author,
	}

	handler := server.New(episodes, renderer, site, logger)
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("graceful shutdown error")
		}
	}()

	logger.WithFields(logrus.Fields{
		"addr":     listenAddr,
		"episodes": episodes.Len(),
	}).Info("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
