package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/auth"
	"github.com/MarcoPoloResearchLab/proofing/internal/server"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	tokenIssuer   = "proofing-api"
	tokenAudience = "proofing-gallery"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the gallery HTTP API",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *clientRuntime) error {
			return runServer(cmd.Context(), rt)
		}),
	}
}

func runServer(ctx context.Context, rt *clientRuntime) error {
	appConfig := rt.config
	if err := appConfig.ValidateServer(); err != nil {
		return err
	}
	catalogService, err := rt.requireCatalog()
	if err != nil {
		return err
	}
	logger := rt.logger

	tokens, err := auth.NewAccessTokenIssuer(auth.AccessTokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	var storageFS afero.Fs
	if rt.fsStore != nil {
		storageFS = rt.fsStore.Filesystem()
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:        catalogService,
		Favorites:      rt.favorites,
		Selection:      rt.selection,
		Identity:       rt.identity,
		EmailSettings:  rt.settings,
		Tokens:         tokens,
		Realtime:       rt.realtime,
		Metrics:        rt.metrics.Handler(),
		StorageFS:      storageFS,
		AllowedOrigins: appConfig.HTTPAllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.Bool("remote_configured", appConfig.RemoteConfigured()),
			zap.String("storage_driver", appConfig.StorageDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
