package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/MarcoPoloResearchLab/proofing/internal/blobstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/catalog"
	"github.com/MarcoPoloResearchLab/proofing/internal/config"
	"github.com/MarcoPoloResearchLab/proofing/internal/database"
	"github.com/MarcoPoloResearchLab/proofing/internal/emails"
	"github.com/MarcoPoloResearchLab/proofing/internal/favorites"
	"github.com/MarcoPoloResearchLab/proofing/internal/identity"
	"github.com/MarcoPoloResearchLab/proofing/internal/localstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/logging"
	"github.com/MarcoPoloResearchLab/proofing/internal/metrics"
	"github.com/MarcoPoloResearchLab/proofing/internal/recordstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/selection"
	"github.com/MarcoPoloResearchLab/proofing/internal/server"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errCatalogUnavailable = errors.New("the gallery catalog lives in the shared store; set database.dsn")

// clientRuntime holds every service of this device, wired from configuration.
type clientRuntime struct {
	config    config.AppConfig
	logger    *zap.Logger
	local     *localstore.Store
	db        *gorm.DB
	records   recordstore.Store
	fsStore   *blobstore.FSStore
	gcsClient *storage.Client
	blobs     blobstore.Store
	identity  *identity.Provider
	metrics   *metrics.Recorder
	realtime  *server.RealtimeDispatcher
	catalog   *catalog.Service
	favorites *favorites.Service
	settings  *emails.SettingsStore
	selection *selection.Service
}

func newClientRuntime(ctx context.Context) (*clientRuntime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	rt := &clientRuntime{
		config:   appConfig,
		logger:   logger,
		metrics:  metrics.NewRecorder(),
		realtime: server.NewRealtimeDispatcher(),
	}
	if err := rt.wire(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *clientRuntime) wire(ctx context.Context) error {
	local, err := localstore.Open(rt.config.LocalPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	rt.local = local
	rt.identity = identity.NewProvider(identity.Config{Store: local, Logger: rt.logger})

	if rt.config.RemoteConfigured() {
		db, err := database.Open(rt.config.DatabaseDSN, rt.logger)
		if err != nil {
			// Favorites keep working from the local store; the catalog reports unavailable.
			rt.logger.Warn("shared store unreachable; continuing on device-local data",
				zap.String("reason", "transport_unavailable"), zap.Error(err))
		}
		rt.db = db
		rt.records = recordstore.NewGormStore(db)
	}

	switch rt.config.StorageDriver {
	case config.StorageDriverGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		rt.gcsClient = client
		rt.blobs = blobstore.NewGCSStore(client)
	default:
		rt.fsStore = blobstore.NewFSStore(afero.NewOsFs(), rt.config.StorageRoot, rt.config.StoragePublicBaseURL)
		rt.blobs = rt.fsStore
	}

	if rt.records != nil {
		catalogService, err := catalog.NewService(catalog.ServiceConfig{
			Records: rt.records,
			Blobs:   rt.blobs,
			Bucket:  rt.config.PhotosBucket,
			Clock:   time.Now,
			Logger:  rt.logger,
		})
		if err != nil {
			return err
		}
		rt.catalog = catalogService
	}

	favoritesService, err := favorites.NewService(favorites.ServiceConfig{
		Remote:    rt.records,
		Local:     local,
		Identity:  rt.identity,
		Migration: &favorites.MigrationState{},
		Clock:     time.Now,
		Logger:    rt.logger,
		Events:    rt.realtime,
		Metrics:   rt.metrics,
	})
	if err != nil {
		return err
	}
	rt.favorites = favoritesService

	rt.settings = emails.NewSettingsStore(local, emails.Settings{
		Enabled:             rt.config.EmailEnabled,
		PhotographerAddress: rt.config.PhotographerAddress,
	})

	var mailer emails.Transport
	if rt.config.SendGridAPIKey != "" {
		transport, err := emails.NewSendGridTransport(rt.config.SendGridAPIKey, rt.config.EmailFromName, rt.config.EmailFromAddress)
		if err != nil {
			return err
		}
		mailer = transport
	}

	var catalogReader selection.CatalogReader
	if rt.catalog != nil {
		catalogReader = rt.catalog
	}
	selectionService, err := selection.NewService(selection.ServiceConfig{
		Catalog:    catalogReader,
		Selections: favoritesService,
		Sessions:   rt.identity,
		Blobs:      rt.blobs,
		Bucket:     rt.config.PhotosBucket,
		Mailer:     mailer,
		Settings:   rt.settings,
		AppBaseURL: rt.config.AppBaseURL,
		Clock:      time.Now,
		Logger:     rt.logger,
		Metrics:    rt.metrics,
	})
	if err != nil {
		return err
	}
	rt.selection = selectionService
	return nil
}

func (rt *clientRuntime) requireCatalog() (*catalog.Service, error) {
	if rt.catalog == nil {
		return nil, errCatalogUnavailable
	}
	return rt.catalog, nil
}

// Close releases every handle the runtime opened.
func (rt *clientRuntime) Close() {
	if rt.gcsClient != nil {
		if err := rt.gcsClient.Close(); err != nil {
			rt.logger.Warn("storage client close failed", zap.Error(err))
		}
	}
	if rt.db != nil {
		if sqlDB, err := rt.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if rt.local != nil {
		if err := rt.local.Close(); err != nil {
			rt.logger.Warn("local store close failed", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}

// withRuntime builds the runtime for one command invocation.
func withRuntime(run func(cmd *cobra.Command, args []string, rt *clientRuntime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := newClientRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		return run(cmd, args, rt)
	}
}
