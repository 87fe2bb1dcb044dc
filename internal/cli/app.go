package cli

import (
	"context"
	"errors"
	"fmt"

	"efinance/internal/amqp"
	"efinance/internal/api"
	"efinance/internal/backend"
	"efinance/internal/cache"
	"efinance/internal/config"
	"efinance/internal/core"
	"efinance/internal/credentials"
	"efinance/internal/log"
	"efinance/internal/services"
)

// App holds the wired dependencies of one command invocation.
type App struct {
	Config       *config.Config
	Logger       *log.Logger
	Session      *credentials.Session
	Client       *api.Client
	Events       *amqp.Client // nil unless AMQP_URL is set
	Auth         *services.AuthService
	Categories   *services.CategoryService
	Transactions *services.TransactionService

	store *backend.StoreResult
}

// Bootstrap opens the configured credential store and builds the client and
// services on top of it. The optional AMQP publisher is skipped with a
// warning when the broker is unreachable.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	storeCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := backend.NewFactory(logger.Logger).CreateStore(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Session: credentials.NewSession(store.Storage),
		store:   store,
	}

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		events, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without session events", log.FieldError, err)
		} else {
			app.Events = events
			publisher = events
		}
	}

	app.Client = api.New(cfg.APIBaseURL, app.Session,
		api.WithHTTPClient(newHTTPClient(cfg.HTTPTimeout)),
		api.WithLogger(logger.WithComponent(log.ComponentAPI).Logger),
		api.WithUnauthenticatedHandler(sessionEnded(logger, publisher,
			services.SessionListenerFunc(func(ctx context.Context) { app.Categories.SessionChanged(ctx) }))),
	)

	app.Auth = services.NewAuthService(app.Client, app.Session, publisher)
	app.Categories = services.NewCategoryService(app.Client,
		cache.NewLRUCache[core.Page[core.Category]](cfg.CategoryCacheSize, cfg.CategoryCacheTTL))
	app.Auth.OnSessionChange(app.Categories)
	app.Transactions = services.NewTransactionService(app.Client)
	return app, nil
}

// Close releases the event publisher and the credential store.
func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// sessionEnded logs every terminal 401, notifies listeners and publishes an
// expired event when a session existed before it ended.
func sessionEnded(logger *log.Logger, publisher services.EventPublisher, listeners ...services.SessionListener) api.UnauthenticatedHandler {
	return func(ctx context.Context, err *api.AuthError) {
		logger.InfoContext(ctx, "credentials cleared", log.FieldReason, string(err.Reason))
		for _, l := range listeners {
			l.SessionChanged(ctx)
		}
		if publisher == nil || err.Reason == api.ReasonNoRefreshToken {
			return
		}
		if pubErr := publisher.PublishSessionEvent(context.WithoutCancel(ctx), core.SessionExpired, ""); pubErr != nil {
			logger.WarnContext(ctx, "failed to publish session event",
				log.FieldEventKind, string(core.SessionExpired), log.FieldError, pubErr)
		}
	}
}

func describeStore(cfg *config.Config) string {
	switch cfg.CredentialStore {
	case config.StoreFile:
		return fmt.Sprintf("file (%s)", cfg.CredentialFile)
	case config.StoreSQLite:
		return fmt.Sprintf("sqlite (%s)", cfg.SQLiteDBPath)
	case config.StoreRedis:
		return fmt.Sprintf("redis (%s, key %s)", cfg.RedisAddr, cfg.RedisKey)
	default:
		return cfg.CredentialStore
	}
}

// StoreDescription names the credential store in use, for status output.
func (a *App) StoreDescription() string {
	return describeStore(a.Config)
}
