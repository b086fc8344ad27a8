package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ebsalem/portal/auth"
	"github.com/ebsalem/portal/client"
	"github.com/ebsalem/portal/cognito"
	"github.com/ebsalem/portal/config"
	"github.com/ebsalem/portal/middleware"
	"github.com/ebsalem/portal/session"
	"github.com/ebsalem/portal/storage"
	"github.com/ebsalem/portal/storage/file"
	"github.com/ebsalem/portal/storage/memory"
	"github.com/ebsalem/portal/storage/postgres"
	redisstore "github.com/ebsalem/portal/storage/redis"
	"github.com/ebsalem/portal/tokenstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies holds everything the CLI and the portal server share.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Storage scopes: Local persists across runs, Session lives for the process
	Local   storage.Storage
	Session storage.Storage

	// Identity provider and backend
	Provider   *tokenstore.Provider
	TokenStore *tokenstore.Store
	Client     *client.Client
	Validator  *cognito.Validator

	// Session lifecycle
	Manager *session.Manager

	// Auth
	authHandler    *auth.Handler
	AuthMiddleware *middleware.AuthMiddleware
}

// AuthHandler returns the auth handler for route wiring (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies creates and wires up all dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Session: memory.New(),
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initClient(cfg); err != nil {
		deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize api client: %w", err)
	}

	if err := deps.initSession(cfg); err != nil {
		deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize session manager: %w", err)
	}

	deps.initAuth(cfg)

	logger.Debug("all dependencies initialized",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("api", cfg.API.BaseURL))
	return deps, nil
}

// initStorage opens the local-scope backend selected by STORAGE_DRIVER
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		d.Local = memory.New()

	case config.StorageFile:
		path := cfg.Storage.FilePath
		if path == "" {
			var err error
			if path, err = file.DefaultPath(); err != nil {
				return err
			}
		}
		local, err := file.New(path)
		if err != nil {
			return err
		}
		d.Local = local

	case config.StorageRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}
		local, err := redisstore.New(redisstore.Config{
			Client:    rdb,
			KeyPrefix: cfg.Storage.Redis.KeyPrefix + cfg.Storage.Namespace + ":",
		})
		if err != nil {
			_ = rdb.Close()
			return err
		}
		d.Local = local

	case config.StoragePostgres:
		db, err := postgres.NewDB(ctx, cfg.Storage.Database, d.Logger)
		if err != nil {
			return err
		}
		if err := postgres.InitSchema(ctx, db.DB); err != nil {
			_ = db.Close()
			return err
		}
		d.Local = postgres.NewOwned(db, cfg.Storage.Namespace, d.Logger)

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	d.Logger.Debug("local storage ready", zap.String("driver", cfg.Storage.Driver))
	return nil
}

// initClient builds the hosted UI client, the token store and the backend client
func (d *Dependencies) initClient(cfg *config.Config) error {
	d.Provider = tokenstore.NewProvider(cfg.Cognito, nil)
	d.TokenStore = tokenstore.NewStore(d.Local, d.Provider, d.Logger)

	c, err := client.New(client.Config{
		BaseURL:    cfg.API.BaseURL,
		HealthPath: cfg.API.HealthPath,
		Timeout:    cfg.API.Timeout,
		Tokens:     d.TokenStore,
		Logger:     d.Logger,
	})
	if err != nil {
		return err
	}
	d.Client = c
	return nil
}

// initSession wires the session manager. Signature verification is only
// switched on by COGNITO_VERIFY_SIGNATURES.
func (d *Dependencies) initSession(cfg *config.Config) error {
	opts := session.Options{
		API:              d.Client,
		Tokens:           d.TokenStore,
		Local:            d.Local,
		Session:          d.Session,
		Logger:           d.Logger,
		RefreshThreshold: cfg.Session.RefreshThreshold,
		Navigator: session.NavigatorFunc(func(path string) {
			d.Logger.Debug("navigate", zap.String("path", path))
		}),
	}
	if cfg.Cognito.CognitoConfigured() {
		opts.Provider = d.Provider
	}
	if cfg.Cognito.VerifySignatures {
		d.Validator = cognito.NewValidator(cognito.Config{
			Region:      cfg.Cognito.Region,
			UserPoolID:  cfg.Cognito.UserPoolID,
			ClientID:    cfg.Cognito.ClientID,
			CacheTTL:    time.Hour,
			HTTPTimeout: 10 * time.Second,
		})
		opts.Verifier = d.Validator
	}

	manager, err := session.NewManager(opts)
	if err != nil {
		return err
	}
	d.Manager = manager
	d.AuthMiddleware = middleware.NewAuthMiddleware(manager, d.Logger)
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if !cfg.Cognito.CognitoConfigured() {
		d.Logger.Warn("cognito not configured, login endpoints disabled")
		return
	}
	d.authHandler = auth.NewHandler(d.Provider, d.Manager, cfg.Cognito.RedirectURI, d.Logger)
	d.Logger.Debug("auth handler initialized")
}

func (d *Dependencies) closeStorage() []error {
	var errs []error
	if d.Local != nil {
		if err := d.Local.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close local storage: %w", err))
		}
	}
	if d.Session != nil {
		if err := d.Session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session storage: %w", err))
		}
	}
	return errs
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Debug("shutting down dependencies")

	errs := d.closeStorage()

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
