// Package app composes the messaging daemon out of its parts.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/auth"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/bus"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/config"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/gateway"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/lock"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/logging"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/profile"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/realtime"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/registry"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/store"
	msgsync "github.com/QuickFix-Capstone/quickfix-messaging/internal/sync"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideTokenSource,
			provideStore,
			provideRegistry,
			provideGateway,
			provideController,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(profile.ConfigPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideTokenSource(cfg *config.Config) auth.TokenSource {
	return auth.FromEnv(cfg.TokenEnv)
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.CachePath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRegistry(token auth.TokenSource, logger *zap.Logger) *registry.Registry {
	return registry.New(realtime.Options{Token: token}, logger)
}

func provideGateway(cfg *config.Config, token auth.TokenSource, logger *zap.Logger) *gateway.Client {
	return gateway.New(gateway.Config{
		BaseURLs: cfg.RESTBaseURLs,
		Token:    token,
	}, logger)
}

func provideController(cfg *config.Config, reg *registry.Registry, gw *gateway.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *msgsync.Controller {
	client := reg.Acquire(cfg.RealtimeURL, cfg.Identity)
	return msgsync.New(client, gw, db, b, msgsync.Options{SelfID: cfg.Identity}, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, ctrl *msgsync.Controller, reg *registry.Registry, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ctrl.Start(context.Background())
			logger.Info("controller started", zap.String("identity", cfg.Identity))
			return nil
		},
		OnStop: func(_ context.Context) error {
			ctrl.Stop()
			reg.Release(cfg.RealtimeURL, cfg.Identity)
			reg.CloseAll()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
