package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/gymchat/internal/api"
	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/chat"
	"github.com/matheus3301/gymchat/internal/config"
	"github.com/matheus3301/gymchat/internal/identity"
	"github.com/matheus3301/gymchat/internal/lock"
	"github.com/matheus3301/gymchat/internal/logging"
	"github.com/matheus3301/gymchat/internal/netmon"
	"github.com/matheus3301/gymchat/internal/profile"
	"github.com/matheus3301/gymchat/internal/queue"
	"github.com/matheus3301/gymchat/internal/realtime"
	"github.com/matheus3301/gymchat/internal/remote"
	"github.com/matheus3301/gymchat/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideIdentity,
			provideRemote,
			provideFeed,
			provideMonitor,
			provideManager,
			provideChatService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.LoadDaemon(profile.ConfigPath(), profile.EnvPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
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

// provideStore depends on the lock so the database is never opened by a
// second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
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
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", db.Path()))
	return db, nil
}

func provideIdentity(cfg *config.Config, logger *zap.Logger) (*identity.Identity, error) {
	token, err := cfg.AccessToken()
	if err != nil {
		return nil, err
	}
	id, err := identity.FromToken(token)
	if err != nil {
		return nil, err
	}
	if id.Expired(time.Now()) {
		logger.Warn("access token expired; remote calls will be rejected until it is replaced",
			zap.Time("expires_at", id.ExpiresAt))
	}
	logger.Info("session identity", zap.String("user_id", id.UserID))
	return id, nil
}

func provideRemote(cfg *config.Config, id *identity.Identity, logger *zap.Logger) *remote.Client {
	return remote.New(remote.Options{
		URL:            cfg.Supabase.URL,
		AnonKey:        cfg.Supabase.AnonKey,
		AccessToken:    id.Token,
		Timeout:        cfg.Supabase.Timeout.Duration,
		MaxFailures:    cfg.Breaker.MaxFailures,
		BreakerTimeout: cfg.Breaker.Timeout.Duration,
	}, logger)
}

func provideFeed(cfg *config.Config, id *identity.Identity, logger *zap.Logger) (realtime.Feed, error) {
	return realtime.NewPhoenixFeed(realtime.PhoenixOptions{
		URL:         cfg.Supabase.URL,
		AnonKey:     cfg.Supabase.AnonKey,
		AccessToken: id.Token,
		Heartbeat:   cfg.Realtime.HeartbeatInterval.Duration,
	}, logger)
}

func provideMonitor(cfg *config.Config, b *bus.Bus, logger *zap.Logger) (*netmon.Monitor, error) {
	var probe netmon.Source
	ps, err := netmon.NewProbeSource(cfg.Network.ProbeURL, cfg.Network.ProbeInterval.Duration, cfg.Network.ProbeTimeout.Duration)
	switch {
	case err == nil:
		probe = ps
	case errors.Is(err, netmon.ErrUnavailable):
		logger.Info("no connectivity probe configured", zap.String("probe_url", cfg.Network.ProbeURL))
	default:
		return nil, err
	}
	return netmon.NewMonitor(probe, netmon.NewEventSource(true), b, logger), nil
}

func provideManager(cfg *config.Config, id *identity.Identity, rc *remote.Client, feed realtime.Feed, monitor *netmon.Monitor, db *store.DB, b *bus.Bus, logger *zap.Logger) *chat.Manager {
	return chat.NewManager(chat.ManagerConfig{
		Viewer:     id,
		Remote:     rc,
		Feed:       feed,
		Net:        monitor,
		Storage:    db,
		ReadStates: db,
		Queue: queue.Options{
			DrainRate:     cfg.Queue.DrainRate,
			RequeueFailed: cfg.Queue.RequeueFailed,
		},
		Bus:    b,
		Logger: logger,
	})
}

func provideChatService(p Params, mgr *chat.Manager, monitor *netmon.Monitor, b *bus.Bus, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(p.ProfileName, mgr, monitor, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, monitor *netmon.Monitor, mgr *chat.Manager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := monitor.Start(ctx); err != nil {
				return err
			}
			// Conversations outlive the start context.
			mgr.Start(context.Background())
			go func() {
				if _, err := mgr.ResumeQueued(context.Background()); err != nil {
					logger.Warn("resuming queued conversations failed", zap.Error(err))
				}
			}()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			mgr.Stop()
			monitor.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
