package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/auth"
	"github.com/vovakirdan/marketchat/internal/broker/redis"
	"github.com/vovakirdan/marketchat/internal/config"
	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/media"
	"github.com/vovakirdan/marketchat/internal/service/chat"
	"github.com/vovakirdan/marketchat/internal/service/listings"
	"github.com/vovakirdan/marketchat/internal/service/profiles"
	"github.com/vovakirdan/marketchat/internal/service/wishlist"
	"github.com/vovakirdan/marketchat/internal/store"
	"github.com/vovakirdan/marketchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/marketchat/internal/transport/http"
)

const redisConnectTimeout = 5 * time.Second

// App wires together storage, services, the hub and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	stopServer      func()
	shutdownTimeout time.Duration
	hub             *core.Hub
	fanout          *redis.Fanout
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	storage, err := media.NewLocalStorage(cfg.Media.Dir)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init media storage: %w", err)
	}
	uploader := media.NewUploader(storage, media.Options{
		MaxBytes:    cfg.Media.MaxBytes,
		MaxWidth:    cfg.Media.MaxWidth,
		MaxHeight:   cfg.Media.MaxHeight,
		MaxPixels:   cfg.Media.MaxPixels,
		JPEGQuality: cfg.Media.JPEGQuality,
		URLPrefix:   cfg.Media.URLPrefix,
	})

	var fanout *redis.Fanout
	var hubFanout core.Fanout
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
		fanout, err = redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, logger)
		cancel()
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init redis fanout: %w", err)
		}
		hubFanout = fanout
		logger.Info().Str("redis_addr", cfg.Redis.Addr).Str("channel", cfg.Redis.Channel).Msg("redis fanout enabled")
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
		TTL:      cfg.Auth.TokenTTL,
	}, cfg.Auth.AdminEmails)

	hub := core.NewHub(logger, hubFanout)
	svc := transporthttp.Services{
		Hub:  hub,
		Auth: authService,
		Chat: chat.New(st, hub, chat.Options{
			MaxMessageLength: cfg.Chat.MaxMessageLength,
			HistoryLimit:     cfg.Chat.HistoryLimit,
		}),
		Listings: listings.New(st, uploader, logger),
		Profiles: profiles.New(st, authService, uploader, logger),
		Wishlist: wishlist.New(st),
	}
	server, stopServer := transporthttp.NewServer(svc, cfg, logger)

	return &App{
		server:          server,
		stopServer:      stopServer,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		fanout:          fanout,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the hub and the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		// The hub shares ctx, so open streams are already closing; Shutdown does not
		// wait for hijacked connections.
		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the database and other resources.
func (a *App) cleanup() {
	if a.stopServer != nil {
		a.stopServer()
	}
	if a.fanout != nil {
		if err := a.fanout.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis fanout")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
