// Command server runs the marketplace HTTP API.
//
//	@title						Marketplace API
//	@version					1.0
//	@description				Listings, orders, direct messages and a Telegram support bridge.
//	@BasePath					/api
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/samrith-ratana/e-commerce/internal/config"
	httpapi "github.com/samrith-ratana/e-commerce/internal/http"
	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
	"github.com/samrith-ratana/e-commerce/internal/observability"
	"github.com/samrith-ratana/e-commerce/internal/repo"
	"github.com/samrith-ratana/e-commerce/internal/services"
	"github.com/samrith-ratana/e-commerce/internal/sysutil"
	"github.com/samrith-ratana/e-commerce/internal/telegram"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	cfg := config.MustLoad()

	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	sysutil.SetGinMode(cfg.GinMode)
	middleware.SetupValidator()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	version := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), "dev")
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	for _, dir := range []string{cfg.DataDir, filepath.Dir(cfg.DBPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("create data directory")
		}
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open sqlite")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	store := repo.OpenStore(cfg.DataDir)
	idem := &repo.IdempotencyStore{DB: db, TTL: cfg.IdempotencyTTL}

	deps := httpapi.Deps{
		Auth: services.NewAuthService(store.Users, store.Sessions, services.AuthConfig{
			AccessSecret:  []byte(cfg.Auth.AccessSecret),
			RefreshSecret: []byte(cfg.Auth.RefreshSecret),
			AccessTTL:     cfg.Auth.AccessTTL,
			RefreshTTL:    cfg.Auth.RefreshTTL,
			MaxSessions:   cfg.Auth.MaxSessions,
		}),
		Posts:       services.NewPostService(store.Posts),
		Orders:      services.NewOrderService(store.Orders, store.Posts, store.Users),
		Chats:       services.NewUserChatService(store.UserChats, store.Users),
		Support:     newSupportService(cfg.Support, store),
		Idempotency: idem,
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, idem)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("data_dir", cfg.DataDir).Bool("support", cfg.Support.Enabled()).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
	if shutdownOTel != nil {
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("otel shutdown")
		}
	}
	closeDB(db)
}

// newSupportService builds the support bridge. Without a bot token or chat
// id the channel stays nil and the service reports itself unavailable.
func newSupportService(cfg config.SupportConfig, store *repo.Store) *services.SupportService {
	var ch services.SupportChannel
	if cfg.Enabled() {
		client, err := telegram.New(cfg.BotToken, cfg.APIEndpoint, nil, cfg.HTTPTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("telegram client unavailable, support bridge off")
		} else {
			ch = client
		}
	}
	return services.NewSupportService(store.SupportChats, store.SupportBot, ch, services.SupportConfig{
		ChatID:   cfg.ChatID,
		ThreadID: cfg.ThreadID,
		Brand:    cfg.Brand,
	})
}

func purgeIdempotency(ctx context.Context, idem *repo.IdempotencyStore) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		n, err := idem.PurgeExpired(ctx, time.Now())
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn().Err(err).Msg("purge idempotency records")
		case n > 0:
			log.Debug().Int64("removed", n).Msg("purged idempotency records")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
