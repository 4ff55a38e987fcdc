package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/pvp-chess-server/internal/admin"
	"github.com/park285/pvp-chess-server/internal/archive"
	appcfg "github.com/park285/pvp-chess-server/internal/config"
	"github.com/park285/pvp-chess-server/internal/gateway"
	"github.com/park285/pvp-chess-server/internal/msgcat"
	"github.com/park285/pvp-chess-server/internal/obslog"
	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/room"
	"github.com/park285/pvp-chess-server/internal/store"
	"go.uber.org/zap"
)

type liveStore interface {
	room.Persistence
	Ping(ctx context.Context) error
}

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx := context.Background()

	var st liveStore
	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis_init_error", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		st = store.NewRedis(rdb, cfg.StateTTL())
	} else {
		logger.Warn("redis_disabled", zap.String("reason", "REDIS_URL unset; rooms live in process memory"))
		st = store.NewMemory(cfg.StateTTL())
	}

	games := pvpchess.NewManager(st)

	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive_init_error", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
		if err := repo.Migrate(ctx); err != nil {
			logger.Fatal("archive_migrate_error", zap.Error(err))
		}
		games.AttachResultSink(repo)
	}

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("msgcat_init_error", zap.Error(err))
	}

	gw := gateway.NewServer(gateway.Options{AllowedOrigins: cfg.AllowedOrigins})
	rooms := room.NewManager(st, games, gw, room.Options{
		DisconnectGrace:   cfg.DisconnectGrace(),
		EmptyRoomGrace:    cfg.EmptyRoomGrace(),
		FinishedRoomGrace: cfg.FinishedRoomGrace(),
		AutoCreateOnJoin:  cfg.AutoCreateOnJoin,
		Messages:          msgs,
	})
	gw.Attach(rooms)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server_error", zap.Error(err))
		}
	}()

	var ops *admin.Server
	if cfg.AdminAddr != "" {
		ops = admin.New(rooms, gw.Connections)
		ops.AddCheck("store", st)
		if repo != nil {
			ops.AddCheck("archive", repo)
		}
		go func() {
			if err := ops.ListenAndServe(cfg.AdminAddr); err != nil {
				logger.Error("admin_error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("server_shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	gw.Close()
	rooms.Close()
	if ops != nil {
		_ = ops.Shutdown(shutdownCtx)
	}
}
