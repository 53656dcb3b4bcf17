package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/officeshinyujun/sien/internal/auth"
	"github.com/officeshinyujun/sien/internal/avatar"
	"github.com/officeshinyujun/sien/internal/config"
	"github.com/officeshinyujun/sien/internal/eventbus"
	"github.com/officeshinyujun/sien/internal/httpapi"
	"github.com/officeshinyujun/sien/internal/hub"
	"github.com/officeshinyujun/sien/internal/logging"
	"github.com/officeshinyujun/sien/internal/realtime"
	"github.com/officeshinyujun/sien/internal/store"
	"github.com/officeshinyujun/sien/internal/store/migrations"
)

func main() {
	configPath := flag.String("config", "", "path to config file (json or yaml)")
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.MigrateOnUp {
		if err := migrations.Up(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnTimeout)
	defer cancel()

	st, err := store.NewPostgres(connectCtx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	authService := auth.NewService(redisClient, st, cfg.Auth.TokenTTL)
	avatars := avatar.NewGenerator(cfg.Avatar.Dir, cfg.Avatar.PublicDir)

	bus := eventbus.NewInMemoryBus(1024, logger)
	bus.Start(ctx)
	defer bus.Stop()

	roomHub := hub.New(logger, hub.Options{SendTimeout: cfg.Hub.SendTimeout})

	dispatcher := realtime.NewDispatcher(roomHub, logger)
	dispatcher.Attach(bus)
	defer dispatcher.Detach()

	notifier := realtime.NewNotifier(bus, logger)
	rtHandler := realtime.NewHandler(roomHub, authService, bus, logger, cfg.Hub.SendBuffer)

	api := httpapi.NewServer(st, authService, avatars, notifier, logger)
	router := api.Router(rtHandler.ServeWS, cfg.Server.StaticDir, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
