package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/immxrtalbeast/auction_live/internal/api/http"
	"github.com/immxrtalbeast/auction_live/internal/cache"
	"github.com/immxrtalbeast/auction_live/internal/config"
	"github.com/immxrtalbeast/auction_live/internal/repository"
	"github.com/immxrtalbeast/auction_live/internal/service"
	"github.com/immxrtalbeast/auction_live/lib/logger/sl"
	"github.com/immxrtalbeast/auction_live/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	if cfg.Auth.JWTSecret == "" {
		log.Error("jwt secret is empty")
		os.Exit(1)
	}

	repos, err := setupRepositories(cfg.Database)
	if err != nil {
		log.Error("failed to connect database", sl.Err(err))
		os.Exit(1)
	}

	store, err := cache.New(cfg.Cache)
	if err != nil {
		log.Error("failed to connect cache", sl.Err(err))
		os.Exit(1)
	}

	limiter := service.NewRateLimiter(store, cfg.Limits, log)
	presence := service.NewPresenceRegistry(store, cfg.Presence.TTL, log)
	rooms := service.NewRoomManager(log)
	authGate := service.NewAuthGate(repos.users, cfg.Auth.JWTSecret, cfg.Auth.Issuer, log)
	auctions := service.NewAuctionCoordinator(repos.auctions, rooms, limiter, cfg.Auction.MinIncrementFloor, cfg.Auction.CommitRetries, log)
	chat := service.NewChatService(repos.conversations, rooms, limiter, log)

	hub := service.NewHub(service.HubDeps{
		Auth:     authGate,
		Limiter:  limiter,
		Presence: presence,
		Rooms:    rooms,
		Auctions: auctions,
		Chat:     chat,
	}, service.HubConfig{
		IdleTimeout:  cfg.WebSocket.IdleTimeout,
		StoreTimeout: cfg.Store.Timeout,
	}, log)
	hub.SetSignals(service.NewSignalingRelay(repos.conversations, rooms, presence, limiter, hub, cfg.WebRTC.STUNServers, log))

	var housekeeping []func()
	if mem, ok := store.(*cache.MemoryStore); ok {
		housekeeping = append(housekeeping, func() { mem.Purge() })
	}
	reaper, err := service.NewReaper(cfg.WebSocket.SweepInterval, hub, log, housekeeping...)
	if err != nil {
		log.Error("failed to schedule idle sweep", sl.Err(err))
		os.Exit(1)
	}
	reaper.Start()

	connController := httpapi.NewConnectionController(hub, limiter, cfg.WebSocket, cfg.HTTP.AllowedOrigins, log)
	roomController := httpapi.NewRoomController(rooms)

	router := httpapi.SetupRouter(cfg.HTTP.AllowedOrigins, connController, roomController)

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reaper.Stop()
	hub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", sl.Err(err))
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

type repositories struct {
	users         repository.UserRepository
	auctions      repository.AuctionRepository
	conversations repository.ConversationRepository
}

func setupRepositories(cfg config.DatabaseConfig) (*repositories, error) {
	if cfg.Driver == "memory" {
		return &repositories{
			users:         repository.NewInMemoryUserRepository(),
			auctions:      repository.NewInMemoryAuctionRepository(),
			conversations: repository.NewInMemoryConversationRepository(),
		}, nil
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		return nil, err
	}
	return &repositories{
		users:         repository.NewGormUserRepository(db),
		auctions:      repository.NewGormAuctionRepository(db),
		conversations: repository.NewGormConversationRepository(db),
	}, nil
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(repository.Models()...); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
