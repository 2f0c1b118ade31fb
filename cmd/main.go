package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fathima-sithara/chat-sync/internal/api"
	"github.com/fathima-sithara/chat-sync/internal/auth"
	"github.com/fathima-sithara/chat-sync/internal/cache"
	"github.com/fathima-sithara/chat-sync/internal/chat"
	cfgpkg "github.com/fathima-sithara/chat-sync/internal/config"
	"github.com/fathima-sithara/chat-sync/internal/events"
	"github.com/fathima-sithara/chat-sync/internal/logger"
	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/query"
	"github.com/fathima-sithara/chat-sync/internal/session"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := cfgpkg.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.App.EnablePrometheus {
		metrics.Init()
	}

	ctx := context.Background()

	mc, err := store.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		zlog.Fatalw("mongo init", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	db := mc.Database(cfg.Mongo.Database)

	presence, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	if err != nil {
		zlog.Fatalw("redis init", "err", err)
	}
	defer presence.Close()

	producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageSent)
	defer func() { _ = producer.Close() }()

	roomEvents, err := events.NewPublisher(cfg.Nats.URL)
	if err != nil {
		zlog.Fatalw("nats init", "err", err)
	}
	defer roomEvents.Close()

	st := store.NewMongoStore(db, zlog)
	qry := query.NewLayer(st, zlog)
	chatSvc := chat.NewService(st, qry, producer, roomEvents, zlog)

	tokens := auth.NewTokenManager(cfg.App.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	provider := auth.NewLocalProvider(db.Collection(cfg.Mongo.CredentialsCollection), presence.Cli, tokens, zlog)

	bridge := session.NewBridge(provider, chatSvc, qry, zlog)
	stopBridge := bridge.Start()
	defer stopBridge()

	srv := api.NewServer(cfg, zlog, st, qry, chatSvc, provider, tokens, presence)
	go func() {
		if err := srv.Listen(); err != nil {
			zlog.Fatalw("server listen", "err", err)
		}
	}()
	zlog.Infow("chat-sync started", "port", cfg.App.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Errorw("server shutdown", "err", err)
	}
	zlog.Infow("chat-sync stopped")
}
