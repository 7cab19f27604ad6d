package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/cache"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/config"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/publisher"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/server"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/timeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx := context.Background()
	store, err := database.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	opts := []timeline.Option{
		timeline.WithLogger(logger),
		timeline.WithPageSize(cfg.PageSize),
		timeline.WithReactionRetries(cfg.ReactionRetries),
		timeline.WithPropagationWorkers(cfg.PropagationWorkers),
	}

	if cfg.RedisAddr != "" {
		postCache, err := cache.NewRedisPostCache(cfg.RedisAddr, cfg.RedisTTL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer postCache.Close()
		opts = append(opts, timeline.WithCache(postCache))
	}

	var events interface {
		timeline.Publisher
		Close() error
	} = publisher.Noop{}
	if cfg.AMQPURL != "" {
		events, err = publisher.NewRabbitMQPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
	}
	defer events.Close()
	opts = append(opts, timeline.WithPublisher(events))

	svc := timeline.NewService(store, opts...)
	srv := server.NewHTTPServer(cfg, store, svc)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("📝 Press Ctrl+C to stop the server")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Production {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
