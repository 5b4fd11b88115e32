package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hurxxxx/trailtag-sub001/internal/checkin"
	"github.com/hurxxxx/trailtag-sub001/internal/config"
	"github.com/hurxxxx/trailtag-sub001/internal/db"
	internalhttp "github.com/hurxxxx/trailtag-sub001/internal/http"
	"github.com/hurxxxx/trailtag-sub001/internal/jobs"
	"github.com/hurxxxx/trailtag-sub001/internal/qrtoken"
	"github.com/hurxxxx/trailtag-sub001/internal/relationship"
	"github.com/hurxxxx/trailtag-sub001/internal/repository"
	"github.com/hurxxxx/trailtag-sub001/internal/session"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatalf("migrate failed: %v", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
	}

	store := repository.NewStore(pool)
	sessions := session.NewManager(store, cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL)
	codec := qrtoken.Codec{Scheme: cfg.QRScheme}
	tokens := qrtoken.NewManager(store, codec)

	var guard checkin.Guard
	if redisClient != nil {
		guard = checkin.NewRedisGuard(redisClient, cfg.CheckInDebounce)
	}
	validator := checkin.NewValidator(store, tokens, codec, guard, cfg.QRTokenMaxAge, cfg.CheckInDebounce)
	graph := relationship.NewGraph(store)

	jobs.StartSessionSweepJob(ctx, cfg.SessionSweepEvery, sessions)

	server := internalhttp.NewServer(cfg, store, sessions, tokens, validator, graph)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("trailtag http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
