package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/veilchess/veilchess-server/internal/archive"
	"github.com/veilchess/veilchess-server/internal/clock"
	appcfg "github.com/veilchess/veilchess-server/internal/config"
	"github.com/veilchess/veilchess-server/internal/engine"
	"github.com/veilchess/veilchess-server/internal/game"
	"github.com/veilchess/veilchess-server/internal/hub"
	"github.com/veilchess/veilchess-server/internal/matchmaking"
	"github.com/veilchess/veilchess-server/internal/obslog"
	"github.com/veilchess/veilchess-server/internal/room"
	"github.com/veilchess/veilchess-server/internal/rules"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	clk := clockwork.NewRealClock()

	// Matchmaking: Redis when configured, in-process otherwise.
	var queue matchmaking.Queue
	var redisQueue *matchmaking.RedisQueue
	if cfg.RedisURL != "" {
		redisQueue, err = matchmaking.NewRedisQueue(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis matchmaking init error: %v", err)
		}
		queue = redisQueue
	} else {
		obslog.L().Warn("matchmaking_memory_fallback")
		queue = matchmaking.NewMemoryQueue()
	}

	// Archive: Postgres when configured, in-memory otherwise.
	var archiver archive.Archiver
	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		archiver = repo
	} else {
		obslog.L().Warn("archive_memory_fallback")
		archiver = archive.NewMemoryArchive()
	}

	var suggester engine.Suggester
	if cfg.EngineBaseURL != "" {
		suggester = engine.NewClient(cfg.EngineBaseURL, engine.WithTimeout(cfg.EngineTimeout))
	}

	clocks := clock.NewService(clk, nil)

	store := room.NewStore(clk, cfg.MaxRooms, func(r *room.Room) {
		clocks.Detach(r.ID)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := queue.Clear(ctx, r.Variant, r.ID); err != nil {
			obslog.L().Warn("matchmaking_clear_failed", zap.String("room_id", r.ID), zap.Error(err))
		}
	})

	coordinator := hub.NewCoordinator(cfg, clk, store, clocks, queue, rules.New(), archiver, suggester)

	// Watchdog-declared flag falls go through the same terminal path as
	// client-prompted ones.
	clocks.SetOnExpire(func(roomID string, loser game.Color) {
		coordinator.OnClockExpired(roomID, loser)
	})
	clocks.Start()
	defer clocks.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", coordinator.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obslog.L().Fatal("server_failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("server_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if redisQueue != nil {
		_ = redisQueue.Close()
	}
	if repo != nil {
		_ = repo.Close()
	}
}
