package main

import (
	"context"
	"expvar"
	"log"
	"runtime"

	"go.uber.org/zap"

	"github.com/pcameron/huddle/internal/infrastructure/configs"
	"github.com/pcameron/huddle/internal/infrastructure/ratelimiter"
	"github.com/pcameron/huddle/internal/infrastructure/repository"
	"github.com/pcameron/huddle/internal/infrastructure/tracing"
	"github.com/pcameron/huddle/internal/infrastructure/ws"
	"github.com/pcameron/huddle/internal/presentation/api"
	"github.com/pcameron/huddle/internal/presentation/handler/chatroom"
	"github.com/pcameron/huddle/internal/presentation/handler/health"
)

const serviceName = "huddle-api"

func main() {
	tracerCfg := tracing.NewDefaultConfig(serviceName)

	sh, err := tracing.InitTracer(tracerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize the tracer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sh(ctx)

	logger := zap.Must(zap.NewProduction()).Sugar()
	defer logger.Sync()

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	roomRepository := repository.NewRoomRepository(cfg.RoomStore.Capacity, cfg.RoomStore.IdleRoomExpiry)

	hub := ws.NewHub(roomRepository)
	go hub.Run()

	chatroomHandler := chatroom.NewHandler(roomRepository, hub)
	healthHandler := health.NewHandler()

	rl := ratelimiter.NewFixedWindowRateLimiter(cfg.RateLimiter.RequestsPerTimeFrame, cfg.RateLimiter.TimeFrame)
	defer rl.Close()

	app := api.NewApplication(*cfg, *chatroomHandler, *healthHandler, logger, rl)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.Mount()
	logger.Fatal(app.Run(mux))
}
