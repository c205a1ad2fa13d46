package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"aquaroom/internal/broadcast"
	"aquaroom/internal/config"
	"aquaroom/internal/database/db_client"
	"aquaroom/internal/game"
	"aquaroom/internal/http/http_server"
	"aquaroom/internal/lobby"
	"aquaroom/internal/redis/redis_client"
	"aquaroom/internal/services/profile"
	"aquaroom/internal/services/results"
	"aquaroom/internal/syncresults"
	"aquaroom/internal/ws"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis carries every room channel
	redisClient, err := redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres: user profiles and the result archive
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	// 5. Lobby and games
	bc := broadcast.NewRedisBroadcaster(redisClient)
	profiles := profile.NewPostgresLookup(pgDb)

	presence := lobby.NewPresence(lobby.NewRegistry(), bc, profiles)
	grace := lobby.NewGraceScheduler(presence, cfg.DisconnectGrace)
	defer grace.Stop()

	// finished rounds are queued on Redis and archived in the background
	syncresults.Run(ctx, redisClient, results.NewPostgresStore(pgDb))

	games := game.NewManager(presence, bc, profiles, syncresults.NewStreamStore(redisClient), game.Options{
		StunDuration:   cfg.StunDuration,
		PatternSymbols: cfg.PatternSymbols,
	})
	presence.OnRoomClosed(games.Discard)

	// 6. WebSockets hub + Redis fan-in
	hub := ws.NewHub()
	wsSrv := ws.NewWsServer(hub, redisClient, presence, games, grace, ws.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		InputRate:      cfg.InputRatePerSec,
		InputBurst:     cfg.InputBurst,
	})

	// 7. HTTP + WS server
	httpServer := http_server.NewHttpServer(context.Background(), cfg.HttpServerPort, cfg.AllowedOrigins, wsSrv, presence, games)
	go func() {
		<-ctx.Done()
		Log.Info("shutting down")
		_ = httpServer.Dispose()
	}()
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
