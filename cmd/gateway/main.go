package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echogate/internal/api"
	"github.com/lalith-99/echogate/internal/config"
	"github.com/lalith-99/echogate/internal/db"
	"github.com/lalith-99/echogate/internal/middleware"
	"github.com/lalith-99/echogate/internal/observ"
	"github.com/lalith-99/echogate/internal/repository/postgres"
	"github.com/lalith-99/echogate/internal/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ---------------------------------------------------------------
	// 3. Connect to Postgres
	//
	// Background() at startup: there's no parent request or deadline
	// yet — connecting is "take as long as you need". Once running,
	// each operation carries its own context.
	// ---------------------------------------------------------------
	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	// ---------------------------------------------------------------
	// 4. Connect to Redis (cross-instance broadcast relay)
	// ---------------------------------------------------------------
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis connection established", zap.String("addr", redisOpts.Addr))

	// ---------------------------------------------------------------
	// 5. Create repositories
	//
	// Each store gets the same pool (it's goroutine-safe). Assigning
	// into ws.Stores — whose fields are the repository interfaces —
	// proves at compile time that every store satisfies its contract.
	// ---------------------------------------------------------------
	pool := database.Pool()
	stores := ws.Stores{
		Channels:    postgres.NewChannelStore(pool),
		Memberships: postgres.NewMembershipStore(pool),
		Messages:    postgres.NewMessageStore(pool),
		Reactions:   postgres.NewReactionStore(pool),
		Mentions:    postgres.NewMentionStore(pool),
		Presence:    postgres.NewPresenceStore(pool),
	}

	// ---------------------------------------------------------------
	// 6. Hub, relay, gateway
	//
	// The hub is the local fan-out and the sole addressing authority.
	// The relay wraps it so broadcasts reach subscribers on sibling
	// gateway instances through Redis pub/sub.
	// ---------------------------------------------------------------
	hub := ws.NewHub(logger)
	relay := ws.NewRelay(hub, rdb, logger)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	go relay.Run(relayCtx)

	gateway := ws.NewGateway(hub, relay, stores, logger)

	// ---------------------------------------------------------------
	// 7. HTTP server
	// ---------------------------------------------------------------
	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	logger.Info("starting echogate",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	// Health check is PUBLIC — load balancers hit this to see if the
	// instance is alive, and they don't carry identity assertions.
	srv.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Everything else requires a verified identity assertion. For the
	// WebSocket route this means unidentified connections are refused
	// with 401 before the upgrade — no event handler ever runs for them.
	authed := srv.Group("/")
	authed.Use(middleware.RequireIdentity(cfg.IdentitySecret))

	authed.GET("/ws", gateway.HandleConnection)

	historyHandler := api.NewHistoryHandler(stores.Messages, stores.Memberships, logger)
	authed.GET("/v1/channels/:id/messages", historyHandler.List)

	return srv.Run(":" + cfg.Port)
}
