package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go-pos-ws/config"
	"go-pos-ws/internal/client"
	"go-pos-ws/internal/handler"
	"go-pos-ws/internal/loop"
	"go-pos-ws/internal/middleware"
	"go-pos-ws/internal/model"
	"go-pos-ws/internal/notify"
	"go-pos-ws/internal/persistence"
	"go-pos-ws/internal/repository"
	"go-pos-ws/internal/scanner"
	"go-pos-ws/internal/service"
	"go-pos-ws/internal/ws"
	"go-pos-ws/pkg/database"
	"go-pos-ws/pkg/jwt"
	"go-pos-ws/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/juju/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}
	cfg := config.LoadEnv()

	// The backend APIs and the UI exchange money as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	// 2. Logger, stamped with this terminal's session id
	baseLogger, err := logger.NewZapLogger(cfg.Server.AppEnv, cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer baseLogger.Sync()
	sessionID := uuid.NewString()
	appLogger := baseLogger.With(zap.String("session_id", sessionID))

	tokens, err := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.TTL)
	if err != nil {
		appLogger.Fatal("Invalid JWT configuration", zap.Error(err))
	}

	// 3. Cart snapshot store
	store, err := openStore(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Could not open cart store", zap.Error(err))
	}

	// 4. Engine
	eventLoop := loop.New(appLogger)
	wsHub := ws.NewHub(sessionID, eventLoop.Dying(), appLogger)
	backend := client.NewBackend(client.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
	}, appLogger)

	posService := service.NewPosService(service.Deps{
		Runner:          eventLoop,
		Catalog:         backend,
		Sales:           backend,
		Recommendations: backend,
		Store:           store,
		Sink:            notify.NewSink(wsHub, appLogger),
		Clock:           clock.WallClock,
		Logger:          appLogger,
		Persistence: persistence.Options{
			Key:          cfg.POS.SessionKey,
			ClampToStock: cfg.POS.ClampRestoredQuantity,
		},
		Classifier: scanner.Classifier{
			Gap:       cfg.POS.ScanGap,
			MinLength: cfg.POS.MinBarcodeLength,
		},
		StoreTimeout: cfg.POS.StoreTimeout,
	})
	handler.Forward(posService, wsHub)
	posHandler := handler.NewPosHandler(posService, cfg.Server.CheckoutWait)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	wsHandler := handler.NewWSHandler(wsHub, posService, eventLoop.Dying(), appLogger)

	// 5. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName:               "POS Terminal v1.0",
		DisableStartupMessage: cfg.Server.AppEnv != "development",
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.Server.CORSOrigins}))

	// 6. Routes
	api := app.Group("/api/v1")
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "session_id": sessionID, "ws_clients": wsHub.ClientCount()})
	})

	pos := api.Group("/pos", middleware.RequireAuth(tokens))
	posHandler.Register(pos, middleware.RequirePrivilege("transaction:create"))

	app.Use("/ws", wsHandler.RequireUpgrade)
	app.Get("/ws", wsHandler.Serve())

	// 7. Run loop, hub and server until a signal arrives; the hub and the
	// websocket handler stop with the loop.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := eventLoop.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		wsHub.Run()
		return nil
	})
	g.Go(func() error {
		return posService.Start(gctx)
	})
	g.Go(func() error {
		port := cfg.Server.Port
		appLogger.Info("Starting server", zap.String("port", port), zap.String("store", cfg.POS.Store))
		return app.Listen(":" + port)
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Server stopped with error", zap.Error(err))
		baseLogger.Sync()
		os.Exit(1)
	}
	appLogger.Info("Server exited")
}

func openStore(cfg *config.Config, log *zap.Logger) (persistence.Store, error) {
	if cfg.POS.Store == config.StoreMemory {
		log.Warn("Cart snapshots kept in memory; they will not survive a restart")
		return repository.NewMemoryStore(), nil
	}

	db, err := database.ConnectDB(cfg.Postgres, log)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.CartSnapshot{}); err != nil {
		return nil, err
	}
	return repository.NewCartSnapshotRepo(db), nil
}
