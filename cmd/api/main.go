package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"phantom-mask/internal/cache"
	"phantom-mask/internal/config"
	"phantom-mask/internal/handler"
	"phantom-mask/internal/middleware"
	"phantom-mask/internal/repository"
	"phantom-mask/internal/service"
	"phantom-mask/internal/ws"
	"phantom-mask/pkg/database"
	"phantom-mask/pkg/jwt"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

var _ service.PurchaseNotifier = (*ws.Hub)(nil)

func main() {
	// 1. Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	jwt.SetSecret(cfg.JWTSecret)

	// 2. Database
	db := database.ConnectDB(cfg.DBDriver, cfg.DatabaseURL, cfg.DBLogLevel)
	if err := repository.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	// 3. Redis idempotency cache, optional
	var idem cache.IdempotencyCache
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("Warning: redis unavailable, idempotency falls back to the database: %v", err)
		} else {
			store := cache.NewRedisStore(redisClient, cfg.IdempotencyTTL)
			defer store.Close()
			idem = store
		}
	}

	// 4. WebSocket hub
	wsHub := ws.NewHub()
	go wsHub.Run()

	// 5. Wiring
	txm := repository.NewTxManager(db)
	pharmacyRepo := repository.NewPharmacyRepo(db)
	maskRepo := repository.NewMaskRepo(db)
	userRepo := repository.NewUserRepo(db)
	txRepo := repository.NewTransactionRepo(db)

	queryService := service.NewQueryService(txm, pharmacyRepo, maskRepo, userRepo, txRepo, cfg.Location)
	auditService := service.NewAuditService(txm, pharmacyRepo, maskRepo, userRepo, txRepo)
	dashboardService := service.NewDashboardService(txm, txRepo, cfg.Location)
	purchaseService := service.NewPurchaseService(txm, pharmacyRepo, maskRepo, userRepo, txRepo, service.PurchaseOptions{
		MaxRetries: cfg.PurchaseMaxRetries,
		Cache:      idem,
		Notifier:   wsHub,
		Logger:     log.New(os.Stdout, "[purchase] ", log.LstdFlags),
	})

	handlers := handler.Handlers{
		Pharmacy:  handler.NewPharmacyHandler(queryService),
		Report:    handler.NewReportHandler(queryService, auditService, cfg.Location),
		Purchase:  handler.NewPurchaseHandler(purchaseService, queryService, cfg.Location),
		Dashboard: handler.NewDashboardHandler(dashboardService),
		User:      handler.NewUserHandler(queryService),
	}

	// 6. Fiber
	app := fiber.New(fiber.Config{
		AppName: "Phantom Mask v1.0",
	})

	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api/v1")
	handler.RegisterRoutes(api, handlers, middleware.RequireAuth(txm, userRepo))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "ws_clients": wsHub.ClientCount()})
	})

	// purchase event feed
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		wsHub.Register <- c
		defer func() { wsHub.Unregister <- c }()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))

	// 7. Graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			log.Panic(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
