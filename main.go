package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shopchat-labs/shopchat-backend/database"
	"github.com/shopchat-labs/shopchat-backend/internal/config"
	"github.com/shopchat-labs/shopchat-backend/internal/handlers"
	"github.com/shopchat-labs/shopchat-backend/internal/jobs"
	applogger "github.com/shopchat-labs/shopchat-backend/internal/logger"
	"github.com/shopchat-labs/shopchat-backend/internal/models"
	"github.com/shopchat-labs/shopchat-backend/internal/routes"
	"github.com/shopchat-labs/shopchat-backend/internal/services"
	"github.com/shopchat-labs/shopchat-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	// Load .env file for local development
	if err := godotenv.Load(".env"); err != nil {
		log.Println("no .env file found - using environment variables")
	}

	logger, err := applogger.New()
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Initialize storage
	var store storage.Store
	storageType := "postgres"
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		logger.Warn("using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
		storageType = "memory"
	} else {
		db, err := database.Connect()
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		if err := db.AutoMigrate(
			&models.Session{},
			&models.Customer{},
			&models.Address{},
			&models.CardToken{},
		); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		store = storage.NewDatabaseStore(db)
		logger.Info("using PostgreSQL storage")
	}

	// Webhook dedupe: Redis when configured, in-process otherwise.
	var deduper services.MessageDeduper
	dedupeType := "redis"
	if cfg.RedisAddr != "" {
		redisDeduper, err := services.NewRedisDeduper(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		deduper = redisDeduper
		logger.Info("using redis message dedupe", zap.String("addr", cfg.RedisAddr))
	} else {
		deduper = services.NewMemoryDeduper()
		dedupeType = "memory"
		logger.Warn("using in-memory message dedupe (single instance only)")
	}
	defer deduper.Close()

	embedder, err := services.NewOpenAIEmbedder(cfg.EmbeddingModel)
	if err != nil {
		logger.Fatal("failed to initialize embedder", zap.Error(err))
	}

	sessionManager := services.NewSessionManager(store, logger, cfg.SessionTTL)
	intents := services.NewIntentClassifier(embedder, logger)
	gateway := services.NewGraphGateway(cfg.GraphAPIURL, cfg.Tenant.PhoneNumberID, cfg.Tenant.AccessToken, logger)
	catalog := services.NewHTTPCatalogService(cfg.CatalogURL)
	payments := services.NewHTTPPaymentProvider(cfg.PaymentURL)
	orders := services.NewHTTPOrderService(cfg.OrderURL)
	checkout := services.NewCheckoutOrchestrator(store, catalog, payments, orders,
		cfg.CODEnabled, cfg.Tenant.DefaultShop, logger)
	router := services.NewConversationRouter(sessionManager, intents, checkout,
		catalog, payments, orders, gateway, store,
		cfg.Tenant.FlowID, cfg.Tenant.IsMultiVendor, cfg.Tenant.DefaultShop, logger)
	flowCrypto := services.NewFlowCryptoService(cfg.Tenant.PrivateKey())

	reaper := jobs.NewSessionReaper(sessionManager, cfg.SessionTTL/2, logger)
	reaper.Start()
	defer reaper.Stop()

	app := fiber.New(fiber.Config{
		AppName: "ShopChat Engine v" + version,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	routes.SetupRoutes(app, routes.Handlers{
		Webhook: handlers.NewWebhookHandler(cfg.Tenant.VerifyToken, router, deduper, cfg.DedupeTTL, logger),
		Flow:    handlers.NewFlowHandler(flowCrypto, logger),
		Health:  handlers.NewHealthHandler(version, storageType, dedupeType),
	}, cfg.Tenant.AppSecret, logger)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
