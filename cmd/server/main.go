package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"bookshare/internal/adapters/http/middleware"
	"bookshare/internal/adapters/http/routes"
	"bookshare/internal/adapters/persistence/models"
	"bookshare/internal/adapters/persistence/repositories"
	"bookshare/internal/config"
	"bookshare/internal/core/services"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"

	_ "bookshare/docs" // Swagger docs
)

// @title Bookshare Lending API
// @version 1.0
// @description Peer-to-peer book lending: listings, lending requests and live status events.

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer config.CloseDatabase()

	// Auto migrate (creates tables if not exist)
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("❌ Failed to auto migrate: %v", err)
	}
	log.Println("✅ Database migration completed")

	if cfg.IsDev() {
		if err := config.NewSeeder(db).Run(); err != nil {
			log.Printf("⚠️ Warning: Failed to seed data: %v", err)
		}
	}

	store := repositories.NewStore(db)
	notifyService := services.NewNotificationService()

	// Book status repair job
	reconcileService := services.NewReconcileService(store, notifyService, cfg.Reconcile.Schedule)
	if err := reconcileService.Start(); err != nil {
		log.Fatalf("❌ Invalid RECONCILE_SCHEDULE %q: %v", cfg.Reconcile.Schedule, err)
	}
	defer reconcileService.Stop()

	// Create Fiber app
	json := jsoniter.ConfigCompatibleWithStandardLibrary
	app := fiber.New(fiber.Config{
		AppName:      "Bookshare Lending API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	// Setup middlewares
	middleware.Setup(app, cfg)

	// Setup routes
	routes.Setup(app, store, cfg, notifyService)

	// Graceful shutdown
	go gracefulShutdown(app)

	// Start server
	log.Printf("🚀 Server starting on port %s [MODE: %s]", cfg.Port, cfg.AppMode)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("❌ Error during shutdown: %v", err)
	}
	log.Println("✅ Server stopped gracefully")
}
