package routes

import (
	"time"

	"bookshare/internal/adapters/http/handlers"
	"bookshare/internal/adapters/http/middleware"
	"bookshare/internal/adapters/persistence/repositories"
	"bookshare/internal/config"
	"bookshare/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
)

// Setup configures all routes for the application
func Setup(app *fiber.App, store *repositories.Store, cfg *config.Config, notifyService *services.NotificationService) {
	// Initialize services
	bookService := services.NewBookService(store, notifyService)
	lendingService := services.NewLendingService(store, notifyService)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.AppMode, notifyService.Hub)
	bookHandler := handlers.NewBookHandler(bookService)
	requestHandler := handlers.NewRequestHandler(lendingService)
	eventsHandler := handlers.NewEventsHandler(notifyService)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	mutations := middleware.NewUserRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	setupBookRoutes(apiV1.Group("/books"), bookHandler, mutations, cfg)
	setupRequestRoutes(apiV1.Group("/requests"), requestHandler, mutations, cfg)

	apiV1.Get("/events", middleware.AuthMiddleware(cfg), eventsHandler.Stream)
}

// setupBookRoutes configures book routes
func setupBookRoutes(router fiber.Router, handler *handlers.BookHandler, limiter *middleware.UserRateLimiter, cfg *config.Config) {
	// Public routes
	router.Get("/", middleware.NoCacheHeaders(), handler.List)
	router.Get("/genres", middleware.CacheControl(time.Minute), handler.Genres)
	router.Get("/:id", middleware.NoCacheHeaders(), handler.Get)

	// Owner routes
	auth := middleware.AuthMiddleware(cfg)
	router.Post("/", auth, limiter.Handler(), handler.Create)
	router.Put("/:id/availability", auth, limiter.Handler(), handler.SetAvailability)
	router.Delete("/:id", auth, limiter.Handler(), handler.Delete)
}

// setupRequestRoutes configures lending request routes
func setupRequestRoutes(router fiber.Router, handler *handlers.RequestHandler, limiter *middleware.UserRateLimiter, cfg *config.Config) {
	router.Use(middleware.AuthMiddleware(cfg), middleware.NoCacheHeaders())

	router.Get("/user/:userId", handler.ForUser)

	router.Post("/", limiter.Handler(), handler.Create)
	router.Put("/:id/accept", limiter.Handler(), handler.Accept)
	router.Put("/:id/reject", limiter.Handler(), handler.Reject)
	router.Put("/:id/return", limiter.Handler(), handler.Return)
}
