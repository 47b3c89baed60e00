// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stocktrace/internal/domain/arrivals"
	"stocktrace/internal/domain/inventory"
	"stocktrace/internal/domain/ledger"
	"stocktrace/internal/domain/purchasing"
	"stocktrace/internal/infrastructure/http/v1/handlers"
	"stocktrace/internal/infrastructure/http/v1/middleware"
	"stocktrace/internal/infrastructure/storage/postgres"
	"stocktrace/internal/infrastructure/storage/postgres/arrival_repo"
	"stocktrace/internal/infrastructure/storage/postgres/inventory_repo"
	"stocktrace/internal/infrastructure/storage/postgres/movement_repo"
	"stocktrace/internal/infrastructure/storage/postgres/purchasing_repo"
	"stocktrace/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool.
	Pool *postgres.Pool

	// TxManager coordinates transactions across services.
	TxManager *postgres.TxManager

	// Logger for request logging.
	Logger *logger.Logger

	// JWTValidator for token validation.
	JWTValidator middleware.JWTValidator

	// AuditService records movement writes. Optional.
	AuditService *postgres.AuditService

	// Inventory tunes aggregate maintenance.
	Inventory inventory.Config
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// Repositories resolve their TxManager from the request context,
	// so they are created once and shared.
	movementRepo := movement_repo.NewMovementRepo()
	inventoryRepo := inventory_repo.NewInventoryRepo()
	arrivalRepo := arrival_repo.NewArrivalRepo()
	purchasingRepo := purchasing_repo.NewPurchasingRepo()

	aggregator := inventory.NewAggregator(inventoryRepo, cfg.Inventory)

	var audit ledger.AuditLog
	if cfg.AuditService != nil {
		audit = cfg.AuditService
	}
	propagator := purchasing.NewPropagator(purchasingRepo, movementRepo, cfg.TxManager)
	ledgerService := ledger.NewService(movementRepo, aggregator, cfg.TxManager, audit, propagator)
	inspector := arrivals.NewInspector(arrivalRepo, purchasingRepo, ledgerService, propagator, cfg.TxManager)

	base := handlers.NewBaseHandler()
	movementHandler := handlers.NewMovementHandler(base, ledgerService)
	arrivalHandler := handlers.NewArrivalHandler(base, inspector, arrivalRepo)
	inventoryHandler := handlers.NewInventoryHandler(base, aggregator, inventoryRepo)
	purchasingHandler := handlers.NewPurchasingHandler(base, propagator, purchasingRepo)

	// API v1 - Database injection runs first, then Auth.
	api := router.Group("/api/v1")
	api.Use(middleware.Database(cfg.Pool, cfg.TxManager))
	api.Use(middleware.Auth(cfg.JWTValidator))
	{
		movements := api.Group("/movements")
		{
			movements.POST("/issue", movementHandler.Issue)
			movements.POST("/adjust", movementHandler.Adjust)
			movements.POST("/transfer", movementHandler.Transfer)
			movements.POST("/relocate", movementHandler.Relocate)
			movements.POST("/return", movementHandler.Return)
			movements.GET("/:id/chain", movementHandler.Chain)
		}

		arrivalsGroup := api.Group("/arrivals")
		{
			arrivalsGroup.POST("/unlinked", arrivalHandler.ReceiveUnlinked)
			arrivalsGroup.GET("/:id", arrivalHandler.Get)
			arrivalsGroup.POST("/:id/arrived", arrivalHandler.MarkArrived)
			arrivalsGroup.POST("/:id/inspect", arrivalHandler.Inspect)
			arrivalsGroup.GET("/:id/movements", movementHandler.ByArrival)
		}

		api.GET("/packages/:id/arrivals", arrivalHandler.ByPackage)
		api.GET("/locations/:id/arrivals/pending", arrivalHandler.Pending)

		parts := api.Group("/parts")
		{
			parts.GET("/:id/movements", movementHandler.History)
			parts.GET("/:id/inventory", inventoryHandler.ByPart)
			parts.GET("/:id/summary", inventoryHandler.Summary)
		}

		api.GET("/storerooms/:id/inventory", inventoryHandler.ByStoreroom)

		inventoryGroup := api.Group("/inventory")
		{
			inventoryGroup.POST("/allocate", inventoryHandler.Allocate)
			inventoryGroup.POST("/deallocate", inventoryHandler.Deallocate)

			// Rebuild and verification are maintenance operations.
			summaries := inventoryGroup.Group("/summaries", middleware.RequireRole("admin"))
			summaries.POST("/refresh", inventoryHandler.RefreshSummaries)
			summaries.POST("/verify", inventoryHandler.VerifySummaries)
		}

		api.POST("/orders/:id/status", purchasingHandler.UpdateOrderStatus)
		api.GET("/orders/:id/lines", purchasingHandler.OrderLines)
		api.POST("/lines/:id/recheck", purchasingHandler.RecheckLine)
		api.GET("/lines/:id/demands", purchasingHandler.LineDemands)
	}

	return router
}
