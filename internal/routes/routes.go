package routes

import (
	"net/http"

	"carbonwatch-backend/internal/app"
	handler "carbonwatch-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	companyHandler := handler.NewCompanyHandler(a.Companies, a.Reports, a.Logos)
	txHandler := handler.NewTransactionHandler(a.Companies, a.Transactions, a.Pipeline, a.Batches, a.Verifier)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Company routes
	companies := api.Group("/companies")
	companies.GET("", companyHandler.List)
	companies.POST("", companyHandler.Create)
	companies.GET("/:companyId", companyHandler.Get)
	companies.GET("/:companyId/patterns", companyHandler.Patterns)
	companies.GET("/:companyId/transactions", txHandler.ListByCompany)
	companies.POST("/:companyId/transactions/upload", txHandler.Upload)

	// Transaction-level routes
	tx := api.Group("/transactions")
	tx.GET("/:id", txHandler.Get)
	tx.POST("/:id/verify", txHandler.Verify)

	// Ingestion batch routes
	api.GET("/batches/:batchId", txHandler.GetBatchProgress)
}
