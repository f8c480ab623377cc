package routes

import (
	"github.com/gin-gonic/gin"

	"stock_searcher_backend/config"
	"stock_searcher_backend/controllers"
	"stock_searcher_backend/middleware"
	"stock_searcher_backend/services/crawler"
	"stock_searcher_backend/services/store"
	"stock_searcher_backend/services/telemetry"
)

// Deps carries the shared collaborators the route handlers need.
type Deps struct {
	Config    *config.Config
	Store     *store.StockStore
	CodeLists *store.CodeListStore
	Scheduler *crawler.CrawlScheduler
	Hub       *telemetry.Hub
	Archive   *telemetry.Archive
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Deps) {
	stockController := controllers.NewStockController(deps.Store, deps.CodeLists, deps.Hub, deps.Config.AnalyticsTimeout)
	crawlController := controllers.NewCrawlController(deps.Config, deps.Scheduler, deps.Hub, deps.Archive)

	stocks := router.Group("/stocks")
	{
		stocks.POST("/findStockInfo", stockController.FindStockInfo)
		stocks.POST("/getRangeOfHighAndLowPoint", stockController.GetRangeOfHighAndLowPoint)
		stocks.POST("/getAllRangeOfHighAndLowPoint", stockController.GetAllRangeOfHighAndLowPoint)
		stocks.POST("/getStockMa", stockController.GetStockMa)
		stocks.POST("/findCompaniesByKeyWord", stockController.FindCompaniesByKeyWord)
		stocks.POST("/saveCodeList", stockController.SaveCodeList)
		stocks.GET("/codeList/:name", stockController.GetCodeList)
	}

	router.GET("/ws/logs", crawlController.StreamLogs)
	router.GET("/telemetry/recent", crawlController.RecentTelemetry)

	admin := router.Group("/admin")
	{
		admin.POST("/login", crawlController.Login)

		protected := admin.Group("/crawl")
		protected.Use(middleware.JWTAuthMiddleware(deps.Config.JWTSecret))
		{
			protected.POST("/refresh", crawlController.TriggerRefresh)
			protected.GET("/status", crawlController.Status)
		}
	}
}
