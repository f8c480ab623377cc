package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"stock_searcher_backend/config"
	"stock_searcher_backend/middleware"
	"stock_searcher_backend/models"
	"stock_searcher_backend/routes"
	"stock_searcher_backend/services/crawler"
	"stock_searcher_backend/services/store"
	"stock_searcher_backend/services/telemetry"
)

func main() {
	log.Println("==============================================")
	log.Println("  Stock Searcher Backend - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database connection
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	log.Println("Running database migrations...")
	if err := models.MigrateStockModels(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Database migrations completed successfully")

	// Telemetry: process log, websocket hub and sqlite archive
	archive, err := telemetry.OpenArchive(cfg.TelemetryDBPath)
	if err != nil {
		log.Fatalf("Telemetry archive failed: %v", err)
	}
	hub := telemetry.NewHub(archive)

	// Code lists live in MongoDB; an empty URI disables them
	codeLists, err := store.NewCodeListStore(context.Background(), cfg.MongoURI)
	if err != nil {
		log.Printf("Warning: MongoDB not available, code lists disabled: %v", err)
		codeLists = &store.CodeListStore{}
	}

	stockStore := store.NewStockStore(db)
	fetcher := crawler.NewClient()

	crawlScheduler := crawler.NewCrawlScheduler(crawler.Config{
		CrawlBegin:         cfg.CrawlBegin,
		CutoffHour:         cfg.CutoffHour,
		ListedDelay:        cfg.ListedDelay,
		OTCDelay:           cfg.OTCDelay,
		ConsumerTick:       cfg.ConsumerTick,
		EmptyRunLimit:      cfg.EmptyRunLimit,
		EmptyResultRetries: cfg.EmptyResultRetries,
		MaxJobRetries:      cfg.MaxJobRetries,
		Cooldown:           cfg.Cooldown,
	}, stockStore, fetcher, hub)

	if err := crawlScheduler.Start(); err != nil {
		log.Fatalf("Crawl scheduler failed to start: %v", err)
	}

	// Create Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(requestLogger())

	setupHealthEndpoints(router)

	routes.SetupRoutes(router, routes.Deps{
		Config:    cfg,
		Store:     stockStore,
		CodeLists: codeLists,
		Scheduler: crawlScheduler,
		Hub:       hub,
		Archive:   archive,
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(server, crawlScheduler, hub, archive, codeLists)
}

func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Stock Searcher Backend API",
			"version": "1.0.0",
		})
	})

	// Liveness probe
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe
	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

func gracefulShutdown(server *http.Server, crawlScheduler *crawler.CrawlScheduler, hub *telemetry.Hub, archive *telemetry.Archive, codeLists *store.CodeListStore) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop the crawler first so no writes race the database teardown
	crawlScheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	hub.Shutdown()
	if codeLists != nil {
		codeLists.Close(ctx)
	}
	if err := archive.Close(); err != nil {
		log.Printf("Telemetry archive close: %v", err)
	}

	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Shutdown complete")
}
