package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"stock_searcher_backend/config"
	"stock_searcher_backend/middleware"
	"stock_searcher_backend/services/crawler"
	"stock_searcher_backend/services/telemetry"
)

// CrawlController exposes the admin crawl controls and the telemetry
// surface.
type CrawlController struct {
	cfg       *config.Config
	scheduler *crawler.CrawlScheduler
	hub       *telemetry.Hub
	archive   *telemetry.Archive
}

// NewCrawlController creates a new crawl controller
func NewCrawlController(cfg *config.Config, scheduler *crawler.CrawlScheduler, hub *telemetry.Hub, archive *telemetry.Archive) *CrawlController {
	return &CrawlController{
		cfg:       cfg,
		scheduler: scheduler,
		hub:       hub,
		archive:   archive,
	}
}

// Login authenticates the admin user and issues a session token.
// POST /admin/login
func (cc *CrawlController) Login(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if body.Username != cc.cfg.AdminUser || cc.cfg.AdminPasswordHash == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cc.cfg.AdminPasswordHash), []byte(body.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := middleware.IssueAdminToken(cc.cfg.JWTSecret, body.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// TriggerRefresh starts a crawl refresh for one or both venues. Refreshes
// already in flight are skipped by the scheduler's busy flag.
// POST /admin/crawl/refresh
func (cc *CrawlController) TriggerRefresh(c *gin.Context) {
	var body struct {
		Venue string `json:"venue"`
	}
	// An empty body means both venues.
	_ = c.ShouldBindJSON(&body)

	switch body.Venue {
	case "listed":
		go cc.scheduler.RefreshListed()
	case "otc":
		go cc.scheduler.RefreshOTC()
	case "", "all":
		go cc.scheduler.RefreshListed()
		go cc.scheduler.RefreshOTC()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown venue"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "refresh started", "venue": body.Venue})
}

// Status reports the per-venue queue depths.
// GET /admin/crawl/status
func (cc *CrawlController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"queues": cc.scheduler.QueueStatus()})
}

// RecentTelemetry returns the latest archived events, newest first.
// GET /telemetry/recent
func (cc *CrawlController) RecentTelemetry(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	events, err := cc.archive.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load telemetry"})
		return
	}

	c.JSON(http.StatusOK, events)
}

// StreamLogs upgrades the connection to a websocket fed by the telemetry
// hub.
// GET /ws/logs
func (cc *CrawlController) StreamLogs(c *gin.Context) {
	cc.hub.HandleWebSocket(c.Writer, c.Request)
}
