package health

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/courier/internal/db"
)

// maxListLimit caps ?limit on the deliveries listing.
const maxListLimit = 200

var started = time.Now()

// registerRoutes sets up all health routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealthz(opts))
	router.GET("/api/sessions", handleSessions(opts.Sessions))
	if opts.Deliveries != nil {
		router.GET("/api/deliveries", handleDeliveries(opts.Deliveries))
		router.GET("/api/deliveries/counts", handleDeliveryCounts(opts.Deliveries))
	}
}

func handleHealthz(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"platform": opts.Platform,
			"version":  opts.Version,
			"uptime":   time.Since(started).Round(time.Second).String(),
		})
	}
}

func handleSessions(sessions SessionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"active": sessions.Len()})
	}
}

func handleDeliveries(log DeliveryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := db.DefaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxListLimit)
		}
		rows, err := log.Recent(c.Request.Context(), c.Query("user"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deliveries": rows, "count": len(rows)})
	}
}

func handleDeliveryCounts(log DeliveryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := log.Counts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, counts)
	}
}
