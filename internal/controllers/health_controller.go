package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet_tracker/internal/metrics"
)

// Healthz reports whether the database and Redis are reachable.
func (ctl *Controller) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	status := gin.H{"database": "ok", "redis": "ok"}
	healthy := true

	sqlDB, err := ctl.Repo.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		status["database"] = err.Error()
		healthy = false
	}
	if err := ctl.Streams.Redis().Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
		healthy = false
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Metrics exposes the process counters in text format.
func (ctl *Controller) Metrics(c *gin.Context) {
	metrics.HandleMetrics(c.Writer, c.Request)
}
