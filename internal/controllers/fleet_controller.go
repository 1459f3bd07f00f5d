package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/events"
)

// commandRequest is the body of a fleet command; the fleet comes from the path.
type commandRequest struct {
	Command string              `json:"command" binding:"required"`
	Args    *events.CommandArgs `json:"args"`
}

// SendCommand queues a fleet command for the trip manager.
func (ctl *Controller) SendCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	cmd := events.FleetCommand{Command: req.Command, FleetNo: c.Param("fleetNo"), Args: req.Args}
	if err := cmd.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := ctl.Repo.FleetByName(ctx, cmd.FleetNo); err != nil {
		abortWithError(c, err)
		return
	}

	id, err := ctl.Streams.Publish(ctx, events.CommandStream, cmd, map[string]any{
		"issuedBy": c.GetString("subject"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"fleet_no": cmd.FleetNo,
		"command":  cmd.Command,
		"entry_id": id,
	}).Info("Fleet command queued")
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

// FleetState returns the fleet's movement state and last known location.
func (ctl *Controller) FleetState(c *gin.Context) {
	fleetNo := c.Param("fleetNo")
	ctx := c.Request.Context()

	st, err := ctl.Store.Load(ctx, fleetNo)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no movement state for fleet"})
		return
	}

	resp := gin.H{"state": st}
	loc, err := ctl.Store.LastLocation(ctx, fleetNo)
	if err != nil {
		logrus.WithError(err).WithField("fleet_no", fleetNo).Warn("Failed to load last location")
	} else if loc != nil {
		resp["location"] = gin.H{
			"latitude":   loc.Lat(),
			"longitude":  loc.Lng(),
			"receivedAt": loc.ReceivedAt,
		}
	}
	c.JSON(http.StatusOK, resp)
}
